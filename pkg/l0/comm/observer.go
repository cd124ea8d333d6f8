package comm

import "time"

// Kind is the kind of a transaction.
type Kind string

// Transaction kinds.
const (
	KindWrite Kind = "write"
	KindRead  Kind = "read"
)

// Observer is notified about transaction progress.
type Observer interface {
	// AttemptStarted is called before each attempt, attempt starts from 1.
	AttemptStarted(kind Kind, command byte, attempt int)
	// TransactionDone is called once a transaction succeeds or fails.
	TransactionDone(kind Kind, command byte, attempts int, elapsed time.Duration, err error)
}
