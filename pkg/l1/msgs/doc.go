// Package msgs defines the L1 messages exchanged with a motor controller
// node and the typed envelope carrying them.
package msgs
