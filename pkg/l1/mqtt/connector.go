package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	fx "github.com/robotalks/roboclaw.go/pkg/framework"
	"github.com/robotalks/roboclaw.go/pkg/l1"
	"github.com/robotalks/roboclaw.go/pkg/l1/msgs"
)

// Defaults of Connector and Client.
const (
	DefaultDiscoverTimeout = 500 * time.Millisecond
	DefaultCommandTimeout  = 1 * time.Second
)

// Connector discovers nodes on a broker and connects to them.
type Connector struct {
	DiscoverTimeout time.Duration

	options     *paho.ClientOptions
	topicPrefix string
}

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		options:         opts,
		topicPrefix:     topicPrefix,
	}, nil
}

// Discover lists nodes with retained metadata.
func (c *Connector) Discover(ctx context.Context) ([]l1.ControllerInfo, error) {
	q := NewQueue(c.options, c.topicPrefix)
	defer q.Close()
	return discover(ctx, q, c.DiscoverTimeout)
}

func discover(ctx context.Context, q *Queue, timeout time.Duration) ([]l1.ControllerInfo, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	infoCh := make(chan l1.ControllerInfo, 16)
	sub := q.Sub("+/+/meta", func(topic string, payload []byte) {
		items := strings.Split(topic, "/")
		if len(items) != 3 || len(payload) == 0 {
			return
		}
		info := l1.ControllerInfo{Ref: l1.ControllerRef{Type: items[0], ID: items[1]}}
		if err := json.Unmarshal(payload, &info.Meta); err != nil {
			glog.V(2).Infof("invalid meta of %s: %v", info.Ref.Name(), err)
		}
		select {
		case infoCh <- info:
		case <-time.After(timeout):
		}
	})
	defer sub.Close()
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	var res []l1.ControllerInfo
	seen := make(map[string]bool)
	expired := time.After(timeout)
	for {
		select {
		case info := <-infoCh:
			if name := info.Ref.Name(); !seen[name] {
				seen[name] = true
				res = append(res, info)
			}
		case <-expired:
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// Connect connects to a node.
func (c *Connector) Connect(ctx context.Context, ref l1.ControllerRef) (*Client, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	client := NewClient(NewQueue(c.options, c.topicPrefix), ref)
	token := client.Queue.Connect()
	err := fx.RunWithContextCancel(ctx, nil, func() error {
		token.Wait()
		return token.Error()
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Client sends commands to a node and matches replies by sequence.
type Client struct {
	Queue   *Queue
	Ref     l1.ControllerRef
	Timeout time.Duration
	// OnEvent receives events from the node.
	OnEvent func(msgs.SerializableMessage)

	sub     *Subscription
	seq     uint32
	pending map[uint32]chan msgs.SerializableMessage
	lock    sync.Mutex
}

// NewClient creates a Client over a Queue. The Queue is connected
// by the caller.
func NewClient(q *Queue, ref l1.ControllerRef) *Client {
	c := &Client{
		Queue:   q,
		Ref:     ref,
		Timeout: DefaultCommandTimeout,
		pending: make(map[uint32]chan msgs.SerializableMessage),
	}
	c.sub = q.Sub(ref.Name()+"/msg", c.handleMsg)
	return c
}

// Do sends a command and waits for the reply. A CommandErr reply is
// returned as the error.
func (c *Client) Do(ctx context.Context, cmd msgs.SerializableMessage) (msgs.SerializableMessage, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	replyCh := make(chan msgs.SerializableMessage, 1)
	c.lock.Lock()
	c.seq++
	if c.seq == 0 {
		c.seq++
	}
	seq := c.seq
	c.pending[seq] = replyCh
	c.lock.Unlock()
	defer func() {
		c.lock.Lock()
		delete(c.pending, seq)
		c.lock.Unlock()
	}()

	data, err := msgs.Encode(cmd, seq)
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if err := c.Queue.PubWait(c.Ref.Name()+"/cmd", data, 0, false, timeout); err != nil {
		return nil, err
	}
	select {
	case reply := <-replyCh:
		if cmdErr, ok := reply.(*msgs.CommandErr); ok {
			return nil, cmdErr
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes and disconnects.
func (c *Client) Close() error {
	return errors.Join(c.sub.Close(), c.Queue.Close())
}

func (c *Client) handleMsg(_ string, payload []byte) {
	typed, err := msgs.DecodeTyped(payload)
	if err != nil {
		glog.Warningf("invalid message from %s: %v", c.Ref.Name(), err)
		return
	}
	msg, err := typed.Decode()
	if err != nil {
		glog.V(2).Infof("ignore message %x: %v", typed.TypeID, err)
		return
	}
	if typed.IsEvent() {
		if fn := c.OnEvent; fn != nil {
			fn(msg)
		}
		return
	}
	c.lock.Lock()
	replyCh := c.pending[typed.Sequence]
	delete(c.pending, typed.Sequence)
	c.lock.Unlock()
	if replyCh != nil {
		replyCh <- msg
	}
}
