package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/roboclaw.go/pkg/framework"
	"github.com/robotalks/roboclaw.go/pkg/l1"
	"github.com/robotalks/roboclaw.go/pkg/l1/msgs"
)

// DefaultPublishTimeout bounds waiting for a publish.
const DefaultPublishTimeout = 2 * time.Second

// Registrar implements l1.Registrar using MQTT.
//
// Topics under <type>/<id>:
//
//	meta  retained JSON metadata, cleared on exit
//	cmd   typed commands from commanders
//	msg   typed replies and events
type Registrar struct {
	Queue          *Queue
	Info           l1.ControllerInfo
	PublishTimeout time.Duration

	metaJSON []byte
	loop     fx.LoopControl
}

// NewRegistrar creates a Registrar.
func NewRegistrar(brokerURL string, info l1.ControllerInfo) (*Registrar, error) {
	if err := info.Ref.Validate(); err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+info.Ref.Name()+"/meta", nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("roboclaw:" + info.Ref.Name())
	}
	return newRegistrar(NewQueue(opts, topicPrefix), info)
}

func newRegistrar(q *Queue, info l1.ControllerInfo) (*Registrar, error) {
	meta, err := json.Marshal(&info.Meta)
	if err != nil {
		return nil, err
	}
	r := &Registrar{
		Queue:          q,
		Info:           info,
		PublishTimeout: DefaultPublishTimeout,
		metaJSON:       meta,
	}
	q.OnConnect = func(*Queue) { r.onConnected() }
	return r, nil
}

// MetaTopic is the topic of retained metadata.
func (r *Registrar) MetaTopic() string { return r.Info.Ref.Name() + "/meta" }

// CmdTopic is the topic of received commands.
func (r *Registrar) CmdTopic() string { return r.Info.Ref.Name() + "/cmd" }

// MsgTopic is the topic of replies and events.
func (r *Registrar) MsgTopic() string { return r.Info.Ref.Name() + "/msg" }

// SendEvent implements l1.Registrar.
func (r *Registrar) SendEvent(ctx context.Context, msg msgs.SerializableMessage) error {
	return r.publish(msg, 0)
}

// AddToLoop implements LoopAdder.
func (r *Registrar) AddToLoop(loop *fx.Loop) {
	r.loop = loop
	loop.AddRunnable(r)
}

// Run implements Runnable.
func (r *Registrar) Run(ctx context.Context) error {
	sub := r.Queue.Sub(r.CmdTopic(), r.handleCmd)
	token := r.Queue.Connect()
	go func() {
		if token.Wait(); token.Error() != nil {
			glog.Errorf("mqtt connect: %v", token.Error())
		}
	}()
	<-ctx.Done()
	if err := r.Queue.PubWait(r.MetaTopic(), nil, 1, true, r.PublishTimeout); err != nil {
		glog.Warningf("clear meta: %v", err)
	}
	sub.Close()
	r.Queue.Close()
	return ctx.Err()
}

func (r *Registrar) onConnected() {
	r.Queue.PubWith(r.MetaTopic(), r.metaJSON, 1, true)
}

func (r *Registrar) publish(msg msgs.SerializableMessage, seq uint32) error {
	data, err := msgs.Encode(msg, seq)
	if err != nil {
		return err
	}
	return r.Queue.PubWait(r.MsgTopic(), data, 0, false, r.PublishTimeout)
}

func (r *Registrar) handleCmd(_ string, payload []byte) {
	typed, err := msgs.DecodeTyped(payload)
	if err != nil {
		glog.Warningf("invalid command packet: %v", err)
		return
	}
	if !typed.IsCommand() {
		glog.V(2).Infof("ignore non-command %x", typed.TypeID)
		return
	}
	cmd := &command{seq: typed.Sequence, registrar: r}
	if cmd.msg, err = typed.Decode(); err != nil {
		glog.Warningf("decode command %x: %v", typed.TypeID, err)
		cmd.Done(msgs.NewCommandErr(err))
		return
	}
	if r.loop == nil {
		cmd.Done(msgs.NewCommandErr(msgs.ErrUnsupportedCommand))
		return
	}
	r.loop.PostMessage(&l1.CommandMsg{Command: cmd})
	r.loop.TriggerNext()
}

type command struct {
	seq       uint32
	msg       msgs.SerializableMessage
	registrar *Registrar
}

func (c *command) Msg() msgs.SerializableMessage {
	return c.msg
}

func (c *command) Done(reply msgs.SerializableMessage) error {
	err := c.registrar.publish(reply, c.seq)
	if err != nil {
		glog.Errorf("reply %d: %v", c.seq, err)
	}
	return err
}
