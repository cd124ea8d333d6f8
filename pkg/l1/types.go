// Package l1 connects a motor controller node to its commanders.
//
// Commands arrive as typed messages, are executed in the controlling
// loop, and replies and events flow back through a Registrar.
package l1

import (
	"context"
	"fmt"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/roboclaw.go/pkg/framework"
	"github.com/robotalks/roboclaw.go/pkg/l1/msgs"
)

// Registrar registers a node to a registry, delivers commands into
// the loop and sends events out.
type Registrar interface {
	// SendEvent sends an event.
	SendEvent(context.Context, msgs.SerializableMessage) error
}

// Command represents a received command to be processed.
type Command interface {
	Msg() msgs.SerializableMessage
	Done(reply msgs.SerializableMessage) error
}

// CommandMsg wraps a Command as a loop Message.
type CommandMsg struct {
	Command Command
}

// ProtoMessage implements proto.Message.
func (m *CommandMsg) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandMsg) Reset() { *m = CommandMsg{} }

// String implements proto.Message.
func (m *CommandMsg) String() string {
	if m.Command == nil {
		return "<nil>"
	}
	return proto.CompactTextString(m.Command.Msg())
}

// ControllerRef is a reference to a node.
type ControllerRef struct {
	// Type is controller type.
	Type string
	// ID is unique ID of the device.
	ID string
}

// Name retrieves the name from ref.
func (r ControllerRef) Name() string {
	return r.Type + "/" + r.ID
}

// IsValid indicates ControllerRef is valid.
func (r ControllerRef) IsValid() bool {
	return r.Type != "" && r.ID != ""
}

// Validate returns an error if the ref is invalid.
func (r ControllerRef) Validate() error {
	if !r.IsValid() {
		return fmt.Errorf("invalid controller ref %q", r.Name())
	}
	return nil
}

// ControllerMeta provides metadata of a node.
type ControllerMeta struct {
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ControllerInfo provides information of a node.
type ControllerInfo struct {
	Ref  ControllerRef
	Meta ControllerMeta
}

// RegistrarMux sends events through multiple Registrars.
type RegistrarMux struct {
	Registrars []Registrar
}

// SendEvent implements Registrar.
func (r *RegistrarMux) SendEvent(ctx context.Context, msg msgs.SerializableMessage) error {
	var errs fx.AggregatedError
	for _, reg := range r.Registrars {
		errs.Add(reg.SendEvent(ctx, msg))
	}
	return errs.Aggregate()
}

// AddToLoop implements LoopAdder.
func (r *RegistrarMux) AddToLoop(l *fx.Loop) {
	for _, reg := range r.Registrars {
		if adder, ok := reg.(fx.LoopAdder); ok {
			l.Add(adder)
		}
	}
}

// Add adds more registrars.
func (r *RegistrarMux) Add(regs ...Registrar) {
	r.Registrars = append(r.Registrars, regs...)
}

// UnsupportedCommands replies left-over commands as unsupported.
type UnsupportedCommands struct {
}

// Control implements Controller.
func (c *UnsupportedCommands) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(func(msg fx.Message) bool {
		cmdMsg, ok := msg.(*CommandMsg)
		if ok {
			cmdMsg.Command.Done(msgs.NewCommandErr(msgs.ErrUnsupportedCommand))
		}
		return ok
	})
	return nil
}

// AddToLoop implements LoopAdder.
func (c *UnsupportedCommands) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvIdle, c)
}
