// Package controller runs a motor controller device in the L1 loop.
package controller

import (
	"fmt"

	"github.com/golang/glog"

	fx "github.com/robotalks/roboclaw.go/pkg/framework"
	"github.com/robotalks/roboclaw.go/pkg/l1"
	"github.com/robotalks/roboclaw.go/pkg/l1/msgs"
	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

// DefaultBatteryEvery is the default number of iterations between
// battery readings.
const DefaultBatteryEvery = 50

// Recorder records device states, e.g. to metrics.
type Recorder interface {
	SetPositions(roboclaw.Positions)
	SetBattery(battery string, tenths uint16)
	SetTemperature(tenths uint16)
}

// Controller polls encoders, executes commands and reports states.
type Controller struct {
	Device    *roboclaw.Device
	Registrar l1.Registrar
	Recorder  Recorder
	// BatteryEvery reads battery every that many iterations, 0 disables.
	BatteryEvery uint64

	positions roboclaw.Positions
	reported  bool
	reportAt  roboclaw.Positions
	failures  uint64
}

// New creates a Controller.
func New(dev *roboclaw.Device, reg l1.Registrar) *Controller {
	return &Controller{Device: dev, Registrar: reg, BatteryEvery: DefaultBatteryEvery}
}

// AddToLoop implements LoopAdder.
func (c *Controller) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvSense, fx.ControlFunc(c.sense))
	loop.AddController(fx.PrLvControl, fx.ControlFunc(c.control))
	loop.AddController(fx.PrLvReport, fx.ControlFunc(c.report))
}

// Positions returns the positions from the last successful poll.
func (c *Controller) Positions() roboclaw.Positions {
	return c.positions
}

// Failures returns the number of failed polls.
func (c *Controller) Failures() uint64 {
	return c.failures
}

func (c *Controller) sense(cc fx.ControlContext) error {
	pos, err := c.Device.UpdateEncoders()
	if err != nil {
		c.failures++
		glog.Warningf("poll encoders: %v", err)
		return nil
	}
	c.positions = pos
	if c.Recorder != nil {
		c.Recorder.SetPositions(pos)
	}
	return nil
}

func (c *Controller) control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(func(msg fx.Message) bool {
		cmdMsg, ok := msg.(*l1.CommandMsg)
		if !ok {
			return false
		}
		reply, handled, err := c.execute(cmdMsg.Command.Msg())
		if !handled {
			return false
		}
		if err != nil {
			glog.Errorf("command %s: %v", cmdMsg, err)
			reply = msgs.NewCommandErr(err)
		}
		cmdMsg.Command.Done(reply)
		return true
	})
	return nil
}

func motorOf(n uint32) (roboclaw.Motor, error) {
	m := roboclaw.Motor(n)
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %d", roboclaw.ErrInvalidMotor, n)
	}
	return m, nil
}

func (c *Controller) execute(msg msgs.SerializableMessage) (msgs.SerializableMessage, bool, error) {
	ok := &msgs.CommandOK{}
	switch m := msg.(type) {
	case *msgs.MotorSpeed:
		motor, err := motorOf(m.Motor)
		if err == nil {
			err = c.Device.SetSpeed(motor, m.Qpps)
		}
		return ok, true, err
	case *msgs.MotorDuty:
		motor, err := motorOf(m.Motor)
		if err == nil {
			if m.Duty < 0 {
				err = c.Device.Backward(motor, int(-m.Duty))
			} else {
				err = c.Device.Forward(motor, int(m.Duty))
			}
		}
		return ok, true, err
	case *msgs.MotorStop:
		return ok, true, c.Device.Stop()
	case *msgs.ResetEncoders:
		err := c.Device.ResetEncoders()
		if err == nil {
			c.positions = roboclaw.Positions{}
		}
		return ok, true, err
	case *msgs.EncoderQuery:
		pos := c.Device.Tracker().Positions()
		return &msgs.EncoderState{M1: pos.M1, M2: pos.M2}, true, nil
	case *msgs.BatteryQuery:
		state, err := c.readBattery()
		return state, true, err
	}
	return nil, false, nil
}

func (c *Controller) readBattery() (*msgs.BatteryState, error) {
	main, err := c.Device.MainBattery()
	if err != nil {
		return nil, err
	}
	logic, err := c.Device.LogicBattery()
	if err != nil {
		return nil, err
	}
	temp, err := c.Device.Temperature()
	if err != nil {
		return nil, err
	}
	if c.Recorder != nil {
		c.Recorder.SetBattery("main", main)
		c.Recorder.SetBattery("logic", logic)
		c.Recorder.SetTemperature(temp)
	}
	return &msgs.BatteryState{Main: uint32(main), Logic: uint32(logic), Temperature: uint32(temp)}, nil
}

func (c *Controller) report(cc fx.ControlContext) error {
	var errs fx.AggregatedError
	if c.Registrar != nil && (!c.reported || c.positions != c.reportAt) {
		err := c.Registrar.SendEvent(cc.Context(), &msgs.EncoderState{M1: c.positions.M1, M2: c.positions.M2})
		if err == nil {
			c.reported, c.reportAt = true, c.positions
		}
		errs.Add(err)
	}
	if c.BatteryEvery > 0 && (cc.Iteration()-1)%c.BatteryEvery == 0 {
		state, err := c.readBattery()
		if err != nil {
			glog.Warningf("read battery: %v", err)
		} else if c.Registrar != nil {
			errs.Add(c.Registrar.SendEvent(cc.Context(), state))
		}
	}
	return errs.Aggregate()
}
