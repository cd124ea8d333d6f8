package msgs

import (
	"github.com/golang/protobuf/proto"
)

// TypeID Groups
const (
	GroupCommand uint32 = 0x00000000
	GroupMotor   uint32 = 0x00100000
)

// TypeIDs
const (
	CommandOKTypeID     uint32 = GroupCommand | TypeIDMaskReply | 0x0000
	CommandErrTypeID    uint32 = GroupCommand | TypeIDMaskReply | 0x0001
	MotorSpeedTypeID    uint32 = GroupMotor | 0x0001
	MotorDutyTypeID     uint32 = GroupMotor | 0x0002
	MotorStopTypeID     uint32 = GroupMotor | 0x0003
	ResetEncodersTypeID uint32 = GroupMotor | 0x0004
	EncoderQueryTypeID  uint32 = GroupMotor | 0x0005
	BatteryQueryTypeID  uint32 = GroupMotor | 0x0006
	EncoderStateTypeID  uint32 = TypeIDKindEvent | EncoderQueryTypeID
	BatteryStateTypeID  uint32 = TypeIDKindEvent | BatteryQueryTypeID
)

var messageTypes = map[uint32]func() SerializableMessage{
	CommandOKTypeID:     func() SerializableMessage { return &CommandOK{} },
	CommandErrTypeID:    func() SerializableMessage { return &CommandErr{} },
	MotorSpeedTypeID:    func() SerializableMessage { return &MotorSpeed{} },
	MotorDutyTypeID:     func() SerializableMessage { return &MotorDuty{} },
	MotorStopTypeID:     func() SerializableMessage { return &MotorStop{} },
	ResetEncodersTypeID: func() SerializableMessage { return &ResetEncoders{} },
	EncoderQueryTypeID:  func() SerializableMessage { return &EncoderQuery{} },
	BatteryQueryTypeID:  func() SerializableMessage { return &BatteryQuery{} },
	EncoderStateTypeID:  func() SerializableMessage { return &EncoderState{} },
	BatteryStateTypeID:  func() SerializableMessage { return &BatteryState{} },
}

// CommandOK is the generic reply indicating success for commands.
type CommandOK struct {
}

// TypeID implements SerializableMessage.
func (m *CommandOK) TypeID() uint32 { return CommandOKTypeID }

// ProtoMessage implements proto.Message.
func (m *CommandOK) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandOK) Reset() { *m = CommandOK{} }

// String implements proto.Message.
func (m *CommandOK) String() string { return proto.CompactTextString(m) }

// CommandErr is the generic reply representing command error.
type CommandErr struct {
	Message string `protobuf:"bytes,1,opt,name=message,proto3" json:"message,omitempty"`
}

// NewCommandErr creates a CommandErr from an error.
func NewCommandErr(err error) *CommandErr {
	return &CommandErr{Message: err.Error()}
}

// TypeID implements SerializableMessage.
func (m *CommandErr) TypeID() uint32 { return CommandErrTypeID }

// ProtoMessage implements proto.Message.
func (m *CommandErr) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandErr) Reset() { *m = CommandErr{} }

// String implements proto.Message.
func (m *CommandErr) String() string { return proto.CompactTextString(m) }

// Error implements error.
func (m *CommandErr) Error() string { return m.Message }

// MotorSpeed drives a motor at a signed speed in pulses per second.
type MotorSpeed struct {
	Motor uint32 `protobuf:"varint,1,opt,name=motor,proto3" json:"motor,omitempty"`
	Qpps  int32  `protobuf:"varint,2,opt,name=qpps,proto3" json:"qpps,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *MotorSpeed) TypeID() uint32 { return MotorSpeedTypeID }

// ProtoMessage implements proto.Message.
func (m *MotorSpeed) ProtoMessage() {}

// Reset implements proto.Message.
func (m *MotorSpeed) Reset() { *m = MotorSpeed{} }

// String implements proto.Message.
func (m *MotorSpeed) String() string { return proto.CompactTextString(m) }

// MotorDuty drives a motor with a signed duty, -127 to 127.
type MotorDuty struct {
	Motor uint32 `protobuf:"varint,1,opt,name=motor,proto3" json:"motor,omitempty"`
	Duty  int32  `protobuf:"zigzag32,2,opt,name=duty,proto3" json:"duty,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *MotorDuty) TypeID() uint32 { return MotorDutyTypeID }

// ProtoMessage implements proto.Message.
func (m *MotorDuty) ProtoMessage() {}

// Reset implements proto.Message.
func (m *MotorDuty) Reset() { *m = MotorDuty{} }

// String implements proto.Message.
func (m *MotorDuty) String() string { return proto.CompactTextString(m) }

// MotorStop stops both motors.
type MotorStop struct {
}

// TypeID implements SerializableMessage.
func (m *MotorStop) TypeID() uint32 { return MotorStopTypeID }

// ProtoMessage implements proto.Message.
func (m *MotorStop) ProtoMessage() {}

// Reset implements proto.Message.
func (m *MotorStop) Reset() { *m = MotorStop{} }

// String implements proto.Message.
func (m *MotorStop) String() string { return proto.CompactTextString(m) }

// ResetEncoders zeroes both encoders.
type ResetEncoders struct {
}

// TypeID implements SerializableMessage.
func (m *ResetEncoders) TypeID() uint32 { return ResetEncodersTypeID }

// ProtoMessage implements proto.Message.
func (m *ResetEncoders) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ResetEncoders) Reset() { *m = ResetEncoders{} }

// String implements proto.Message.
func (m *ResetEncoders) String() string { return proto.CompactTextString(m) }

// EncoderQuery requests an EncoderState reply.
type EncoderQuery struct {
}

// TypeID implements SerializableMessage.
func (m *EncoderQuery) TypeID() uint32 { return EncoderQueryTypeID }

// ProtoMessage implements proto.Message.
func (m *EncoderQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *EncoderQuery) Reset() { *m = EncoderQuery{} }

// String implements proto.Message.
func (m *EncoderQuery) String() string { return proto.CompactTextString(m) }

// EncoderState reports cumulative encoder positions.
type EncoderState struct {
	M1 int64 `protobuf:"zigzag64,1,opt,name=m1,proto3" json:"m1,omitempty"`
	M2 int64 `protobuf:"zigzag64,2,opt,name=m2,proto3" json:"m2,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *EncoderState) TypeID() uint32 { return EncoderStateTypeID }

// ProtoMessage implements proto.Message.
func (m *EncoderState) ProtoMessage() {}

// Reset implements proto.Message.
func (m *EncoderState) Reset() { *m = EncoderState{} }

// String implements proto.Message.
func (m *EncoderState) String() string { return proto.CompactTextString(m) }

// BatteryQuery requests a BatteryState reply.
type BatteryQuery struct {
}

// TypeID implements SerializableMessage.
func (m *BatteryQuery) TypeID() uint32 { return BatteryQueryTypeID }

// ProtoMessage implements proto.Message.
func (m *BatteryQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *BatteryQuery) Reset() { *m = BatteryQuery{} }

// String implements proto.Message.
func (m *BatteryQuery) String() string { return proto.CompactTextString(m) }

// BatteryState reports voltages in 0.1V and temperature in 0.1°C.
type BatteryState struct {
	Main        uint32 `protobuf:"varint,1,opt,name=main,proto3" json:"main,omitempty"`
	Logic       uint32 `protobuf:"varint,2,opt,name=logic,proto3" json:"logic,omitempty"`
	Temperature uint32 `protobuf:"varint,3,opt,name=temperature,proto3" json:"temperature,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *BatteryState) TypeID() uint32 { return BatteryStateTypeID }

// ProtoMessage implements proto.Message.
func (m *BatteryState) ProtoMessage() {}

// Reset implements proto.Message.
func (m *BatteryState) Reset() { *m = BatteryState{} }

// String implements proto.Message.
func (m *BatteryState) String() string { return proto.CompactTextString(m) }
