// Package comm provides L0 protocol support.
package comm

// L0 protocol is communicated between the motor controller firmware and
// the L1 controller over a half-duplex serial link. Every transaction is
// initiated by the host and framed as
//
//	[address][command][payload...][crc16 hi][crc16 lo]
//
// A write transaction is acknowledged by a single 0xff byte. A read
// transaction is answered with the requested fields followed by a crc16
// trailer computed over the address and command sent by the host and every
// field byte returned by the device.
//
// The link has no sequence numbers or resynchronization. Stale input is
// discarded before each attempt, and an attempt that stalls longer than the
// stream timeout is retried from scratch up to the configured budget.
//
// A Conn is not safe for concurrent use; callers sharing a link must
// serialize transactions.
//
// Producer: L0 firmware
// Consumer: L1 controller
