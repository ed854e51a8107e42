// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"bytes"
	"context"
	"net"

	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/absmach/honeycomb/pkg/handler"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// readSize is the size of the single read the decoy performs.
const readSize = 1024

// connectMarker is the first byte of a CONNECT packet: type 1, no flags.
const connectMarker = packets.Connect << 4

// connack is CONNACK "accepted, no session present": 20 02 00 00.
var connack = encodeConnack()

func encodeConnack() []byte {
	ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
	ack.SessionPresent = false
	ack.ReturnCode = packets.Accepted

	var buf bytes.Buffer
	if err := ack.Write(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Handler is the MQTT-like decoy: one read, at most one reply.
type Handler struct{}

var _ handler.Handler = (*Handler)(nil)

// Handle reads one buffer, records it verbatim and acknowledges it if it
// starts like a CONNECT. Client id and credentials are never looked at.
// Framing that is truncated or that paho cannot parse yields a ProtocolDecodeError after the
// reply decision, so the listener records it while the peer sees no
// difference.
func (h *Handler) Handle(ctx context.Context, conn net.Conn, hctx *handler.Context) error {
	proto, remote := hctx.Protocol.String(), hctx.RemoteAddr

	buf := make([]byte, readSize)
	n, err := conn.Read(buf)
	if n == 0 {
		return errors.Read(proto, remote, err)
	}
	buf = buf[:n]
	hctx.Command(string(buf))

	if buf[0] == connectMarker {
		if _, err := conn.Write(connack); err != nil {
			return errors.Write(proto, remote, err)
		}
	}

	if !complete(buf) {
		return &errors.ProtocolDecodeError{Protocol: proto, Reason: "truncated packet"}
	}
	if _, err := packets.ReadPacket(bytes.NewReader(buf)); err != nil {
		return &errors.ProtocolDecodeError{Protocol: proto, Reason: "unparseable control packet", Err: err}
	}
	return nil
}

// complete reports whether buf holds the whole packet its fixed header
// announces. paho allocates the announced remaining length up front.
func complete(buf []byte) bool {
	length, mult := 0, 1
	for i := 1; i < len(buf) && i <= 4; i++ {
		length += int(buf[i]&0x7f) * mult
		if buf[i]&0x80 == 0 {
			return length <= len(buf)-i-1
		}
		mult <<= 7
	}
	return false
}
