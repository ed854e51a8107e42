// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ssh implements the SSH-like decoy: a version banner and nothing
// else. No key exchange is ever attempted; every buffer the peer sends is
// recorded until it goes away.
package ssh

import (
	"context"
	"io"
	"net"

	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/absmach/honeycomb/pkg/handler"
)

// Banner is the identification string sent on connect.
const Banner = "SSH-2.0-OpenSSH_7.9p1 Debian-10\r\n"

const readSize = 1024

// Handler is the SSH-like decoy.
type Handler struct{}

var _ handler.Handler = (*Handler)(nil)

// Handle sends the banner once, then records inbound buffers verbatim.
func (h *Handler) Handle(ctx context.Context, conn net.Conn, hctx *handler.Context) error {
	proto, remote := hctx.Protocol.String(), hctx.RemoteAddr

	if _, err := io.WriteString(conn, Banner); err != nil {
		return errors.Write(proto, remote, err)
	}

	buf := make([]byte, readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			hctx.Command(string(buf[:n]))
		}
		if err != nil {
			return errors.Read(proto, remote, err)
		}
	}
}
