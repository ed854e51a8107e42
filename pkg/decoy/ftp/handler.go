// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ftp

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"

	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/absmach/honeycomb/pkg/handler"
)

// maxLine bounds a single control line. Longer input is consumed in
// maxLine-sized chunks, each treated as a line.
const maxLine = 1024

// Handler is the FTP-like decoy.
type Handler struct{}

var _ handler.Handler = (*Handler)(nil)

// Handle greets the peer and answers control lines until QUIT, EOF or a
// socket error.
func (h *Handler) Handle(ctx context.Context, conn net.Conn, hctx *handler.Context) error {
	proto, remote := hctx.Protocol.String(), hctx.RemoteAddr
	sess := &Session{}

	banner, err := sess.Greet()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(conn, banner); err != nil {
		return errors.Write(proto, remote, err)
	}

	r := bufio.NewReaderSize(conn, maxLine)
	for sess.Stage() != StageClosed {
		line, readErr := readLine(r)
		if line == "" && readErr != nil {
			return errors.Read(proto, remote, readErr)
		}

		hctx.Command(line)
		reply, err := sess.Apply(ParseCommand(line))
		if err != nil {
			return err
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			return errors.Write(proto, remote, err)
		}

		if readErr != nil {
			// Last partial line before the peer went away.
			return errors.Read(proto, remote, readErr)
		}
	}

	return nil
}

// readLine returns the next trimmed line. A bare "\r\n" yields an empty
// line with a nil error, which the caller answers like any unknown command.
func readLine(r *bufio.Reader) (string, error) {
	raw, err := r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		err = nil
	}
	if len(raw) == 0 {
		if err == nil {
			err = io.EOF
		}
		return "", err
	}

	line := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	if line == "" && err == nil {
		return "", nil
	}
	return line, err
}
