// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// trackedConn is the net.Conn handed to decoy handlers. Writes are
// serialised with the server's close, so a reply that has started is never
// cut off by shutdown. Every read and write gets a fresh idle deadline.
type trackedConn struct {
	net.Conn
	idle time.Duration

	wmu      sync.Mutex
	byServer atomic.Bool
}

func newTrackedConn(c net.Conn, idle time.Duration) *trackedConn {
	return &trackedConn{Conn: c, idle: idle}
}

func (c *trackedConn) Read(p []byte) (int, error) {
	if c.idle > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.idle)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *trackedConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.byServer.Load() {
		return 0, net.ErrClosed
	}
	if c.idle > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.idle)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}

// closeAfterWrite waits for any write in progress, then closes.
func (c *trackedConn) closeAfterWrite() {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.byServer.Store(true)
	c.Conn.Close()
}

// forceClose closes without waiting for a write in progress.
func (c *trackedConn) forceClose() {
	c.byServer.Store(true)
	c.Conn.Close()
}

func (c *trackedConn) closedByServer() bool {
	return c.byServer.Load()
}
