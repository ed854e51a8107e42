// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/absmach/honeycomb/pkg/errors"
)

// RotatingFile is an append-only file that rolls over into numbered backups
// (path.1 is the newest, path.N the oldest) once a write would push it past
// MaxBytes. Each Write lands entirely in one file, so a record is never
// split across a rotation.
//
// A zero MaxBytes or zero Backups disables rotation.
type RotatingFile struct {
	path     string
	maxBytes int64
	backups  int

	mu   sync.Mutex
	file *os.File
	size int64
}

// OpenRotatingFile opens (or creates) path for appending.
func OpenRotatingFile(path string, maxBytes int64, backups int) (*RotatingFile, error) {
	if maxBytes < 0 || backups < 0 {
		return nil, fmt.Errorf("audit: invalid rotation policy max_bytes=%d backups=%d", maxBytes, backups)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &errors.LogSinkError{Op: "open", Path: path, Err: err}
		}
	}

	rf := &RotatingFile{path: path, maxBytes: maxBytes, backups: backups}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write appends p, rotating first if p would overflow the active file.
// If rotation fails the record is still written to whatever file is open
// and the rotation error is returned.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	var rotateErr error
	if rf.shouldRotate(int64(len(p))) {
		rotateErr = rf.rotate()
	}
	if rf.file == nil {
		if err := rf.open(); err != nil {
			return 0, errors.Join(rotateErr, err)
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	if err != nil {
		return n, &errors.LogSinkError{Op: "write", Path: rf.path, Err: err}
	}
	return n, rotateErr
}

// Path returns the path of the active file.
func (rf *RotatingFile) Path() string { return rf.path }

// Close closes the active file.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

func (rf *RotatingFile) shouldRotate(n int64) bool {
	if rf.maxBytes == 0 || rf.backups == 0 {
		return false
	}
	// An empty file always takes the record, even an oversized one.
	return rf.size > 0 && rf.size+n > rf.maxBytes
}

// rotate shifts path.i to path.i+1, dropping the oldest, and moves the
// active file to path.1.
func (rf *RotatingFile) rotate() error {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			return &errors.LogSinkError{Op: "rotate", Path: rf.path, Err: err}
		}
		rf.file = nil
	}

	for i := rf.backups - 1; i >= 1; i-- {
		src := rf.backupName(i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, rf.backupName(i+1)); err != nil {
			return &errors.LogSinkError{Op: "rotate", Path: src, Err: err}
		}
	}
	if err := os.Rename(rf.path, rf.backupName(1)); err != nil && !os.IsNotExist(err) {
		return &errors.LogSinkError{Op: "rotate", Path: rf.path, Err: err}
	}

	return rf.open()
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &errors.LogSinkError{Op: "open", Path: rf.path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &errors.LogSinkError{Op: "open", Path: rf.path, Err: err}
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

func (rf *RotatingFile) backupName(i int) string {
	return fmt.Sprintf("%s.%d", rf.path, i)
}
