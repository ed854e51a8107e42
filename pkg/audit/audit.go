// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Kind is the event kind of a record.
type Kind string

const (
	KindConnect Kind = "connect"
	KindCommand Kind = "command"
	KindError   Kind = "error"
)

// Record is a single audit event. Records are values: once handed to a Sink
// they are never modified.
type Record struct {
	// Time is stamped by the Logger when the record is written.
	Time     time.Time
	Sequence uint64

	Protocol   string // protocol tag, e.g. "FTP"
	RemoteAddr string
	SessionID  string
	Kind       Kind
	Payload    string
}

// Sink receives audit records. Implementations must be safe for concurrent
// use and must never block a handler on a failing backend.
type Sink interface {
	Log(rec Record)
}

// Discard is a Sink that drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Log(Record) {}

// Config holds the audit logger configuration.
type Config struct {
	// Path is the active log file.
	Path string

	// MaxBytes is the rotation threshold of the active file.
	MaxBytes int64

	// Backups is the number of numbered backups retained.
	Backups int

	// Logger receives sink failures. It is never the audit file itself.
	Logger *slog.Logger
}

// Logger is the shared audit sink. It serialises all writers, stamps each
// record with its emission time and a sequence number under the same lock,
// and so yields a total order in the file.
type Logger struct {
	mu      sync.Mutex
	out     io.WriteCloser
	handler slog.Handler
	seq     uint64
	now     func() time.Time

	logger   *slog.Logger
	failOnce sync.Once
	lastErr  error
}

var _ Sink = (*Logger)(nil)

// Open creates the audit Logger writing to a RotatingFile.
func Open(cfg Config) (*Logger, error) {
	rf, err := OpenRotatingFile(cfg.Path, cfg.MaxBytes, cfg.Backups)
	if err != nil {
		return nil, err
	}
	return New(rf, cfg.Logger), nil
}

// New creates a Logger over an arbitrary writer. Each record reaches out in
// exactly one Write call.
func New(out io.WriteCloser, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		out:     out,
		handler: slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}),
		now:     time.Now,
		logger:  logger,
	}
}

// Log writes rec. Failures are reported once on the operational logger and
// remembered for Err; they are never returned to the caller.
func (l *Logger) Log(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	rec.Sequence = l.seq
	rec.Time = l.now()

	level := slog.LevelInfo
	if rec.Kind == KindError {
		level = slog.LevelError
	}
	r := slog.NewRecord(rec.Time, level, string(rec.Kind), 0)
	r.AddAttrs(
		slog.Uint64("seq", rec.Sequence),
		slog.String("protocol", rec.Protocol),
		slog.String("remote", rec.RemoteAddr),
		slog.String("session", rec.SessionID),
		slog.String("payload", rec.Payload),
	)

	if err := l.handler.Handle(context.Background(), r); err != nil {
		l.lastErr = err
		l.failOnce.Do(func() {
			l.logger.Error("audit sink failure, continuing best-effort",
				slog.String("error", err.Error()))
		})
	}
}

// Err returns the most recent sink failure, if any.
func (l *Logger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Close closes the underlying writer. Records logged afterwards fail.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
