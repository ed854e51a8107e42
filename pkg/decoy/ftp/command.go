// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ftp

import (
	"fmt"
	"strings"
)

// Command is the decoy's view of an FTP control line.
type Command int

const (
	CmdUnknown Command = iota
	CmdUser
	CmdPass
	CmdQuit
)

func (c Command) String() string {
	switch c {
	case CmdUser:
		return "USER"
	case CmdPass:
		return "PASS"
	case CmdQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

// ParseCommand classifies a trimmed control line. USER and PASS match on a
// case-insensitive prefix with no separator required, so "PASSWORD123" is a
// PASS; QUIT must match the whole line.
func ParseCommand(line string) Command {
	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, "USER"):
		return CmdUser
	case strings.HasPrefix(upper, "PASS"):
		return CmdPass
	case upper == "QUIT":
		return CmdQuit
	default:
		return CmdUnknown
	}
}

// Stage is the position of a session in the FTP state machine.
type Stage int

const (
	StageGreeting Stage = iota
	StageAwaitCommand
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageGreeting:
		return "GREETING"
	case StageAwaitCommand:
		return "AWAIT_COMMAND"
	case StageClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Wire replies.
const (
	Banner              = "220 Fake FTP Service Ready\r\n"
	ReplyUserOK         = "331 Username OK, need password\r\n"
	ReplyLoginIncorrect = "530 Login incorrect\r\n"
	ReplyGoodbye        = "221 Goodbye.\r\n"
	ReplyNotImplemented = "502 Command not implemented\r\n"
)

type transition struct {
	reply string
	next  Stage
}

// transitions is the AWAIT_COMMAND row of the state table. Login never
// succeeds.
var transitions = map[Command]transition{
	CmdUser:    {reply: ReplyUserOK, next: StageAwaitCommand},
	CmdPass:    {reply: ReplyLoginIncorrect, next: StageAwaitCommand},
	CmdQuit:    {reply: ReplyGoodbye, next: StageClosed},
	CmdUnknown: {reply: ReplyNotImplemented, next: StageAwaitCommand},
}

// Session is the per-connection FTP state.
type Session struct {
	stage Stage
}

// Stage returns the current stage.
func (s *Session) Stage() Stage { return s.stage }

// Greet moves the session from GREETING to AWAIT_COMMAND and returns the
// banner to send.
func (s *Session) Greet() (string, error) {
	if s.stage != StageGreeting {
		return "", fmt.Errorf("ftp: greeting in stage %s", s.stage)
	}
	if err := s.advance(StageAwaitCommand); err != nil {
		return "", err
	}
	return Banner, nil
}

// Apply runs cmd through the transition table and returns the reply.
func (s *Session) Apply(cmd Command) (string, error) {
	if s.stage != StageAwaitCommand {
		return "", fmt.Errorf("ftp: command %s in stage %s", cmd, s.stage)
	}
	t := transitions[cmd]
	if err := s.advance(t.next); err != nil {
		return "", err
	}
	return t.reply, nil
}

// advance enforces monotonic stage transitions.
func (s *Session) advance(next Stage) error {
	if next < s.stage {
		return fmt.Errorf("ftp: illegal transition %s -> %s", s.stage, next)
	}
	s.stage = next
	return nil
}
