// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/absmach/honeycomb/pkg/handler"
)

// DefaultFirmware is the version advertised by the admin panel page.
const DefaultFirmware = "v1.0.0"

// DefaultMaxBodyBytes bounds the captured POST body.
const DefaultMaxBodyBytes = 1 << 20

var errMalformedLine = errors.New("malformed request line")

// Handler is the HTTP-like decoy.
type Handler struct {
	firmware string
	maxBody  int64
	now      func() time.Time
}

var _ handler.Handler = (*Handler)(nil)

// New returns a decoy advertising the given firmware version and capturing
// at most maxBody bytes of each POST body. Zero values select the defaults.
func New(firmware string, maxBody int64) *Handler {
	if firmware == "" {
		firmware = DefaultFirmware
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{
		firmware: firmware,
		maxBody:  maxBody,
		now:      time.Now,
	}
}

type reply struct {
	status      int
	contentType string
	body        string
}

// Handle reads one request, records it and writes one response. Request
// headers are bounded by http.DefaultMaxHeaderBytes.
func (h *Handler) Handle(ctx context.Context, conn net.Conn, hctx *handler.Context) error {
	proto, remote := hctx.Protocol.String(), hctx.RemoteAddr

	lr := &io.LimitedReader{R: conn, N: http.DefaultMaxHeaderBytes}
	req, err := readRequest(bufio.NewReader(lr))
	if err != nil {
		return readError(proto, remote, lr, err)
	}
	lr.N = h.maxBody

	var rep reply
	switch req.Method {
	case http.MethodGet:
		hctx.Command(req.Method + " " + req.RequestURI)
		rep = h.get(req.URL.Path)
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(req.Body, h.maxBody))
		hctx.Command(req.Method + " " + req.URL.Path + ", data: " + string(body))
		if err != nil {
			return errors.Read(proto, remote, err)
		}
		rep = reply{status: http.StatusOK, body: postReply}
	default:
		hctx.Command(req.Method + " " + req.RequestURI)
		rep = reply{status: http.StatusNotImplemented, contentType: "text/plain", body: unsupportedReply}
	}

	out, err := h.encode(rep)
	if err != nil {
		return err
	}
	if _, err := conn.Write(out); err != nil {
		return errors.Write(proto, remote, err)
	}
	return nil
}

// readRequest parses one request from br. A request-target starting with
// "/" that fails URL parsing is still served: the request is parsed with
// target "/" and req.URL.Path carries the raw path.
func readRequest(br *bufio.Reader) (*http.Request, error) {
	line, err := textproto.NewReader(br).ReadLine()
	if err != nil {
		return nil, err
	}
	method, rest, ok1 := strings.Cut(line, " ")
	target, version, ok2 := strings.Cut(rest, " ")
	if !ok1 || !ok2 || method == "" {
		return nil, errMalformedLine
	}

	parsed, rawPath := target, ""
	if _, err := url.ParseRequestURI(target); err != nil && strings.HasPrefix(target, "/") {
		rawPath, _, _ = strings.Cut(target, "?")
		parsed = "/"
	}

	head := strings.NewReader(method + " " + parsed + " " + version + "\r\n")
	req, err := http.ReadRequest(bufio.NewReader(io.MultiReader(head, br)))
	if err != nil {
		return nil, err
	}
	req.RequestURI = target
	if rawPath != "" {
		req.URL.Path = rawPath
	}
	return req, nil
}

func readError(proto, remote string, lr *io.LimitedReader, err error) error {
	switch {
	case lr.N <= 0:
		return &errors.ProtocolDecodeError{Protocol: proto, Reason: "request header too large", Err: err}
	case errors.Is(err, errMalformedLine):
		return &errors.ProtocolDecodeError{Protocol: proto, Reason: "malformed request line"}
	case errors.IsClosed(err) || errors.IsTimeout(err):
		return errors.Read(proto, remote, err)
	default:
		return &errors.ProtocolDecodeError{Protocol: proto, Reason: "malformed request", Err: err}
	}
}

func (h *Handler) get(path string) reply {
	switch path {
	case "/login":
		return reply{status: http.StatusOK, contentType: contentHTML, body: loginPage}
	case "/status":
		return reply{status: http.StatusOK, contentType: contentJSON, body: statusBody}
	default:
		return reply{status: http.StatusOK, contentType: contentHTML, body: adminPage(h.firmware)}
	}
}

// encode renders a complete response so it can be sent with one write.
func (h *Handler) encode(rep reply) ([]byte, error) {
	header := http.Header{}
	header.Set("Date", h.now().UTC().Format(http.TimeFormat))
	if rep.contentType != "" {
		header.Set("Content-Type", rep.contentType)
	}

	resp := &http.Response{
		StatusCode:    rep.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(rep.body)),
		ContentLength: int64(len(rep.body)),
		Close:         true,
	}

	var buf bytes.Buffer
	if err := resp.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
