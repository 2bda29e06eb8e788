// Package h1 provides the HTTP/1.x wire codec for the client engine:
// incremental response-head parsing, request-head writing, and the content
// codecs that frame message bodies.
package h1

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/albertbausili/surge/pkg/exchange"
)

var (
	bHTTP11 = []byte("HTTP/1.1")
	bHTTP10 = []byte("HTTP/1.0")

	sHTTP11 = "HTTP/1.1"
	sHTTP10 = "HTTP/1.0"
)

// Parser provides incremental HTTP/1.x response-head parsing. Reset installs
// a new buffer view; ParseResponse reports 0 consumed bytes until a complete
// head is available.
type Parser struct {
	buf []byte
	pos int
}

// NewParser creates a response parser.
func NewParser() *Parser {
	return &Parser{}
}

// Reset resets the parser with new buffer data.
func (p *Parser) Reset(buf []byte) {
	p.buf = buf
	p.pos = 0
}

// ParseResponse parses the status line and headers from the buffer into
// resp. Returns the number of bytes consumed, or 0 when more data is needed.
func (p *Parser) ParseResponse(resp *exchange.Response) (int, error) {
	if p.pos >= len(p.buf) {
		return 0, nil
	}

	complete, err := p.parseStatusLine(resp)
	if err != nil {
		return 0, err
	}
	if !complete {
		return 0, nil
	}

	if cap(resp.Headers) >= 16 {
		resp.Headers = resp.Headers[:0]
	} else {
		resp.Headers = make([][2]string, 0, 16)
	}

	complete, err = p.parseHeaders(resp)
	if err != nil {
		return 0, err
	}
	if !complete {
		return 0, nil
	}
	return p.pos, nil
}

// parseStatusLine parses VERSION SP STATUS SP REASON CRLF, advancing p.pos.
// Returns complete=false if more data is needed.
func (p *Parser) parseStatusLine(resp *exchange.Response) (bool, error) {
	lineEnd := bytes.Index(p.buf[p.pos:], []byte("\r\n"))
	if lineEnd == -1 {
		return false, nil
	}
	line := p.buf[p.pos : p.pos+lineEnd]
	p.pos += lineEnd + 2

	sp := bytes.IndexByte(line, ' ')
	if sp == -1 {
		return false, fmt.Errorf("invalid status line")
	}
	version := line[:sp]
	rest := line[sp+1:]

	switch {
	case bytes.Equal(version, bHTTP11):
		resp.Version = sHTTP11
	case bytes.Equal(version, bHTTP10):
		resp.Version = sHTTP10
	default:
		return false, fmt.Errorf("unsupported HTTP version: %s", version)
	}

	// Status code is exactly three digits; the reason phrase is optional.
	if len(rest) < 3 {
		return false, fmt.Errorf("invalid status line")
	}
	status, err := strconv.Atoi(string(rest[:3]))
	if err != nil || status < 100 {
		return false, fmt.Errorf("invalid status code %q", rest)
	}
	resp.Status = status
	if len(rest) > 4 {
		resp.Reason = string(rest[4:])
	} else {
		resp.Reason = ""
	}
	return true, nil
}

// parseHeaders parses headers until CRLF CRLF, advancing p.pos.
// Returns complete=false if more data is needed.
func (p *Parser) parseHeaders(resp *exchange.Response) (bool, error) {
	for {
		lineEnd := bytes.Index(p.buf[p.pos:], []byte("\r\n"))
		if lineEnd == -1 {
			return false, nil
		}
		line := p.buf[p.pos : p.pos+lineEnd]
		p.pos += lineEnd + 2
		if len(line) == 0 {
			return true, nil
		}
		colonIdx := bytes.IndexByte(line, ':')
		if colonIdx == -1 {
			return false, fmt.Errorf("invalid header line")
		}
		name := asciiLower(bytes.TrimSpace(line[:colonIdx]))
		value := string(bytes.TrimSpace(line[colonIdx+1:]))
		resp.Headers = append(resp.Headers, [2]string{name, value})
	}
}

// asciiLower lowercases an ASCII header name, avoiding the allocation for
// names that are already lowercase.
func asciiLower(b []byte) string {
	lower := true
	for _, c := range b {
		if 'A' <= c && c <= 'Z' {
			lower = false
			break
		}
	}
	if lower {
		return string(b)
	}
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c |= 0x20
		}
		out[i] = c
	}
	return string(out)
}

// Framing describes how a message body is delimited on the wire.
type Framing int

const (
	// FramingNone means the message has no body.
	FramingNone Framing = iota
	// FramingLength means the body is Content-Length delimited.
	FramingLength
	// FramingChunked means the body uses chunked transfer coding.
	FramingChunked
	// FramingUntilClose means the body runs until the peer closes.
	FramingUntilClose
)

// ResponseFraming applies the HTTP/1.x body rules for a response paired with
// the request method that produced it.
func ResponseFraming(method string, resp *exchange.Response) (Framing, int64) {
	if method == "HEAD" || resp.Status < 200 || resp.Status == 204 || resp.Status == 304 {
		return FramingNone, 0
	}
	if resp.Chunked() {
		return FramingChunked, -1
	}
	if n := resp.ContentLength(); n >= 0 {
		if n == 0 {
			return FramingNone, 0
		}
		return FramingLength, n
	}
	return FramingUntilClose, -1
}
