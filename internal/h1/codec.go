package h1

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// The decoders below read from the transport's inbound window and implement
// the non-blocking ContentDecoder contract: Read returns whatever is
// currently available and 0 when the window is empty.

// LengthDecoder decodes a Content-Length delimited body.
type LengthDecoder struct {
	src       *bytes.Buffer
	remaining int64
}

// NewLengthDecoder creates a decoder for a body of n bytes read from src.
func NewLengthDecoder(src *bytes.Buffer, n int64) *LengthDecoder {
	return &LengthDecoder{src: src, remaining: n}
}

func (d *LengthDecoder) Read(p []byte) (int, error) {
	if d.remaining <= 0 {
		return 0, io.EOF
	}
	limit := len(p)
	if int64(limit) > d.remaining {
		limit = int(d.remaining)
	}
	n := copy(p[:limit], d.src.Bytes())
	d.src.Next(n)
	d.remaining -= int64(n)
	if d.remaining == 0 {
		return n, io.EOF
	}
	return n, nil
}

// Completed reports whether the full declared length has been decoded.
func (d *LengthDecoder) Completed() bool { return d.remaining <= 0 }

// UntilCloseDecoder decodes a body delimited only by connection close. The
// transport marks EOF when the peer disconnects.
type UntilCloseDecoder struct {
	src *bytes.Buffer
	eof bool
}

// NewUntilCloseDecoder creates a decoder reading src until the peer closes.
func NewUntilCloseDecoder(src *bytes.Buffer) *UntilCloseDecoder {
	return &UntilCloseDecoder{src: src}
}

func (d *UntilCloseDecoder) Read(p []byte) (int, error) {
	n := copy(p, d.src.Bytes())
	d.src.Next(n)
	if d.eof && d.src.Len() == 0 {
		return n, io.EOF
	}
	return n, nil
}

// MarkEOF records that the peer closed the connection.
func (d *UntilCloseDecoder) MarkEOF() { d.eof = true }

// Completed reports whether the peer closed and the window drained.
func (d *UntilCloseDecoder) Completed() bool { return d.eof && d.src.Len() == 0 }

// chunked decoder states
const (
	chunkSize = iota
	chunkData
	chunkDataCRLF
	chunkTrailer
	chunkDone
)

// ChunkedDecoder incrementally decodes chunked transfer coding from the
// transport's inbound window.
type ChunkedDecoder struct {
	src       *bytes.Buffer
	state     int
	remaining int64
}

// NewChunkedDecoder creates a chunked-coding decoder reading from src.
func NewChunkedDecoder(src *bytes.Buffer) *ChunkedDecoder {
	return &ChunkedDecoder{src: src, state: chunkSize}
}

func (d *ChunkedDecoder) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		switch d.state {
		case chunkSize:
			line, ok := d.readLine()
			if !ok {
				return total, nil
			}
			// Chunk extensions after ';' are ignored.
			if semi := bytes.IndexByte(line, ';'); semi != -1 {
				line = line[:semi]
			}
			size, err := strconv.ParseInt(string(bytes.TrimSpace(line)), 16, 64)
			if err != nil || size < 0 {
				return total, fmt.Errorf("invalid chunk size %q", line)
			}
			if size == 0 {
				d.state = chunkTrailer
				continue
			}
			d.remaining = size
			d.state = chunkData
		case chunkData:
			if d.src.Len() == 0 {
				return total, nil
			}
			limit := len(p) - total
			if int64(limit) > d.remaining {
				limit = int(d.remaining)
			}
			n := copy(p[total:total+limit], d.src.Bytes())
			d.src.Next(n)
			d.remaining -= int64(n)
			total += n
			if d.remaining == 0 {
				d.state = chunkDataCRLF
			}
		case chunkDataCRLF:
			if d.src.Len() < 2 {
				return total, nil
			}
			d.src.Next(2)
			d.state = chunkSize
		case chunkTrailer:
			// Trailer section: lines until the empty one.
			line, ok := d.readLine()
			if !ok {
				return total, nil
			}
			if len(line) == 0 {
				d.state = chunkDone
				return total, io.EOF
			}
		case chunkDone:
			return total, io.EOF
		}
	}
	return total, nil
}

// readLine consumes one CRLF-terminated line from the window, reporting
// ok=false when the terminator has not arrived yet.
func (d *ChunkedDecoder) readLine() ([]byte, bool) {
	idx := bytes.Index(d.src.Bytes(), crlf)
	if idx == -1 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, d.src.Bytes()[:idx])
	d.src.Next(idx + 2)
	return line, true
}

// Completed reports whether the terminal chunk has been decoded.
func (d *ChunkedDecoder) Completed() bool { return d.state == chunkDone }

// The encoders below frame an outgoing body into the transport's outbound
// writer and implement the non-blocking ContentEncoder contract.

// LengthEncoder frames a Content-Length delimited body.
type LengthEncoder struct {
	w         io.Writer
	remaining int64
	completed bool
}

// NewLengthEncoder creates an encoder for a body of n bytes written to w.
func NewLengthEncoder(w io.Writer, n int64) *LengthEncoder {
	return &LengthEncoder{w: w, remaining: n, completed: n == 0}
}

func (e *LengthEncoder) Write(p []byte) (int, error) {
	if e.completed {
		return 0, fmt.Errorf("body already complete")
	}
	if int64(len(p)) > e.remaining {
		return 0, fmt.Errorf("body exceeds declared content length")
	}
	n, err := e.w.Write(p)
	e.remaining -= int64(n)
	if e.remaining == 0 {
		e.completed = true
	}
	return n, err
}

// Complete finalizes the body; an underrun of the declared length is an
// error.
func (e *LengthEncoder) Complete() error {
	if e.remaining > 0 {
		return fmt.Errorf("body shorter than declared content length: %d bytes missing", e.remaining)
	}
	e.completed = true
	return nil
}

func (e *LengthEncoder) Completed() bool { return e.completed }

var lastChunk = []byte("0\r\n\r\n")

// ChunkedEncoder frames a body with chunked transfer coding.
type ChunkedEncoder struct {
	w         io.Writer
	completed bool
}

// NewChunkedEncoder creates a chunked-coding encoder writing to w.
func NewChunkedEncoder(w io.Writer) *ChunkedEncoder {
	return &ChunkedEncoder{w: w}
}

func (e *ChunkedEncoder) Write(p []byte) (int, error) {
	if e.completed {
		return 0, fmt.Errorf("body already complete")
	}
	if len(p) == 0 {
		return 0, nil
	}
	var head [16]byte
	size := strconv.AppendInt(head[:0], int64(len(p)), 16)
	size = append(size, crlf...)
	if _, err := e.w.Write(size); err != nil {
		return 0, err
	}
	n, err := e.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := e.w.Write(crlf); err != nil {
		return n, err
	}
	return n, nil
}

// Complete writes the terminal chunk.
func (e *ChunkedEncoder) Complete() error {
	if e.completed {
		return nil
	}
	e.completed = true
	_, err := e.w.Write(lastChunk)
	return err
}

func (e *ChunkedEncoder) Completed() bool { return e.completed }
