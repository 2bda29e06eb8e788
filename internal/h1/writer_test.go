package h1

import (
	"bytes"
	"testing"

	"github.com/albertbausili/surge/pkg/exchange"
)

func TestAppendRequestHead(t *testing.T) {
	req := exchange.NewRequest("GET", "/a")
	req.SetHeader("host", "example.com")
	req.SetHeader("accept", "*/*")

	bb := AcquireHeadBuffer()
	defer ReleaseHeadBuffer(bb)
	AppendRequestHead(bb, req)

	want := "GET /a HTTP/1.1\r\nhost: example.com\r\naccept: */*\r\n\r\n"
	if string(bb.B) != want {
		t.Errorf("head = %q, want %q", bb.B, want)
	}
}

func TestAppendRequestHeadDefaults(t *testing.T) {
	req := &exchange.Request{Method: "GET"}
	bb := AcquireHeadBuffer()
	defer ReleaseHeadBuffer(bb)
	AppendRequestHead(bb, req)

	if got := string(bb.B); got != "GET / HTTP/1.1\r\n\r\n" {
		t.Errorf("head = %q", got)
	}
}

func TestRequestFraming(t *testing.T) {
	req := exchange.NewRequest("GET", "/")
	if f, _ := RequestFraming(req); f != FramingNone {
		t.Errorf("framing without entity = %v, want none", f)
	}

	req.Entity = exchange.NewBytesEntity([]byte("data"))
	if f, n := RequestFraming(req); f != FramingLength || n != 4 {
		t.Errorf("framing = %v, %d, want length 4", f, n)
	}

	req.SetHeader("content-length", "4")
	if f, n := RequestFraming(req); f != FramingLength || n != 4 {
		t.Errorf("framing with explicit header = %v, %d, want length 4", f, n)
	}

	req.DelHeader("content-length")
	req.SetHeader("transfer-encoding", "chunked")
	if f, _ := RequestFraming(req); f != FramingChunked {
		t.Errorf("framing = %v, want chunked", f)
	}

	req.DelHeader("transfer-encoding")
	req.Entity = exchange.NewReaderEntity(bytes.NewReader(nil), -1)
	if f, _ := RequestFraming(req); f != FramingChunked {
		t.Errorf("framing for unknown length = %v, want chunked", f)
	}
}

func TestLengthEncoder(t *testing.T) {
	var sink bytes.Buffer
	e := NewLengthEncoder(&sink, 5)

	if _, err := e.Write([]byte("hel")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if e.Completed() {
		t.Error("encoder completed early")
	}
	if err := e.Complete(); err == nil {
		t.Error("expected error completing an underrun body")
	}
	if _, err := e.Write([]byte("lo")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !e.Completed() {
		t.Error("encoder not completed at declared length")
	}
	if _, err := e.Write([]byte("x")); err == nil {
		t.Error("expected error writing past declared length")
	}
	if sink.String() != "hello" {
		t.Errorf("sink = %q, want hello", sink.String())
	}
}

func TestChunkedEncoder(t *testing.T) {
	var sink bytes.Buffer
	e := NewChunkedEncoder(&sink)

	if _, err := e.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := e.Complete(); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !e.Completed() {
		t.Error("encoder not completed")
	}
	want := "5\r\nhello\r\n0\r\n\r\n"
	if sink.String() != want {
		t.Errorf("sink = %q, want %q", sink.String(), want)
	}
}
