package h1

import (
	"bytes"
	"io"
	"testing"

	"github.com/albertbausili/surge/pkg/exchange"
)

func TestParseResponse(t *testing.T) {
	p := NewParser()
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nServer: demo\r\n\r\nhello")
	p.Reset(raw)

	var resp exchange.Response
	consumed, err := p.ParseResponse(&resp)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if consumed != len(raw)-5 {
		t.Errorf("consumed = %d, want %d", consumed, len(raw)-5)
	}
	if resp.Version != "HTTP/1.1" || resp.Status != 200 || resp.Reason != "OK" {
		t.Errorf("status line = %s %d %s", resp.Version, resp.Status, resp.Reason)
	}
	if got := resp.Header("content-length"); got != "5" {
		t.Errorf("content-length = %q, want 5", got)
	}
	if got := resp.Header("server"); got != "demo" {
		t.Errorf("server = %q, want demo", got)
	}
	if resp.ContentLength() != 5 {
		t.Errorf("ContentLength() = %d, want 5", resp.ContentLength())
	}
}

func TestParseResponseIncomplete(t *testing.T) {
	p := NewParser()
	var resp exchange.Response

	p.Reset([]byte("HTTP/1.1 200 OK\r\nContent-Le"))
	consumed, err := p.ParseResponse(&resp)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if consumed != 0 {
		t.Errorf("consumed = %d on partial head, want 0", consumed)
	}

	p.Reset([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	consumed, err = p.ParseResponse(&resp)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if consumed == 0 {
		t.Error("complete head reported as incomplete")
	}
}

func TestParseResponseInterim(t *testing.T) {
	p := NewParser()
	var resp exchange.Response
	p.Reset([]byte("HTTP/1.1 100 Continue\r\n\r\n"))
	consumed, err := p.ParseResponse(&resp)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if consumed == 0 {
		t.Fatal("interim head reported as incomplete")
	}
	if resp.Status != 100 {
		t.Errorf("status = %d, want 100", resp.Status)
	}
}

func TestParseResponseRejectsGarbage(t *testing.T) {
	p := NewParser()
	var resp exchange.Response
	p.Reset([]byte("ICY 200 OK\r\n\r\n"))
	if _, err := p.ParseResponse(&resp); err == nil {
		t.Error("expected error for unsupported protocol")
	}
}

func TestResponseFraming(t *testing.T) {
	resp := &exchange.Response{Status: 200, Headers: [][2]string{{"content-length", "42"}}}
	if f, n := ResponseFraming("GET", resp); f != FramingLength || n != 42 {
		t.Errorf("framing = %v, %d, want length 42", f, n)
	}
	if f, _ := ResponseFraming("HEAD", resp); f != FramingNone {
		t.Errorf("framing for HEAD = %v, want none", f)
	}

	resp = &exchange.Response{Status: 200, Headers: [][2]string{{"transfer-encoding", "chunked"}}}
	if f, _ := ResponseFraming("GET", resp); f != FramingChunked {
		t.Errorf("framing = %v, want chunked", f)
	}

	resp = &exchange.Response{Status: 204}
	if f, _ := ResponseFraming("GET", resp); f != FramingNone {
		t.Errorf("framing for 204 = %v, want none", f)
	}

	resp = &exchange.Response{Status: 200}
	if f, _ := ResponseFraming("GET", resp); f != FramingUntilClose {
		t.Errorf("framing without delimiters = %v, want until-close", f)
	}
}

func TestLengthDecoder(t *testing.T) {
	src := bytes.NewBufferString("hello world")
	d := NewLengthDecoder(src, 5)

	p := make([]byte, 16)
	n, err := d.Read(p)
	if err != io.EOF || n != 5 || string(p[:5]) != "hello" {
		t.Fatalf("Read() = %d, %v, %q", n, err, p[:n])
	}
	if !d.Completed() {
		t.Error("decoder not completed after declared length")
	}
	if src.Len() != 6 {
		t.Errorf("decoder consumed beyond declared length, %d left", src.Len())
	}
}

func TestChunkedDecoder(t *testing.T) {
	src := bytes.NewBufferString("5\r\nhello\r\n6\r\n world\r\n0\r\n\r\nNEXT")
	d := NewChunkedDecoder(src)

	var got bytes.Buffer
	p := make([]byte, 4)
	for !d.Completed() {
		n, err := d.Read(p)
		got.Write(p[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if n == 0 && !d.Completed() {
			t.Fatal("decoder stalled with data available")
		}
	}
	if got.String() != "hello world" {
		t.Errorf("decoded %q, want %q", got.String(), "hello world")
	}
	if src.String() != "NEXT" {
		t.Errorf("decoder consumed pipelined bytes, left %q", src.String())
	}
}

func TestChunkedDecoderIncremental(t *testing.T) {
	src := &bytes.Buffer{}
	d := NewChunkedDecoder(src)

	p := make([]byte, 16)

	src.WriteString("5\r\nhe")
	n, err := d.Read(p)
	if err != nil || string(p[:n]) != "he" {
		t.Fatalf("Read() = %q, %v", p[:n], err)
	}

	src.WriteString("llo\r\n0\r\n\r\n")
	var got bytes.Buffer
	got.WriteString(string(p[:n]))
	for {
		n, err := d.Read(p)
		got.Write(p[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if n == 0 {
			break
		}
	}
	if got.String() != "hello" {
		t.Errorf("decoded %q, want %q", got.String(), "hello")
	}
	if !d.Completed() {
		t.Error("decoder not completed after last chunk")
	}
}

func TestChunkedDecoderRejectsBadSize(t *testing.T) {
	src := bytes.NewBufferString("zz\r\n")
	d := NewChunkedDecoder(src)
	if _, err := d.Read(make([]byte, 8)); err == nil {
		t.Error("expected error for invalid chunk size")
	}
}

func TestUntilCloseDecoder(t *testing.T) {
	src := bytes.NewBufferString("tail")
	d := NewUntilCloseDecoder(src)

	p := make([]byte, 8)
	n, err := d.Read(p)
	if err != nil || string(p[:n]) != "tail" {
		t.Fatalf("Read() = %q, %v", p[:n], err)
	}
	if d.Completed() {
		t.Error("decoder completed before peer close")
	}
	d.MarkEOF()
	if n, err := d.Read(p); n != 0 || err != io.EOF {
		t.Errorf("Read() after EOF = %d, %v", n, err)
	}
	if !d.Completed() {
		t.Error("decoder not completed after peer close")
	}
}
