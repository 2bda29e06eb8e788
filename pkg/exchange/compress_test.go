package exchange

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestResponseDecompressionGzip(t *testing.T) {
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write([]byte("inflate me")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	resp := &Response{
		Status: 200,
		Headers: [][2]string{
			{"content-encoding", "gzip"},
			{"content-length", "999"},
		},
		Entity: NewReaderEntity(bytes.NewReader(compressed.Bytes()), int64(compressed.Len())),
	}

	if err := (ResponseDecompression{}).ProcessResponse(resp, NewContext()); err != nil {
		t.Fatalf("ProcessResponse() error = %v", err)
	}
	if resp.Header("content-encoding") != "" || resp.Header("content-length") != "" {
		t.Error("coding headers not removed after wrapping")
	}

	body, err := io.ReadAll(resp.Entity.Content())
	if err != nil {
		t.Fatalf("reading entity: %v", err)
	}
	if string(body) != "inflate me" {
		t.Errorf("body = %q, want %q", body, "inflate me")
	}
}

func TestResponseDecompressionIdentityUntouched(t *testing.T) {
	entity := NewBytesEntity([]byte("plain"))
	resp := &Response{Status: 200, Entity: entity}

	if err := (ResponseDecompression{}).ProcessResponse(resp, NewContext()); err != nil {
		t.Fatalf("ProcessResponse() error = %v", err)
	}
	if resp.Entity != entity {
		t.Error("identity entity was wrapped")
	}
}

func TestResponseDecompressionUnknownCoding(t *testing.T) {
	resp := &Response{
		Status:  200,
		Headers: [][2]string{{"content-encoding", "zstd9"}},
		Entity:  NewBytesEntity([]byte("x")),
	}
	if err := (ResponseDecompression{}).ProcessResponse(resp, NewContext()); err == nil {
		t.Error("expected error for unsupported coding")
	}
}
