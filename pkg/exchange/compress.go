package exchange

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// ResponseDecompression transparently unwraps gzip, deflate, and brotli
// response bodies. The compressed reader is constructed lazily on the first
// read so that no bytes are pulled from the shared buffer on the I/O thread.
type ResponseDecompression struct{ baseProcessor }

func (ResponseDecompression) ProcessResponse(resp *Response, _ *Context) error {
	if resp.Entity == nil {
		return nil
	}
	coding := strings.ToLower(strings.TrimSpace(resp.Header("content-encoding")))
	var open func(io.Reader) (io.Reader, error)
	switch coding {
	case "", "identity":
		return nil
	case "gzip":
		open = func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }
	case "deflate":
		open = func(r io.Reader) (io.Reader, error) { return flate.NewReader(r), nil }
	case "br":
		open = func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil }
	default:
		return fmt.Errorf("unsupported content coding %q", coding)
	}
	resp.Entity = &decompressingEntity{src: resp.Entity, open: open}
	resp.DelHeader("content-encoding")
	resp.DelHeader("content-length")
	return nil
}

// decompressingEntity defers decoder construction until the worker reads.
type decompressingEntity struct {
	src  Entity
	open func(io.Reader) (io.Reader, error)
	r    io.Reader
	err  error
}

func (e *decompressingEntity) ContentLength() int64 { return -1 }

func (e *decompressingEntity) Content() io.Reader { return e }

func (e *decompressingEntity) WriteTo(w io.Writer) error {
	_, err := io.Copy(w, e)
	return err
}

func (e *decompressingEntity) Read(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	if e.r == nil {
		e.r, e.err = e.open(e.src.Content())
		if e.err != nil {
			return 0, e.err
		}
	}
	return e.r.Read(p)
}
