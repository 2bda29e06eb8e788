package h1

import (
	"strconv"

	"github.com/valyala/bytebufferpool"

	"github.com/albertbausili/surge/pkg/exchange"
)

var (
	headerSep = []byte(": ")
	crlf      = []byte("\r\n")
)

// AcquireHeadBuffer returns a pooled buffer for request-head assembly. The
// caller releases it once the transport has taken ownership of the bytes.
func AcquireHeadBuffer() *bytebufferpool.ByteBuffer {
	return bytebufferpool.Get()
}

// ReleaseHeadBuffer returns a head buffer to the pool.
func ReleaseHeadBuffer(bb *bytebufferpool.ByteBuffer) {
	bytebufferpool.Put(bb)
}

// AppendRequestHead assembles the request line and headers into bb.
func AppendRequestHead(bb *bytebufferpool.ByteBuffer, req *exchange.Request) {
	buf := bb.B
	buf = append(buf, req.Method...)
	buf = append(buf, ' ')
	if req.Path == "" {
		buf = append(buf, '/')
	} else {
		buf = append(buf, req.Path...)
	}
	buf = append(buf, ' ')
	if req.Version == "" {
		buf = append(buf, sHTTP11...)
	} else {
		buf = append(buf, req.Version...)
	}
	buf = append(buf, crlf...)

	for _, h := range req.Headers {
		buf = append(buf, h[0]...)
		buf = append(buf, headerSep...)
		buf = append(buf, h[1]...)
		buf = append(buf, crlf...)
	}
	buf = append(buf, crlf...)
	bb.B = buf
}

// RequestFraming selects the body framing for an outgoing request from its
// headers and entity.
func RequestFraming(req *exchange.Request) (Framing, int64) {
	if req.Entity == nil {
		return FramingNone, 0
	}
	if containsTokenFold(req.Header("transfer-encoding"), "chunked") {
		return FramingChunked, -1
	}
	if v := req.Header("content-length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return FramingLength, n
		}
	}
	if n := req.Entity.ContentLength(); n >= 0 {
		return FramingLength, n
	}
	return FramingChunked, -1
}

// containsTokenFold reports whether the comma-separated value contains the
// token, ASCII case-insensitive.
func containsTokenFold(value, token string) bool {
	for i := 0; i < len(value); {
		j := i
		for j < len(value) && value[j] != ',' {
			j++
		}
		part := trimOWS(value[i:j])
		if asciiEqualFoldString(part, token) {
			return true
		}
		i = j + 1
	}
	return false
}

func trimOWS(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

// asciiEqualFoldString reports whether a equals b under ASCII
// case-insensitive comparison.
func asciiEqualFoldString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca := a[i]
		cb := b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca |= 0x20
		}
		if 'A' <= cb && cb <= 'Z' {
			cb |= 0x20
		}
		if ca != cb {
			return false
		}
	}
	return true
}
