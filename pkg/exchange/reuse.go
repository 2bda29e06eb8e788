package exchange

import "golang.org/x/net/http/httpguts"

// DefaultReuseStrategy applies HTTP/1.x keep-alive semantics: an explicit
// Connection directive wins, HTTP/1.0 defaults to close, and a response whose
// body is not self-delimiting cannot be reused.
type DefaultReuseStrategy struct{}

func (DefaultReuseStrategy) KeepAlive(resp *Response, _ *Context) bool {
	if resp == nil {
		return false
	}
	connValue := resp.Header("connection")
	if connValue != "" {
		if httpguts.HeaderValuesContainsToken([]string{connValue}, "close") {
			return false
		}
		if httpguts.HeaderValuesContainsToken([]string{connValue}, "keep-alive") {
			return true
		}
	}
	if resp.Version == "HTTP/1.0" {
		return false
	}
	// A body delimited only by connection close forces the connection down.
	if resp.Entity != nil && !resp.Chunked() && resp.ContentLength() < 0 {
		return false
	}
	return true
}
