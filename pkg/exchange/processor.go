package exchange

import (
	"fmt"

	"golang.org/x/net/http/httpguts"
)

// baseProcessor provides no-op halves for one-sided processors.
type baseProcessor struct{}

func (baseProcessor) ProcessRequest(*Request, *Context) error   { return nil }
func (baseProcessor) ProcessResponse(*Response, *Context) error { return nil }

// RequestTargetHost ensures every outgoing request carries a Host header,
// falling back to the target host recorded in the context.
type RequestTargetHost struct{ baseProcessor }

func (RequestTargetHost) ProcessRequest(req *Request, ctx *Context) error {
	if req.Header("host") != "" {
		return nil
	}
	host, ok := ctx.Get(AttrTargetHost).(Host)
	if !ok {
		return fmt.Errorf("target host not available in context")
	}
	req.SetHeader("host", host.String())
	return nil
}

// RequestContentFraming derives the content framing headers from the request
// entity: Content-Length for known lengths, chunked transfer coding otherwise.
// It also validates header names and values.
type RequestContentFraming struct{ baseProcessor }

func (RequestContentFraming) ProcessRequest(req *Request, _ *Context) error {
	for _, h := range req.Headers {
		if !httpguts.ValidHeaderFieldName(h[0]) {
			return fmt.Errorf("invalid header name %q", h[0])
		}
		if !httpguts.ValidHeaderFieldValue(h[1]) {
			return fmt.Errorf("invalid value for header %q", h[0])
		}
	}
	if req.Entity == nil {
		req.DelHeader("content-length")
		req.DelHeader("transfer-encoding")
		return nil
	}
	if req.Header("transfer-encoding") != "" || req.Header("content-length") != "" {
		return nil
	}
	if n := req.Entity.ContentLength(); n >= 0 {
		req.SetHeader("content-length", fmt.Sprintf("%d", n))
	} else {
		req.SetHeader("transfer-encoding", "chunked")
	}
	return nil
}

// RequestConnControl adds a Connection header when none is present.
type RequestConnControl struct{ baseProcessor }

func (RequestConnControl) ProcessRequest(req *Request, _ *Context) error {
	if req.Header("connection") == "" {
		req.SetHeader("connection", "keep-alive")
	}
	return nil
}

// RequestUserAgent sets the User-Agent header when none is present.
type RequestUserAgent struct {
	baseProcessor
	Agent string
}

func (p RequestUserAgent) ProcessRequest(req *Request, _ *Context) error {
	if p.Agent != "" && req.Header("user-agent") == "" {
		req.SetHeader("user-agent", p.Agent)
	}
	return nil
}
