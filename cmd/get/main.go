// Command get performs a streaming GET against an HTTP/1.x origin using the
// surge client engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/albertbausili/surge/pkg/exchange"
	"github.com/albertbausili/surge/pkg/surge"
)

type getHandler struct {
	path string
	done chan error
}

func (h *getHandler) InitializeContext(ctx *exchange.Context, attachment any) {
	if host, ok := attachment.(exchange.Host); ok {
		ctx.Set(exchange.AttrTargetHost, host)
	}
}

func (h *getHandler) SubmitRequest(ctx *exchange.Context) *exchange.Request {
	// One request per connection; nil afterwards leaves the connection idle.
	if ctx.Get("done") != nil {
		return nil
	}
	ctx.Set("done", true)
	return exchange.NewRequest("GET", h.path)
}

func (h *getHandler) HandleResponse(resp *exchange.Response, _ *exchange.Context) error {
	fmt.Fprintf(os.Stderr, "%s %d %s\n", resp.Version, resp.Status, resp.Reason)
	var err error
	if resp.Entity != nil {
		_, err = io.Copy(os.Stdout, resp.Entity.Content())
	}
	h.done <- err
	return err
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "origin host:port")
	path := flag.String("path", "/", "request path")
	flag.Parse()

	handler := &getHandler{path: *path, done: make(chan error, 1)}

	client, err := surge.New(surge.DefaultConfig(), handler)
	if err != nil {
		log.Fatal(err)
	}
	client.Listeners(surge.LoggingListener{Logger: log.New(os.Stderr, "surge: ", 0)})

	if err := client.Start(); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = client.Stop(context.Background()) }()

	if err := client.Dial(*addr, nil); err != nil {
		log.Fatal(err)
	}
	if err := <-handler.done; err != nil {
		log.Fatal(err)
	}
}
