package httpapi

import (
	"context"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/atsika/poolbridge/pkg/poolstate"
	"github.com/atsika/poolbridge/pkg/scheduler"
)

type recordingEnqueuer struct {
	cmds []scheduler.Command
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, cmd scheduler.Command) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

func newTestCtx(method, uri string, body []byte) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestHandleWho(t *testing.T) {
	store := poolstate.NewStore(nil)
	s := New(store, nil, "board1", "1.0.0", nil, nil)

	ctx := newTestCtx("GET", "/who", nil)
	s.Handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
	body := string(ctx.Response.Body())
	if !contains(body, "board1") {
		t.Fatalf("expected body to mention board1, got %s", body)
	}
}

func TestHandleJSONReturnsSnapshot(t *testing.T) {
	store := poolstate.NewStore(nil)
	s := New(store, nil, "board1", "1.0.0", nil, nil)

	ctx := newTestCtx("GET", "/json", nil)
	s.Handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
	if len(ctx.Response.Body()) == 0 {
		t.Fatal("expected a non-empty JSON body")
	}
}

func TestHandleJSONPWrapsCallback(t *testing.T) {
	store := poolstate.NewStore(nil)
	s := New(store, nil, "board1", "1.0.0", nil, nil)

	ctx := newTestCtx("GET", "/json?callback=cb", nil)
	s.Handler(ctx)

	body := string(ctx.Response.Body())
	if !contains(body, "cb(") {
		t.Fatalf("expected JSONP wrapper, got %s", body)
	}
}

func TestHandleFaviconServesBytes(t *testing.T) {
	store := poolstate.NewStore(nil)
	s := New(store, nil, "board1", "1.0.0", nil, nil)

	ctx := newTestCtx("GET", "/favicon.ico", nil)
	s.Handler(ctx)

	if len(ctx.Response.Body()) == 0 {
		t.Fatal("expected non-empty favicon body")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	store := poolstate.NewStore(nil)
	s := New(store, nil, "board1", "1.0.0", nil, nil)

	ctx := newTestCtx("GET", "/nope", nil)
	s.Handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", ctx.Response.StatusCode())
	}
}

func TestHandlePushEnqueuesCommand(t *testing.T) {
	store := poolstate.NewStore(nil)
	enq := &recordingEnqueuer{}
	s := New(store, enq, "board1", "1.0.0", nil, nil)

	ctx := newTestCtx("POST", "/api/push", []byte(`{"topic":"circuit/pool/set","value":"ON"}`))
	s.Handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("expected 202, got %d", ctx.Response.StatusCode())
	}
	if len(enq.cmds) != 1 || enq.cmds[0].Topic != "circuit/pool/set" || enq.cmds[0].Value != "ON" {
		t.Fatalf("expected the webhook command to be enqueued, got %+v", enq.cmds)
	}
}

func TestHandleJSONProxiesQueryParams(t *testing.T) {
	store := poolstate.NewStore(nil)
	enq := &recordingEnqueuer{}
	s := New(store, enq, "board1", "1.0.0", nil, nil)

	ctx := newTestCtx("GET", "/json?circuit/pool/set=ON", nil)
	s.Handler(ctx)

	if len(enq.cmds) != 1 || enq.cmds[0].Topic != "circuit/pool/set" || enq.cmds[0].Value != "ON" {
		t.Fatalf("expected the query param to be proxied as a command, got %+v", enq.cmds)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
