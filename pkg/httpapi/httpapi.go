// Package httpapi implements the HTTP surface of spec.md §6 using fasthttp:
// GET /, GET /json, GET /who, GET /favicon.ico, and POST /api/push. JSON
// rendering uses json-iterator/go; every request is tagged with a
// google/uuid correlation ID for log correlation, following the teacher's
// habit of wrapping every externally-observable operation with a logrus
// field set (see datalink/netmsg's WithFields usage).
package httpapi

import (
	"context"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/atsika/poolbridge/pkg/poolstate"
	"github.com/atsika/poolbridge/pkg/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Enqueuer is the `to-pool` command sink (spec §5 IngressFromIP); satisfied
// by cloudqueue.ChanRelay/AzureRelay or any other scheduler.Command producer.
type Enqueuer interface {
	Enqueue(ctx context.Context, cmd scheduler.Command) error
}

// Server renders the HTTP contract over the current PoolState snapshot.
type Server struct {
	store    *poolstate.Store
	enqueue  Enqueuer
	board    string
	version  string
	indexDoc []byte
	log      *logrus.Entry
}

// New builds a Server. indexDoc is the static page served at GET / (the
// spec leaves its content unspecified — a minimal status page is enough).
func New(store *poolstate.Store, enqueue Enqueuer, board, version string, indexDoc []byte, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if indexDoc == nil {
		indexDoc = []byte("<html><body>poolbridge</body></html>")
	}
	return &Server{store: store, enqueue: enqueue, board: board, version: version, indexDoc: indexDoc, log: log.WithField("component", "httpapi")}
}

// Handler returns the fasthttp request handler routing all five endpoints.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	reqID := uuid.New().String()
	log := s.log.WithField("req_id", reqID)

	path := string(ctx.Path())
	switch {
	case string(ctx.Method()) == "GET" && path == "/":
		s.handleIndex(ctx)
	case string(ctx.Method()) == "GET" && path == "/json":
		s.handleJSON(ctx, log)
	case string(ctx.Method()) == "GET" && path == "/who":
		s.handleWho(ctx)
	case string(ctx.Method()) == "GET" && path == "/favicon.ico":
		s.handleFavicon(ctx)
	case string(ctx.Method()) == "POST" && path == "/api/push":
		s.handlePush(ctx, log, reqID)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) handleIndex(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(s.indexDoc)
}

// handleJSON renders the full snapshot, optionally JSONP-wrapped
// (?callback=name), and proxies any other query-string key=value pairs into
// the command queue (spec §6: "query-string key=value pairs proxied into
// the command queue").
func (s *Server) handleJSON(ctx *fasthttp.RequestCtx, log *logrus.Entry) {
	snap, _ := s.store.Get()
	body, err := json.Marshal(snap)
	if err != nil {
		log.WithError(err).Error("failed to marshal snapshot")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	callback := ""
	ctx.QueryArgs().VisitAll(func(k, v []byte) {
		key, val := string(k), string(v)
		if key == "callback" {
			callback = val
			return
		}
		if s.enqueue != nil {
			if err := s.enqueue.Enqueue(ctx, scheduler.Command{Topic: key, Value: val}); err != nil {
				log.WithError(err).WithField("topic", key).Warn("failed to enqueue proxied command")
			}
		}
	})

	if callback != "" {
		ctx.SetContentType("application/javascript; charset=utf-8")
		ctx.SetBody(append([]byte(callback+"("), append(body, ')', ';')...))
		return
	}
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

func (s *Server) handleWho(ctx *fasthttp.RequestCtx) {
	doc := map[string]string{"board": s.board, "version": s.version}
	body, _ := json.Marshal(doc)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

// faviconBytes is the 22-byte ICO directory header for a single 1x1 32-bit
// image, embedded rather than read from disk per spec §6 ("embedded static
// bytes"). The image data that the directory entry points at is not included.
var faviconBytes = []byte{
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00, 0x30, 0x00,
	0x00, 0x00, 0x16, 0x00, 0x00, 0x00,
}

func (s *Server) handleFavicon(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("image/x-icon")
	ctx.SetBody(faviconBytes)
}

// handlePush is the webhook passthrough (spec §6 "POST /api/push"): the raw
// body is decoded as {"topic":"...","value":"..."} and proxied into the
// command queue, tagged with reqID for correlation.
func (s *Server) handlePush(ctx *fasthttp.RequestCtx, log *logrus.Entry, reqID string) {
	var body struct {
		Topic string `json:"topic"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		log.WithError(err).Warn("malformed webhook payload")
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	if s.enqueue != nil {
		if err := s.enqueue.Enqueue(ctx, scheduler.Command{Topic: body.Topic, Value: body.Value}); err != nil {
			log.WithError(err).Warn("failed to enqueue webhook command")
		}
	}
	resp, _ := json.Marshal(map[string]string{"id": reqID})
	ctx.SetStatusCode(fasthttp.StatusAccepted)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(resp)
}
