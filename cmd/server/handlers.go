package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quotefeed/internal/cache"
	"quotefeed/internal/fetch"
	"quotefeed/internal/hub"
	"quotefeed/internal/quote"
)

const (
	maxBatchKeys   = 500
	fetchDeadline  = 15 * time.Second
	maxRequestBody = 1 << 20
)

type api struct {
	mgr  *fetch.Manager
	dual *cache.Dual
	hub  *hub.Hub
	log  *zap.Logger
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", a.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(withJSONHeaders)
		r.Use(withGzip)
		r.Get("/quote/{kind}/{key}", a.handleQuote)
		r.Get("/quotes/{kind}", a.handleQuotes)
		r.Post("/quotes/{kind}", a.handleQuotes)
		r.Get("/source/{name}/{key}", a.handleSource)
		r.Get("/sources", a.handleSources)
		r.Get("/health", a.handleHealth)
		r.Get("/stats", a.handleStats)
		r.Get("/cache/stats", a.handleCacheStats)
		r.Delete("/cache", a.handleCacheClear)
	})
	return r
}

func (a *api) handleQuote(w http.ResponseWriter, r *http.Request) {
	kind, err := quote.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), fetchDeadline)
	defer cancel()
	res := a.mgr.Fetch(ctx, kind, key)
	a.writeResult(w, res)
}

type batchBody struct {
	Keys []string `json:"keys"`
}

func (a *api) handleQuotes(w http.ResponseWriter, r *http.Request) {
	kind, err := quote.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var keys []string
	switch r.Method {
	case http.MethodGet:
		keys = splitCSV(r.URL.Query().Get("keys"))
	case http.MethodPost:
		var b batchBody
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		keys = b.Keys
	}
	if len(keys) == 0 {
		writeError(w, http.StatusBadRequest, "keys cannot be empty")
		return
	}
	if len(keys) > maxBatchKeys {
		writeError(w, http.StatusBadRequest, "too many keys")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), fetchDeadline)
	defer cancel()
	results := a.mgr.FetchBatch(ctx, kind, keys)
	a.writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (a *api) handleSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	key := chi.URLParam(r, "key")

	ctx, cancel := context.WithTimeout(r.Context(), fetchDeadline)
	defer cancel()
	res := a.mgr.FetchWithSource(ctx, name, key)
	if !res.Success && strings.Contains(res.Err, "unknown provider") {
		writeError(w, http.StatusNotFound, res.Err)
		return
	}
	a.writeResult(w, res)
}

func (a *api) handleSources(w http.ResponseWriter, _ *http.Request) {
	names := a.mgr.ListSources()
	a.writeJSON(w, http.StatusOK, map[string]any{
		"sources": names,
		"count":   len(names),
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.mgr.HealthCheck(r.Context()))
}

func (a *api) handleStats(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.mgr.Statistics())
}

func (a *api) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.dual.Stats())
}

func (a *api) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	a.dual.Clear()
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin policy is enforced upstream; the API itself is open.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (a *api) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Debug("ws upgrade", zap.Error(err))
		return
	}
	// Connection blocks for the session lifetime and releases the transport
	// on return, including the capacity-reject path.
	_ = a.hub.Connection(hub.NewWSTransport(conn), a.hub.Run)
}

func (a *api) writeResult(w http.ResponseWriter, res fetch.Result) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	a.writeJSON(w, status, res)
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		a.log.Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses responses when the client supports gzip. Applied to the
// /api group only; the websocket path must keep the raw ResponseWriter.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
