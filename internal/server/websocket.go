package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/protocol"
)

// WebSocketHandler serves the relay over WebSocket: every text frame is one
// line.  allowedOrigins holds scheme://host entries or "*"; when it is empty
// gorilla's same-host check applies.
func (s *Server) WebSocketHandler(allowedOrigins []string) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		upgrader.CheckOrigin = originChecker(allowedOrigins)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("WebSocket upgrade failed", "peer", r.RemoteAddr, "origin", r.Header.Get("Origin"), "error", err)
			return
		}
		s.log.Info("Accepted WebSocket connection", "peer", r.RemoteAddr)
		s.ServeConn(r.Context(), protocol.NewWebSocketLineConn(conn, r.RemoteAddr, s.opts.Line))
	})
	return mux
}

// ListenAndServeWebSocket runs the WebSocket gateway on addr until ctx is
// done.
func (s *Server) ListenAndServeWebSocket(ctx context.Context, addr string, allowedOrigins []string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.WebSocketHandler(allowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() { _ = srv.Close() })
	defer stop()

	s.log.Info("WebSocket gateway listening", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket gateway: %w", err)
	}
	return nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(origin); ok {
			set[normalized] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		normalized, ok := normalizeOrigin(r.Header.Get("Origin"))
		if !ok {
			return false
		}
		_, found := set[normalized]
		return found
	}
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
