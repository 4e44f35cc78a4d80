// Package feed streams spawn engine events to websocket clients and exposes
// a small HTTP API around the engine and the level director.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/udisondev/gemfield/internal/config"
	"github.com/udisondev/gemfield/internal/db"
	"github.com/udisondev/gemfield/internal/level"
	"github.com/udisondev/gemfield/internal/model"
	"github.com/udisondev/gemfield/internal/spawn"
)

const (
	sendBufferSize    = 64
	shutdownTimeout   = 5 * time.Second
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Source is the read side of the spawn engine.
type Source interface {
	Status() spawn.Status
	PoolSize() int
	Live() []model.Gem
}

// Collector is the level director as seen by the feed.
type Collector interface {
	Collect(id model.EntityID) (level.Collected, error)
	State() level.State
}

// EventLog is the stored gem event history.
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]db.EventRow, error)
	History(ctx context.Context, id model.EntityID) ([]db.EventRow, error)
}

// Option configures Hub.
type Option func(*Hub)

// WithEventLog serves GET /events from log.
func WithEventLog(log EventLog) Option {
	return func(h *Hub) { h.events = log }
}

// Hub fans engine events out to websocket subscribers.
type Hub struct {
	source    Source
	collector Collector
	events    EventLog
	writeWait time.Duration
	upgrader  websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once

	// guarded by Hub.mu; messages broadcast before the initial state is queued
	ready   bool
	backlog [][]byte
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// NewHub creates a hub serving source and collector.
func NewHub(cfg config.FeedConfig, source Source, collector Collector, opts ...Option) *Hub {
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}
	h := &Hub{
		source:    source,
		collector: collector,
		writeWait: writeWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subscribers: make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnEvent implements spawn.Observer.
func (h *Hub) OnEvent(ev spawn.Event) {
	h.broadcast(eventMessage(ev))
}

// OnProgress broadcasts a level progress change.
func (h *Hub) OnProgress(state level.State) {
	h.broadcast(message{Type: messageProgress, Progress: &state})
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// broadcast queues msg for every subscriber. Slow subscribers whose queue is
// full are disconnected.
func (h *Hub) broadcast(msg message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal feed message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		if !sub.ready {
			if len(sub.backlog) < sendBufferSize-1 {
				sub.backlog = append(sub.backlog, data)
				continue
			}
		} else {
			select {
			case sub.send <- data:
				continue
			default:
			}
		}
		slog.Warn("feed subscriber too slow, disconnecting", "remote", sub.conn.RemoteAddr())
		delete(h.subscribers, sub)
		sub.close()
	}
}

func (h *Hub) snapshot() *snapshot {
	// Status prunes gems destroyed elsewhere, so it goes before Live
	status := h.source.Status()
	live := h.source.Live()
	views := make([]gemView, 0, len(live))
	for _, g := range live {
		views = append(views, newGemView(g))
	}
	return &snapshot{
		Status: status,
		Pool:   h.source.PoolSize(),
		Live:   views,
		Level:  h.collector.State(),
	}
}

// Handler returns the HTTP routes of the feed.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/state", h.handleState)
	mux.HandleFunc("/collect", h.handleCollect)
	mux.HandleFunc("/events", h.handleEvents)
	return mux
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBufferSize)}

	// Register before taking the snapshot: events raised meanwhile are held
	// in the backlog and delivered right after the state message.
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	initial, err := json.Marshal(message{Type: messageState, State: h.snapshot()})
	if err != nil {
		slog.Error("failed to marshal initial state", "error", err)
		h.unsubscribe(sub)
		conn.Close()
		return
	}

	h.mu.Lock()
	if _, ok := h.subscribers[sub]; !ok {
		h.mu.Unlock()
		conn.Close()
		return
	}
	sub.send <- initial
	for _, data := range sub.backlog {
		sub.send <- data
	}
	sub.backlog = nil
	sub.ready = true
	h.mu.Unlock()

	slog.Debug("feed subscriber connected", "remote", conn.RemoteAddr())

	go h.writeLoop(sub)
	h.readLoop(sub)
}

// readLoop discards client messages and unregisters the subscriber on error.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.unsubscribe(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer sub.conn.Close()
	for data := range sub.send {
		if err := sub.conn.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
			return
		}
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("feed write failed", "remote", sub.conn.RemoteAddr(), "error", err)
			h.unsubscribe(sub)
			return
		}
	}
	_ = sub.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
	_ = sub.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()

	if ok {
		slog.Debug("feed subscriber disconnected", "remote", sub.conn.RemoteAddr())
	}
	sub.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		sub.close()
	}
}

func (h *Hub) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Hub) handleCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := r.URL.Query().Get("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid gem id %q", raw))
		return
	}

	got, err := h.collector.Collect(model.EntityID(id))
	if errors.Is(err, level.ErrNotCollectable) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("collect failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "collect failed")
		return
	}

	writeJSON(w, http.StatusOK, collectResponse{
		Gem:   newGemView(got.Gem),
		Value: got.Value,
		Level: got.State,
	})
}

// handleEvents returns stored events: ?gem=N for one gem's history,
// otherwise the latest ?limit=N (default 50).
func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.events == nil {
		writeError(w, http.StatusNotFound, "event log disabled")
		return
	}

	var (
		rows []db.EventRow
		err  error
	)
	q := r.URL.Query()
	if raw := q.Get("gem"); raw != "" {
		id, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil || id == 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid gem id %q", raw))
			return
		}
		rows, err = h.events.History(r.Context(), model.EntityID(id))
	} else {
		limit := defaultEventLimit
		if raw := q.Get("limit"); raw != "" {
			n, perr := strconv.Atoi(raw)
			if perr != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
				return
			}
			limit = min(n, maxEventLimit)
		}
		rows, err = h.events.Recent(r.Context(), limit)
	}
	if err != nil {
		slog.Error("reading event log", "error", err)
		writeError(w, http.StatusInternalServerError, "event log unavailable")
		return
	}

	views := make([]eventRowView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newEventRowView(row))
	}
	writeJSON(w, http.StatusOK, views)
}

// Serve listens on addr until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return h.ServeListener(ctx, ln)
}

// ServeListener serves the feed on ln until ctx is cancelled.
func (h *Hub) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.Info("feed listening", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		h.closeAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving feed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	h.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down feed: %w", err)
	}
	slog.Info("feed stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
