package feed

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gemfield/internal/clock"
	"github.com/udisondev/gemfield/internal/config"
	"github.com/udisondev/gemfield/internal/db"
	"github.com/udisondev/gemfield/internal/level"
	"github.com/udisondev/gemfield/internal/model"
	"github.com/udisondev/gemfield/internal/spawn"
	"github.com/udisondev/gemfield/internal/testutil"
	"github.com/udisondev/gemfield/internal/world"
)

type fixture struct {
	hub      *Hub
	engine   *spawn.Engine
	director *level.Director
	sched    *clock.Scheduler
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog, err := world.NewCatalog([]*world.TileMap{testutil.SpacedRow(t, 6)})
	require.NoError(t, err)
	surface, _ := catalog.Current()

	cfg := config.DefaultSpawner()
	cfg.MaxObjects = 2
	cfg.GemLifeTime = time.Minute

	registry := world.NewRegistry()
	sched := clock.NewScheduler(time.Millisecond)
	engine := spawn.NewEngine(cfg, surface, registry, sched, spawn.WithRand(testutil.Rand(3)))
	director := level.NewDirector(config.DefaultProgress(), catalog, engine, registry)
	engine.Subscribe(director)

	hub := NewHub(config.DefaultServer().Feed, engine, director)
	engine.Subscribe(hub)
	director.OnChange(hub.OnProgress)

	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	return &fixture{hub: hub, engine: engine, director: director, sched: sched, server: srv}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	})
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestHub_InitialStateThenEvents(t *testing.T) {
	f := newFixture(t)
	f.engine.Start()

	conn := f.dial(t)

	initial := readMessage(t, conn)
	assert.Equal(t, "state", initial["type"])
	state := initial["state"].(map[string]any)
	assert.Equal(t, "spawning", state["status"])
	assert.Len(t, state["live"], 1)
	assert.EqualValues(t, 5, state["pool"])

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	f.sched.Advance(500 * time.Millisecond)

	ev := readMessage(t, conn)
	assert.Equal(t, "event", ev["type"])
	assert.Equal(t, "spawned", ev["kind"])
	gem := ev["gem"].(map[string]any)
	assert.Contains(t, []any{"small_gem", "big_gem"}, gem["category"])
	assert.EqualValues(t, 2, gem["y"])
}

// racingSource raises a spawn on the hub while the initial state is being read.
type racingSource struct {
	Source
	hub   *Hub
	fired bool
}

func (s *racingSource) Live() []model.Gem {
	live := s.Source.Live()
	if !s.fired {
		s.fired = true
		s.hub.OnEvent(spawn.Event{
			Kind: spawn.EventSpawned,
			Gem:  *model.NewGem(7, model.BigGem, model.NewSlot(40.5, 2, 0), 0, time.Minute),
		})
	}
	return live
}

func TestHub_EventDuringConnectIsDelivered(t *testing.T) {
	f := newFixture(t)
	source := &racingSource{Source: f.engine}
	hub := NewHub(config.DefaultServer().Feed, source, f.director)
	source.hub = hub
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	initial := readMessage(t, conn)
	require.Equal(t, "state", initial["type"], "state is always the first message")

	ev := readMessage(t, conn)
	assert.Equal(t, "event", ev["type"])
	assert.Equal(t, "spawned", ev["kind"])
	assert.EqualValues(t, 7, ev["gem"].(map[string]any)["id"])
}

func TestHub_StateOmitsCollectedGems(t *testing.T) {
	f := newFixture(t)
	f.engine.Start()
	f.sched.Advance(time.Second)
	gem := f.engine.Live()[0]

	_, err := f.director.Collect(gem.ID)
	require.NoError(t, err)

	snap := f.hub.snapshot()
	require.Len(t, snap.Live, 1)
	assert.NotEqual(t, gem.ID, snap.Live[0].ID)
	assert.Equal(t, spawn.StatusIdle, snap.Status)
}

func TestHub_ClearedEventHasNoGem(t *testing.T) {
	f := newFixture(t)
	f.engine.Start()
	conn := f.dial(t)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	f.engine.OnSurfaceChanged(testutil.SpacedRow(t, 3))

	ev := readMessage(t, conn)
	assert.Equal(t, "cleared", ev["kind"])
	assert.EqualValues(t, 1, ev["cleared"])
	assert.NotContains(t, ev, "gem")
}

func TestHub_State(t *testing.T) {
	f := newFixture(t)
	f.engine.Start()
	f.sched.Advance(time.Second)

	resp, err := http.Get(f.server.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Status string      `json:"status"`
		Pool   int         `json:"pool"`
		Live   []gemView   `json:"live"`
		Level  level.State `json:"level"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, spawn.StatusAtCapacity.String(), got.Status)
	assert.Len(t, got.Live, 2)
	assert.Equal(t, 4, got.Pool)
	assert.Equal(t, 100, got.Level.Target)
}

func TestHub_StateRejectsPost(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/state", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHub_Collect(t *testing.T) {
	f := newFixture(t)
	f.engine.Start()
	conn := f.dial(t)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	gem := f.engine.Live()[0]
	resp, err := http.Post(f.server.URL+"/collect?id="+itoa(gem.ID), "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got collectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, gem.ID, got.Gem.ID)
	assert.Equal(t, got.Value, got.Level.Progress)

	progress := readMessage(t, conn)
	assert.Equal(t, "progress", progress["type"])
}

func TestHub_CollectErrors(t *testing.T) {
	f := newFixture(t)
	f.engine.Start()

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing id", "", http.StatusBadRequest},
		{"not a number", "?id=abc", http.StatusBadRequest},
		{"zero id", "?id=0", http.StatusBadRequest},
		{"unknown gem", "?id=424242", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(f.server.URL+"/collect"+tt.query, "", nil)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHub_ServeListenerStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := testutil.ContextWithCancel(t)
	done := make(chan error, 1)
	go func() { done <- f.hub.ServeListener(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if resp != nil {
			resp.Body.Close()
		}
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()
	readMessage(t, conn)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("feed did not stop")
	}
	assert.Zero(t, f.hub.Subscribers())
}

func itoa(id model.EntityID) string {
	return strconv.FormatUint(uint64(id), 10)
}

type memoryLog struct {
	rows      []db.EventRow
	lastLimit int
	lastGem   model.EntityID
}

func (l *memoryLog) Recent(_ context.Context, limit int) ([]db.EventRow, error) {
	l.lastLimit = limit
	return l.rows, nil
}

func (l *memoryLog) History(_ context.Context, id model.EntityID) ([]db.EventRow, error) {
	l.lastGem = id
	var out []db.EventRow
	for _, row := range l.rows {
		if row.GemID == id {
			out = append(out, row)
		}
	}
	return out, nil
}

func getEvents(t *testing.T, url string) (int, []eventRowView) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var rows []eventRowView
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	}
	return resp.StatusCode, rows
}

func TestHub_Events(t *testing.T) {
	f := newFixture(t)
	log := &memoryLog{rows: []db.EventRow{
		{ID: 3, Kind: "expired", GemID: 2, Category: "small_gem", Position: model.NewSlot(2.5, 2, 0)},
		{ID: 2, Kind: "spawned", GemID: 2, Category: "small_gem", Position: model.NewSlot(2.5, 2, 0)},
		{ID: 1, Kind: "spawned", GemID: 1, Category: "big_gem", Position: model.NewSlot(0.5, 2, 0)},
	}}
	hub := NewHub(config.DefaultServer().Feed, f.engine, f.director, WithEventLog(log))
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	status, rows := getEvents(t, srv.URL+"/events")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, rows, 3)
	assert.Equal(t, defaultEventLimit, log.lastLimit)

	status, _ = getEvents(t, srv.URL+"/events?limit=10000")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, maxEventLimit, log.lastLimit)

	status, rows = getEvents(t, srv.URL+"/events?gem=2")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rows, 2)
	assert.Equal(t, model.EntityID(2), log.lastGem)
	assert.Equal(t, "expired", rows[0].Kind)
	assert.Equal(t, 2.5, rows[0].X)

	status, _ = getEvents(t, srv.URL+"/events?gem=x")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = getEvents(t, srv.URL+"/events?limit=-1")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHub_EventsWithoutLog(t *testing.T) {
	f := newFixture(t)

	status, _ := getEvents(t, f.server.URL+"/events")
	assert.Equal(t, http.StatusNotFound, status)
}
