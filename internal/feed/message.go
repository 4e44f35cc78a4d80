package feed

import (
	"time"

	"github.com/udisondev/gemfield/internal/db"
	"github.com/udisondev/gemfield/internal/level"
	"github.com/udisondev/gemfield/internal/model"
	"github.com/udisondev/gemfield/internal/spawn"
)

const (
	messageState    = "state"
	messageEvent    = "event"
	messageProgress = "progress"
)

type gemView struct {
	ID          model.EntityID `json:"id"`
	Category    model.Category `json:"category"`
	X           float64        `json:"x"`
	Y           float64        `json:"y"`
	Z           float64        `json:"z"`
	SpawnedAtMs int64          `json:"spawned_at_ms"`
	ExpiresAtMs int64          `json:"expires_at_ms"`
}

func newGemView(g model.Gem) gemView {
	return gemView{
		ID:          g.ID,
		Category:    g.Category,
		X:           g.Position.X,
		Y:           g.Position.Y,
		Z:           g.Position.Z,
		SpawnedAtMs: g.SpawnedAt.Milliseconds(),
		ExpiresAtMs: g.ExpiresAt.Milliseconds(),
	}
}

type snapshot struct {
	Status spawn.Status `json:"status"`
	Pool   int          `json:"pool"`
	Live   []gemView    `json:"live"`
	Level  level.State  `json:"level"`
}

type message struct {
	Type     string          `json:"type"`
	Kind     spawn.EventKind `json:"kind,omitempty"`
	Gem      *gemView        `json:"gem,omitempty"`
	Cleared  int             `json:"cleared,omitempty"`
	State    *snapshot       `json:"state,omitempty"`
	Progress *level.State    `json:"progress,omitempty"`
}

type collectResponse struct {
	Gem   gemView     `json:"gem"`
	Value int         `json:"value"`
	Level level.State `json:"level"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func eventMessage(ev spawn.Event) message {
	msg := message{Type: messageEvent, Kind: ev.Kind, Cleared: ev.Cleared}
	if ev.Kind != spawn.EventCleared {
		g := newGemView(ev.Gem)
		msg.Gem = &g
	}
	return msg
}

type eventRowView struct {
	ID         int64          `json:"id"`
	Kind       string         `json:"kind"`
	GemID      model.EntityID `json:"gem_id,omitempty"`
	Category   string         `json:"category,omitempty"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Z          float64        `json:"z"`
	Cleared    int            `json:"cleared,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

func newEventRowView(row db.EventRow) eventRowView {
	return eventRowView{
		ID:         row.ID,
		Kind:       row.Kind,
		GemID:      row.GemID,
		Category:   row.Category,
		X:          row.Position.X,
		Y:          row.Position.Y,
		Z:          row.Position.Z,
		Cleared:    row.Cleared,
		RecordedAt: row.RecordedAt,
	}
}
