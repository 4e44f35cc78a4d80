package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/udisondev/gemfield/internal/clock"
	"github.com/udisondev/gemfield/internal/config"
	"github.com/udisondev/gemfield/internal/model"
	"github.com/udisondev/gemfield/internal/spawn"
	"github.com/udisondev/gemfield/internal/testutil"
	"github.com/udisondev/gemfield/internal/world"
)

// RepositorySuite содержит интеграционные тесты репозиториев на настоящем PostgreSQL.
type RepositorySuite struct {
	suite.Suite
	db  *DB
	ctx context.Context
}

// SetupSuite поднимает контейнер один раз на весь suite.
func (s *RepositorySuite) SetupSuite() {
	s.ctx = testutil.ContextWithTimeout(s.T(), 5*time.Minute)

	_, dsn := testutil.SetupTestDB(s.T())

	// повторный прогон миграций должен быть no-op
	s.Require().NoError(RunMigrations(s.ctx, dsn))

	var err error
	s.db, err = New(s.ctx, dsn)
	s.Require().NoError(err)
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.db.Pool().Exec(s.ctx, "TRUNCATE TABLE levels, gem_events RESTART IDENTITY")
	s.Require().NoError(err)
}

func (s *RepositorySuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *RepositorySuite) TestLevelsRoundTrip() {
	specs := []world.LevelSpec{
		{Name: "meadow", Rows: []string{"#.#", "###"}},
		{Name: "cave", Origin: world.OriginSpec{X: -4, Y: 10}, Rows: []string{"##..##"}},
	}
	s.Require().NoError(s.db.Levels().ReplaceAll(s.ctx, specs))

	maps, err := s.db.Levels().LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(maps, 2)

	s.Equal("meadow", maps[0].Name())
	s.Equal(5, maps[0].TileCount())
	s.Equal("cave", maps[1].Name())
	s.Equal(model.NewSlot(-4, 10, 0), maps[1].CellToWorld(model.Cell{}))
}

func (s *RepositorySuite) TestReplaceAllOverwrites() {
	repo := s.db.Levels()
	s.Require().NoError(repo.ReplaceAll(s.ctx, []world.LevelSpec{
		{Name: "a", Rows: []string{"#"}},
		{Name: "b", Rows: []string{"#"}},
	}))
	s.Require().NoError(repo.ReplaceAll(s.ctx, []world.LevelSpec{
		{Rows: []string{"##"}},
	}))

	specs, err := repo.LoadSpecs(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(specs, 1)
	s.Equal("level-1", specs[0].Name)
	s.Equal([]string{"##"}, specs[0].Rows)
}

func (s *RepositorySuite) TestLoadAllWithoutLevels() {
	_, err := s.db.Levels().LoadAll(s.ctx)
	s.Error(err)
}

func (s *RepositorySuite) TestEventHistory() {
	repo := s.db.Events()
	gem := *model.NewGem(7, model.BigGem, model.NewSlot(3.5, 2, 0), 1500*time.Millisecond, 10*time.Second)

	s.Require().NoError(repo.Insert(s.ctx, spawn.Event{Kind: spawn.EventSpawned, Gem: gem}))
	s.Require().NoError(repo.Insert(s.ctx, spawn.Event{Kind: spawn.EventExpired, Gem: gem}))
	s.Require().NoError(repo.Insert(s.ctx, spawn.Event{Kind: spawn.EventCleared, Cleared: 4}))

	history, err := repo.History(s.ctx, 7)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("spawned", history[0].Kind)
	s.Equal("expired", history[1].Kind)
	s.Equal("big_gem", history[0].Category)
	s.Equal(gem.Position, history[0].Position)
	s.Equal(gem.SpawnedAt, history[0].SpawnedAt)
	s.Equal(gem.ExpiresAt, history[0].ExpiresAt)

	recent, err := repo.Recent(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal("cleared", recent[0].Kind)
	s.Equal(4, recent[0].Cleared)
	s.Empty(recent[0].Category)
}

func (s *RepositorySuite) TestInsertBatch() {
	repo := s.db.Events()
	events := []spawn.Event{
		{Kind: spawn.EventSpawned, Gem: *model.NewGem(1, model.SmallGem, model.NewSlot(0.5, 2, 0), 0, time.Second)},
		{Kind: spawn.EventSpawned, Gem: *model.NewGem(2, model.SmallGem, model.NewSlot(2.5, 2, 0), 0, time.Second)},
		{Kind: spawn.EventPruned, Gem: *model.NewGem(1, model.SmallGem, model.NewSlot(0.5, 2, 0), 0, time.Second)},
	}

	n, err := repo.InsertBatch(s.ctx, events)
	s.Require().NoError(err)
	s.Equal(int64(3), n)

	spawned, err := repo.CountByKind(s.ctx, spawn.EventSpawned)
	s.Require().NoError(err)
	s.Equal(2, spawned)

	n, err = repo.InsertBatch(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(n)
}

// TestRecorderStoresEngineEvents прогоняет движок и пишет все его события в базу.
func (s *RepositorySuite) TestRecorderStoresEngineEvents() {
	cfg := config.DefaultSpawner()
	cfg.MaxObjects = 3
	cfg.GemLifeTime = 2 * time.Second

	registry := world.NewRegistry()
	sched := clock.NewScheduler(time.Millisecond)
	engine := spawn.NewEngine(cfg, testutil.SpacedRow(s.T(), 8), registry, sched,
		spawn.WithRand(testutil.Rand(1)))
	recorder := NewRecorder(s.db.Events(), 64)
	engine.Subscribe(recorder)

	engine.Start()
	sched.Advance(4 * time.Second)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.Require().NoError(recorder.Run(ctx))
	s.Zero(recorder.Dropped())

	spawned, err := s.db.Events().CountByKind(s.ctx, spawn.EventSpawned)
	s.Require().NoError(err)
	expired, err := s.db.Events().CountByKind(s.ctx, spawn.EventExpired)
	s.Require().NoError(err)

	s.Equal(3, spawned)
	s.Equal(3, expired, "every gem lived past its lifetime")
	s.Equal(recorder.Written(), int64(spawned+expired))
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	suite.Run(t, new(RepositorySuite))
}
