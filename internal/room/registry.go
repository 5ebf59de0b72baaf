package room

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"blackball/internal/domain"
)

var ErrRoomExists = errors.New("room already exists")

// Options carries the knobs every room is created with.
type Options struct {
	MaxPlayers      int
	EventBatchSize  int
	InboundQueue    int
	BroadcastBuffer int
}

// Registry maps lobby codes to live rooms. Its lock covers only map
// insert/lookup/remove; callers get back a *Room handle and never touch the
// registry while doing I/O.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	opts    Options
	secrets domain.SecretSource
	logger  *zap.Logger

	ctx context.Context
}

func NewRegistry(ctx context.Context, opts Options, secrets domain.SecretSource, logger *zap.Logger) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		opts:    opts,
		secrets: secrets,
		logger:  logger,
		ctx:     ctx,
	}
}

// GetOrCreate returns the room for code, spawning its authority goroutine on
// first reference.
func (reg *Registry) GetOrCreate(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[code]; ok {
		return r
	}
	return reg.create(code)
}

// Create makes a new room, failing when the code is taken.
func (reg *Registry) Create(code string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[code]; ok {
		return nil, ErrRoomExists
	}
	return reg.create(code), nil
}

// Get looks up an existing room without creating one.
func (reg *Registry) Get(code string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[code]
	return r, ok
}

// List returns all live rooms in stable code order.
func (reg *Registry) List() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Remove tears a room down: its authority goroutine is cancelled and its
// broadcast channels closed. Safe to call for unknown codes.
func (reg *Registry) Remove(code string) {
	reg.mu.Lock()
	r, ok := reg.rooms[code]
	if ok {
		delete(reg.rooms, code)
	}
	reg.mu.Unlock()
	if ok {
		r.cancel()
		reg.logger.Info("room removed", zap.String("lobby", code))
	}
}

// create assumes reg.mu is held.
func (reg *Registry) create(code string) *Room {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ctx, cancel := context.WithCancel(reg.ctx)
	r := &Room{
		Code:     code,
		inbound:  make(chan domain.Event, reg.opts.InboundQueue),
		bcast:    NewBroadcaster(reg.opts.BroadcastBuffer),
		game:     domain.NewGame(code, reg.opts.MaxPlayers, rng, reg.secrets),
		batchCap: reg.opts.EventBatchSize,
		cancel:   cancel,
		logger:   reg.logger,
	}
	r.snapshot.Store(r.game.Snapshot())
	r.touch()
	reg.rooms[code] = r
	go r.run(ctx)
	reg.logger.Info("room created", zap.String("lobby", code))
	return r
}
