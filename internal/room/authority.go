package room

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"blackball/internal/domain"
)

// Room bundles one lobby's game with its inbound queue and outbound
// broadcaster. The game itself is touched only by the run goroutine; other
// callers enqueue events and read the latest snapshot.
type Room struct {
	Code string

	inbound  chan domain.Event
	bcast    *Broadcaster
	game     *domain.Game
	snapshot atomic.Pointer[domain.Game]
	active   atomic.Int64
	batchCap int
	cancel   context.CancelFunc
	logger   *zap.Logger
}

// Enqueue hands an event to the room's authority goroutine. It blocks only
// while the inbound queue is full; ctx bounds the wait.
func (r *Room) Enqueue(ctx context.Context, ev domain.Event) error {
	select {
	case r.inbound <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe attaches a receiver to the room's broadcast stream.
func (r *Room) Subscribe() (<-chan domain.Result, func()) {
	return r.bcast.Subscribe()
}

// Snapshot returns the state as of the last processed batch.
func (r *Room) Snapshot() *domain.Game {
	return r.snapshot.Load()
}

// LastActive reports when the room last processed events.
func (r *Room) LastActive() time.Time {
	return time.Unix(0, r.active.Load())
}

func (r *Room) touch() {
	r.active.Store(time.Now().UnixNano())
}

// run is the room's authority loop: block for the first pending event, drain
// a small batch without blocking, apply it, publish the results. All
// mutations to the game are linearized here.
func (r *Room) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.bcast.Close()
			return
		case first := <-r.inbound:
			batch := make([]domain.Event, 1, r.batchCap)
			batch[0] = first
		drain:
			for len(batch) < r.batchCap {
				select {
				case ev := <-r.inbound:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			r.apply(batch)
		}
	}
}

func (r *Room) apply(batch []domain.Event) {
	// A panic here is an engine bug; the room keeps running with its state
	// as of the previous batch.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("authority loop panic",
				zap.String("lobby", r.Code),
				zap.Any("panic", rec))
		}
	}()

	results := r.game.ProcessEvents(batch)
	r.snapshot.Store(r.game.Snapshot())
	r.touch()
	for _, res := range results {
		r.bcast.Publish(res)
	}
}
