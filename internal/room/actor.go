package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"songquiz/backend/internal/game"
	"songquiz/backend/internal/store"

	"github.com/rs/zerolog/log"
)

type effect int

const (
	noWrite effect = iota
	insertRoom
	saveRoom
	deleteRoom
)

// mutation is what an op wants done with the room. next is ignored for
// noWrite and deleteRoom.
type mutation struct {
	effect effect
	next   game.Room
	guess  game.GuessResult
}

// op computes a mutation from the actor's current copy. It must not retain
// or modify cur.
type op func(cur game.Room, exists bool) (mutation, error)

type request struct {
	ctx   context.Context
	op    op // nil for reads
	reply chan response
}

type response struct {
	view   game.RoomView
	guess  game.GuessResult
	exists bool
	err    error
}

// actor owns one room. pending is guarded by Coordinator.mu.
type actor struct {
	code    string
	inbox   chan request
	done    chan struct{}
	pending int

	loaded bool
	exists bool
	room   game.Room
}

func (c *Coordinator) run(a *actor) {
	defer c.wg.Done()
	defer close(a.done)

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case req := <-a.inbox:
			if c.closing() {
				req.reply <- response{err: ErrClosed}
				c.drain(a)
				return
			}
			req.reply <- c.handle(a, req)
			if c.finish(a) {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleTimeout)

		case <-idle.C:
			if c.evict(a) {
				log.Debug().Str("room", a.code).Msg("Evicted idle room")
				return
			}
			idle.Reset(c.idleTimeout)

		case <-c.quit:
			c.drain(a)
			return
		}
	}
}

// finish accounts for a processed request and retires the actor if its room
// no longer exists and nothing else is queued.
func (c *Coordinator) finish(a *actor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a.pending--
	if a.exists || a.pending > 0 {
		return false
	}
	delete(c.actors, a.code)
	return true
}

func (c *Coordinator) evict(a *actor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.pending > 0 {
		return false
	}
	delete(c.actors, a.code)
	return true
}

// drain answers everything still queued with ErrClosed.
func (c *Coordinator) drain(a *actor) {
	for {
		select {
		case req := <-a.inbox:
			req.reply <- response{err: ErrClosed}
		default:
			return
		}
	}
}

func (c *Coordinator) handle(a *actor, req request) (resp response) {
	if err := req.ctx.Err(); err != nil {
		return response{err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("room", a.code).Interface("panic", r).Msg("Room command panicked")
			a.loaded = false
			resp = response{err: fmt.Errorf("room %s: internal error", a.code)}
		}
	}()

	if !a.loaded {
		if err := c.load(req.ctx, a); err != nil {
			return response{err: err}
		}
	}

	if req.op == nil {
		return a.response()
	}

	for attempt := 0; ; attempt++ {
		m, err := req.op(a.room.Clone(), a.exists)
		if err != nil {
			return response{err: err}
		}
		if m.effect == noWrite {
			return a.response()
		}

		err = c.commit(req.ctx, a, m)
		if err == nil {
			out := a.response()
			out.guess = m.guess
			return out
		}
		if !stale(err) {
			log.Error().Err(err).Str("room", a.code).Msg("Failed to write room")
			return response{err: err}
		}
		if attempt >= MaxConflictRetries {
			log.Warn().Str("room", a.code).Int("attempts", attempt+1).Msg("Giving up on contended room")
			return response{err: game.Conflict("room %s keeps changing, try again", a.code)}
		}

		log.Debug().Err(err).Str("room", a.code).Int("attempt", attempt+1).Msg("Stale room copy, reloading")
		if err := c.load(req.ctx, a); err != nil {
			return response{err: err}
		}
	}
}

// stale reports whether the store rejected a write because another writer
// got there first.
func stale(err error) bool {
	return errors.Is(err, store.ErrVersionConflict) ||
		errors.Is(err, store.ErrRoomExists) ||
		errors.Is(err, store.ErrRoomNotFound)
}

func (c *Coordinator) load(ctx context.Context, a *actor) error {
	room, err := c.store.Get(ctx, a.code)
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		a.room, a.exists = game.Room{}, false
	case err != nil:
		a.loaded = false
		return fmt.Errorf("room %s: load: %w", a.code, err)
	default:
		a.room, a.exists = room, true
	}
	a.loaded = true
	return nil
}

// commit writes the mutation and, only once the store accepted it, makes it
// the actor's copy. A started write is not cut short by the caller leaving.
func (c *Coordinator) commit(ctx context.Context, a *actor, m mutation) error {
	ctx = context.WithoutCancel(ctx)

	var err error
	switch m.effect {
	case insertRoom:
		err = c.store.Insert(ctx, m.next)
	case saveRoom:
		err = c.store.Save(ctx, m.next, a.room.Version)
	case deleteRoom:
		err = c.store.Delete(ctx, a.code, a.room.Version)
	}
	if err != nil {
		return err
	}

	if m.effect == deleteRoom {
		a.room, a.exists = game.Room{}, false
		if c.hub != nil {
			c.hub.PublishDeleted(a.code)
		}
		return nil
	}

	a.room, a.exists = m.next, true
	if c.hub != nil {
		c.hub.Publish(a.code, a.room.Version)
	}
	return nil
}

func (a *actor) response() response {
	if !a.exists {
		return response{view: game.EmptyView(a.code)}
	}
	return response{view: game.View(a.room), exists: true}
}
