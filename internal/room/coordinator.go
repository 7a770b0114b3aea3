// Package room serializes every command against a room code through one
// goroutine per live room. The goroutine writes each new state through to the
// room store with a version check, so several server processes sharing one
// database still never lose an update.
package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"songquiz/backend/internal/catalog"
	"songquiz/backend/internal/game"
	"songquiz/backend/internal/hub"
	"songquiz/backend/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	// MaxConflictRetries bounds reload-and-retry rounds after a store
	// version conflict.
	MaxConflictRetries = 3

	// MaxCodeAttempts bounds code generation on collisions.
	MaxCodeAttempts = 32

	DefaultIdleTimeout = 30 * time.Minute
	defaultInboxSize   = 64
)

// ErrClosed is returned for commands issued or still queued after Shutdown.
var ErrClosed = errors.New("room: coordinator closed")

// Options configures a Coordinator. Store and Catalog are required.
type Options struct {
	Store       store.RoomStore
	Catalog     catalog.Provider
	Hub         *hub.Hub
	Rand        game.Rand
	Now         func() time.Time
	IdleTimeout time.Duration
	InboxSize   int
}

type Coordinator struct {
	store       store.RoomStore
	catalog     catalog.Provider
	hub         *hub.Hub
	rng         game.Rand
	now         func() time.Time
	idleTimeout time.Duration
	inboxSize   int

	mu     sync.Mutex
	actors map[string]*actor
	closed bool
	quit   chan struct{}
	wg     sync.WaitGroup
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		store:       opts.Store,
		catalog:     opts.Catalog,
		hub:         opts.Hub,
		rng:         opts.Rand,
		now:         opts.Now,
		idleTimeout: opts.IdleTimeout,
		inboxSize:   opts.InboxSize,
		actors:      make(map[string]*actor),
		quit:        make(chan struct{}),
	}
	if c.rng == nil {
		c.rng = game.DefaultRand()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.idleTimeout <= 0 {
		c.idleTimeout = DefaultIdleTimeout
	}
	if c.inboxSize <= 0 {
		c.inboxSize = defaultInboxSize
	}
	return c
}

// CanonicalCode upper-cases and trims a user-typed room code.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create opens a new room hosted by nickname and returns its first snapshot.
func (c *Coordinator) Create(ctx context.Context, nickname string) (game.RoomView, error) {
	nickname, err := game.CheckNickname(nickname)
	if err != nil {
		return game.RoomView{}, err
	}

	for i := 0; i < MaxCodeAttempts; i++ {
		code := game.NewCode(c.rng)
		resp, err := c.send(ctx, code, func(cur game.Room, exists bool) (mutation, error) {
			if exists {
				return mutation{}, errCodeTaken
			}
			room, err := game.NewRoom(code, nickname, c.now())
			if err != nil {
				return mutation{}, err
			}
			return mutation{effect: insertRoom, next: room}, nil
		})
		if errors.Is(err, errCodeTaken) {
			log.Debug().Str("room", code).Msg("Room code collision, drawing another")
			continue
		}
		if err != nil {
			return game.RoomView{}, err
		}
		log.Info().Str("room", code).Str("host", nickname).Msg("Room created")
		return resp.view, nil
	}
	return game.RoomView{}, game.Conflict("no free room code after %d attempts", MaxCodeAttempts)
}

var errCodeTaken = errors.New("room: code taken")

// Get returns a snapshot of the room. A missing room is an empty view, not
// an error.
func (c *Coordinator) Get(ctx context.Context, code string) (game.RoomView, error) {
	code = CanonicalCode(code)
	if !game.ValidCode(code) {
		return game.EmptyView(code), nil
	}

	if a := c.acquireLive(code); a != nil {
		resp, err := c.enqueue(ctx, a, request{ctx: ctx})
		if err != nil {
			return game.RoomView{}, err
		}
		return resp.view, resp.err
	}

	room, err := c.store.Get(ctx, code)
	if errors.Is(err, store.ErrRoomNotFound) {
		return game.EmptyView(code), nil
	}
	if err != nil {
		return game.RoomView{}, err
	}
	return game.View(room), nil
}

// Join adds nickname to the room. Joining twice is a no-op.
func (c *Coordinator) Join(ctx context.Context, code, nickname string) (game.RoomView, error) {
	resp, err := c.mutate(ctx, code, func(cur game.Room, exists bool) (mutation, error) {
		if !exists {
			return mutation{}, game.RoomNotFound(cur.Code)
		}
		next, changed, err := game.Join(cur, nickname)
		if err != nil || !changed {
			return mutation{}, err
		}
		return mutation{effect: saveRoom, next: next}, nil
	})
	return resp.view, err
}

// Start begins a game, or a new one after the previous finished.
func (c *Coordinator) Start(ctx context.Context, code, requester string) (game.RoomView, error) {
	resp, err := c.mutate(ctx, code, func(cur game.Room, exists bool) (mutation, error) {
		if !exists {
			return mutation{}, game.RoomNotFound(cur.Code)
		}
		next, err := game.StartGame(cur, requester, c.catalog.ListTracks(), c.rng, c.now())
		if err != nil {
			return mutation{}, err
		}
		return mutation{effect: saveRoom, next: next}, nil
	})
	if err == nil {
		log.Info().Str("room", resp.view.Code).Strs("players", resp.view.Players).Msg("Game started")
	}
	return resp.view, err
}

// Guess submits a title guess for the active round.
func (c *Coordinator) Guess(ctx context.Context, code, nickname, text string) (game.GuessResult, error) {
	resp, err := c.mutate(ctx, code, func(cur game.Room, exists bool) (mutation, error) {
		if !exists {
			return mutation{}, game.RoomNotFound(cur.Code)
		}
		next, result, err := game.SubmitGuess(cur, nickname, text, c.catalog.ListTracks())
		if err != nil {
			return mutation{}, err
		}
		return mutation{effect: saveRoom, next: next, guess: result}, nil
	})
	return resp.guess, err
}

// NextRound advances to the next round or finishes the game. Host only.
func (c *Coordinator) NextRound(ctx context.Context, code, requester string) (game.RoomView, error) {
	resp, err := c.mutate(ctx, code, func(cur game.Room, exists bool) (mutation, error) {
		if !exists {
			return mutation{}, game.RoomNotFound(cur.Code)
		}
		next, err := game.AdvanceRound(cur, requester, c.now())
		if err != nil {
			return mutation{}, err
		}
		return mutation{effect: saveRoom, next: next}, nil
	})
	return resp.view, err
}

// Leave removes nickname and reports whether the room was deleted.
func (c *Coordinator) Leave(ctx context.Context, code, nickname string) (bool, error) {
	resp, err := c.mutate(ctx, code, func(cur game.Room, exists bool) (mutation, error) {
		if !exists {
			return mutation{}, game.RoomNotFound(cur.Code)
		}
		next, deleted, err := game.Leave(cur, nickname)
		if err != nil {
			return mutation{}, err
		}
		if deleted {
			return mutation{effect: deleteRoom}, nil
		}
		return mutation{effect: saveRoom, next: next}, nil
	})
	if err != nil {
		return false, err
	}
	if !resp.exists {
		log.Info().Str("room", resp.view.Code).Msg("Last player left, room deleted")
	}
	return !resp.exists, nil
}

// Reset returns the room to its lobby. Host only.
func (c *Coordinator) Reset(ctx context.Context, code, requester string) (game.RoomView, error) {
	resp, err := c.mutate(ctx, code, func(cur game.Room, exists bool) (mutation, error) {
		if !exists {
			return mutation{}, game.RoomNotFound(cur.Code)
		}
		next, err := game.ResetGame(cur, requester)
		if err != nil {
			return mutation{}, err
		}
		return mutation{effect: saveRoom, next: next}, nil
	})
	return resp.view, err
}

// Live reports how many rooms currently have an actor.
func (c *Coordinator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}

// Shutdown stops every actor. Commands still queued get ErrClosed. Committed
// state is already in the store.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.quit)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("Room coordinator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) closing() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

// mutate runs fn on the room's actor. Unknown or malformed codes are rooms
// that do not exist.
func (c *Coordinator) mutate(ctx context.Context, code string, fn op) (response, error) {
	code = CanonicalCode(code)
	if !game.ValidCode(code) {
		return response{view: game.EmptyView(code)}, game.RoomNotFound(code)
	}
	return c.send(ctx, code, func(cur game.Room, exists bool) (mutation, error) {
		if !exists {
			cur.Code = code
		}
		return fn(cur, exists)
	})
}

func (c *Coordinator) send(ctx context.Context, code string, fn op) (response, error) {
	a, err := c.acquire(code)
	if err != nil {
		return response{}, err
	}
	resp, err := c.enqueue(ctx, a, request{ctx: ctx, op: fn})
	if err != nil {
		return response{}, err
	}
	return resp, resp.err
}

// acquire returns the room's actor, starting one if needed, with a pending
// slot reserved so it cannot be evicted before the request is queued.
func (c *Coordinator) acquire(code string) (*actor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	a, ok := c.actors[code]
	if !ok {
		a = &actor{code: code, inbox: make(chan request, c.inboxSize), done: make(chan struct{})}
		c.actors[code] = a
		c.wg.Add(1)
		go c.run(a)
	}
	a.pending++
	return a, nil
}

// acquireLive is acquire without starting an actor.
func (c *Coordinator) acquireLive(code string) *actor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	a, ok := c.actors[code]
	if !ok {
		return nil
	}
	a.pending++
	return a
}

func (c *Coordinator) release(a *actor) {
	c.mu.Lock()
	a.pending--
	c.mu.Unlock()
}

// enqueue hands req to the actor and waits for its reply. A caller that
// gives up after the request was queued leaves it to run or be skipped.
func (c *Coordinator) enqueue(ctx context.Context, a *actor, req request) (response, error) {
	req.reply = make(chan response, 1)
	select {
	case a.inbox <- req:
	case <-ctx.Done():
		c.release(a)
		return response{}, ctx.Err()
	case <-c.quit:
		c.release(a)
		return response{}, ErrClosed
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-a.done:
		// The actor stopped on shutdown; it may have answered first.
		select {
		case resp := <-req.reply:
			return resp, nil
		default:
			return response{}, ErrClosed
		}
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}
