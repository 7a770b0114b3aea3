package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"songquiz/backend/internal/catalog"
	"songquiz/backend/internal/database"
	"songquiz/backend/internal/game"
	"songquiz/backend/internal/hub"
	"songquiz/backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testCatalog() catalog.Static {
	tracks := make(catalog.Static, 0, 12)
	for i := 0; i < 12; i++ {
		tracks = append(tracks, game.Track{
			Title: fmt.Sprintf("Track %02d", i),
			Game:  fmt.Sprintf("Game %d", i%4),
		})
	}
	return tracks
}

func newCoordinator(t *testing.T, s store.RoomStore, mods ...func(*Options)) *Coordinator {
	t.Helper()
	opts := Options{
		Store:   s,
		Catalog: testCatalog(),
		Hub:     hub.NewHub(),
		Now:     func() time.Time { return t0 },
	}
	for _, m := range mods {
		m(&opts)
	}
	c := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

// lobby creates a room hosted by Ana with the extra players joined.
func lobby(t *testing.T, c *Coordinator, players ...string) string {
	t.Helper()
	ctx := context.Background()
	view, err := c.Create(ctx, "Ana")
	require.NoError(t, err)
	code := view.Code
	for _, p := range players {
		_, err := c.Join(ctx, code, p)
		require.NoError(t, err)
	}
	return code
}

// seqRand replays fixed values, then falls back to its default.
type seqRand struct {
	mu   sync.Mutex
	vals []int
	def  int
}

func (r *seqRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.vals) == 0 {
		return r.def % n
	}
	v := r.vals[0]
	r.vals = r.vals[1:]
	return v % n
}

func TestCreateJoinGet(t *testing.T) {
	c := newCoordinator(t, store.NewMemory())
	ctx := context.Background()

	created, err := c.Create(ctx, "  Ana ")
	require.NoError(t, err)
	code := created.Code
	assert.True(t, game.ValidCode(code))
	assert.Equal(t, "Ana", created.Host)
	assert.Equal(t, []string{"Ana"}, created.Players)
	assert.Equal(t, int64(0), created.Version)

	view, err := c.Join(ctx, code, "Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana", "Bob"}, view.Players)
	assert.Equal(t, "Ana", view.Host)
	assert.Equal(t, int64(1), view.Version)

	again, err := c.Join(ctx, code, "Bob")
	require.NoError(t, err)
	assert.Equal(t, view.Players, again.Players)
	assert.Equal(t, view.Version, again.Version, "idempotent join must not write")

	got, err := c.Get(ctx, " "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.True(t, got.Exists)
	assert.Equal(t, "lobby", got.Phase)
}

func TestCreateRejectsBadNickname(t *testing.T) {
	c := newCoordinator(t, store.NewMemory())
	_, err := c.Create(context.Background(), "   ")
	assert.ErrorIs(t, err, game.ErrValidation)
	assert.Zero(t, c.Live())
}

func TestCreateRetriesOnCollision(t *testing.T) {
	s := store.NewMemory()
	taken, err := game.NewRoom("AAAAAA", "Zed", t0)
	require.NoError(t, err)
	require.NoError(t, s.Insert(context.Background(), taken))

	rng := &seqRand{vals: []int{0, 0, 0, 0, 0, 0}, def: 1}
	c := newCoordinator(t, s, func(o *Options) { o.Rand = rng })

	view, err := c.Create(context.Background(), "Ana")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", view.Code)
}

func TestCreateGivesUpWhenCodesExhausted(t *testing.T) {
	s := store.NewMemory()
	taken, err := game.NewRoom("AAAAAA", "Zed", t0)
	require.NoError(t, err)
	require.NoError(t, s.Insert(context.Background(), taken))

	c := newCoordinator(t, s, func(o *Options) { o.Rand = &seqRand{} })
	_, err = c.Create(context.Background(), "Ana")
	assert.ErrorIs(t, err, game.ErrConflict)
}

func TestCreateCodesAreUnique(t *testing.T) {
	c := newCoordinator(t, store.NewMemory())

	var mu sync.Mutex
	seen := map[string]bool{}
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			view, err := c.Create(ctx, fmt.Sprintf("p%d", i))
			if err != nil {
				return err
			}
			code := view.Code
			mu.Lock()
			defer mu.Unlock()
			if seen[code] {
				return fmt.Errorf("code %s handed out twice", code)
			}
			seen[code] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, 100)
}

func TestGetMissingRoomIsEmptyView(t *testing.T) {
	c := newCoordinator(t, store.NewMemory())
	ctx := context.Background()

	for _, code := range []string{"ZZZZZZ", "bad", ""} {
		view, err := c.Get(ctx, code)
		require.NoError(t, err)
		assert.False(t, view.Exists)
		assert.Empty(t, view.Players)
		assert.NotNil(t, view.Players)
	}
	assert.Zero(t, c.Live(), "reads of unknown rooms must not start actors")
}

func TestMutationsOnMissingRoom(t *testing.T) {
	c := newCoordinator(t, store.NewMemory())
	ctx := context.Background()

	_, err := c.Join(ctx, "ZZZZZZ", "Ana")
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = c.Join(ctx, "not-a-code", "Ana")
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = c.Guess(ctx, "ZZZZZZ", "Ana", "x")
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = c.Leave(ctx, "ZZZZZZ", "Ana")
	assert.ErrorIs(t, err, game.ErrNotFound)

	require.Eventually(t, func() bool { return c.Live() == 0 }, time.Second, 5*time.Millisecond)
}

func TestFullGame(t *testing.T) {
	c := newCoordinator(t, store.NewMemory())
	ctx := context.Background()
	code := lobby(t, c, "Bob")

	view, err := c.Start(ctx, code, "Bob")
	require.NoError(t, err)
	require.NotNil(t, view.Round)
	assert.Equal(t, "in_round", view.Phase)

	for round := 1; round <= game.TotalRounds; round++ {
		view, err = c.Get(ctx, code)
		require.NoError(t, err)
		title := view.Round.Songs[round-1].Title

		res, err := c.Guess(ctx, code, "Ana", title)
		require.NoError(t, err)
		assert.True(t, res.Correct)
		assert.Equal(t, game.MaxAttempts, res.PointsAwarded)

		res, err = c.Guess(ctx, code, "Bob", title)
		require.NoError(t, err)
		assert.True(t, res.RoundFinished)

		_, err = c.NextRound(ctx, code, "Bob")
		assert.ErrorIs(t, err, game.ErrNotAuthorized)

		view, err = c.NextRound(ctx, code, "Ana")
		require.NoError(t, err)
	}

	assert.Equal(t, "game_finished", view.Phase)
	assert.Equal(t, game.TotalRounds*game.MaxAttempts, view.Round.Scores["Ana"])

	view, err = c.Reset(ctx, code, "Ana")
	require.NoError(t, err)
	assert.Equal(t, "lobby", view.Phase)
	assert.Nil(t, view.Round)
}

func TestConcurrentGuessesAreNotLost(t *testing.T) {
	s := store.NewMemory()
	c := newCoordinator(t, s)
	players := []string{"Bob", "Cy", "Dee", "Eve", "Fay", "Gus", "Hal"}
	code := lobby(t, c, players...)
	_, err := c.Start(context.Background(), code, "Ana")
	require.NoError(t, err)

	all := append([]string{"Ana"}, players...)
	const perPlayer = 4

	g, ctx := errgroup.WithContext(context.Background())
	for _, p := range all {
		for i := 0; i < perPlayer; i++ {
			g.Go(func() error {
				_, err := c.Guess(ctx, code, p, fmt.Sprintf("wrong %d", i))
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	stored, err := s.Get(context.Background(), code)
	require.NoError(t, err)
	for _, p := range all {
		assert.Equal(t, perPlayer, stored.Round.Attempts[p], p)
		assert.Len(t, stored.Round.Guesses[p], perPlayer, p)
	}
	// create, 7 joins, start, then one write per guess
	assert.Equal(t, int64(len(players)+1+len(all)*perPlayer), stored.Version)
}

func newSQLiteStore(t *testing.T) store.RoomStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return store.NewGorm(db)
}

func TestConcurrentCorrectGuessesCreditOnce(t *testing.T) {
	cases := []struct {
		name         string
		store        func(t *testing.T) store.RoomStore
		coordinators int
	}{
		{"memory", func(*testing.T) store.RoomStore { return store.NewMemory() }, 1},
		{"sqlite shared by two coordinators", newSQLiteStore, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.store(t)
			coords := make([]*Coordinator, tc.coordinators)
			for i := range coords {
				coords[i] = newCoordinator(t, s)
			}
			players := []string{"Bob", "Cy", "Dee"}
			code := lobby(t, coords[0], players...)
			view, err := coords[0].Start(context.Background(), code, "Ana")
			require.NoError(t, err)
			title := view.Round.Songs[0].Title

			all := append([]string{"Ana"}, players...)
			const perPlayer = 3

			var (
				mu        sync.Mutex
				ok        int
				conflicts int
			)
			g, ctx := errgroup.WithContext(context.Background())
			for _, c := range coords {
				for _, p := range all {
					for i := 0; i < perPlayer; i++ {
						g.Go(func() error {
							_, err := c.Guess(ctx, code, p, title)
							mu.Lock()
							defer mu.Unlock()
							switch {
							case err == nil:
								ok++
							case errors.Is(err, game.ErrConflict):
								conflicts++
							case !errors.Is(err, game.ErrState):
								return fmt.Errorf("%s: %w", p, err)
							}
							return nil
						})
					}
				}
			}
			require.NoError(t, g.Wait())
			if tc.coordinators == 1 {
				assert.Zero(t, conflicts)
			}

			stored, err := s.Get(context.Background(), code)
			require.NoError(t, err)
			rs := stored.Round
			assert.True(t, rs.RoundFinished)
			assert.ElementsMatch(t, all, rs.RoundWinners)

			attempts := 0
			for _, p := range all {
				assert.Equal(t, game.MaxAttempts, rs.Scores[p], p)
				assert.Equal(t, rs.Attempts[p], len(rs.Guesses[p]), p)
				attempts += rs.Attempts[p]
			}
			assert.Equal(t, ok, attempts)
			// Extra correct guesses before the round closes count as attempts only.
			assert.GreaterOrEqual(t, ok, len(all))
		})
	}
}

func TestLeave(t *testing.T) {
	s := store.NewMemory()
	c := newCoordinator(t, s)
	ctx := context.Background()
	code := lobby(t, c, "Bob")

	deleted, err := c.Leave(ctx, code, "Ana")
	require.NoError(t, err)
	assert.False(t, deleted)

	view, err := c.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "Bob", view.Host)

	_, err = c.Leave(ctx, code, "Ana")
	assert.ErrorIs(t, err, game.ErrNotFound)

	deleted, err = c.Leave(ctx, code, "Bob")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Zero(t, s.Len())

	view, err = c.Get(ctx, code)
	require.NoError(t, err)
	assert.False(t, view.Exists)
	require.Eventually(t, func() bool { return c.Live() == 0 }, time.Second, 5*time.Millisecond)
}

func TestIdleActorsAreEvicted(t *testing.T) {
	s := store.NewMemory()
	c := newCoordinator(t, s, func(o *Options) { o.IdleTimeout = 20 * time.Millisecond })
	ctx := context.Background()
	code := lobby(t, c, "Bob")

	require.Eventually(t, func() bool { return c.Live() == 0 }, time.Second, 5*time.Millisecond)

	view, err := c.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana", "Bob"}, view.Players)

	view, err = c.Join(ctx, code, "Cy")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana", "Bob", "Cy"}, view.Players)
}

func TestReloadsAfterAnotherWriter(t *testing.T) {
	s := store.NewMemory()
	first := newCoordinator(t, s)
	second := newCoordinator(t, s)
	ctx := context.Background()

	code := lobby(t, first, "Bob")
	_, err := second.Join(ctx, code, "Cy")
	require.NoError(t, err)

	view, err := first.Join(ctx, code, "Dee")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana", "Bob", "Cy", "Dee"}, view.Players)

	stored, err := s.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, view.Players, stored.Players)
	assert.Equal(t, int64(3), stored.Version)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, code string) (game.Room, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(game.Room), args.Error(1)
}

func (m *mockStore) Insert(ctx context.Context, room game.Room) error {
	return m.Called(ctx, room).Error(0)
}

func (m *mockStore) Save(ctx context.Context, room game.Room, expectedVersion int64) error {
	return m.Called(ctx, room, expectedVersion).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, code string, expectedVersion int64) error {
	return m.Called(ctx, code, expectedVersion).Error(0)
}

func TestPersistentConflictGivesUp(t *testing.T) {
	room, err := game.NewRoom("ABCDEF", "Ana", t0)
	require.NoError(t, err)

	s := new(mockStore)
	s.On("Get", mock.Anything, "ABCDEF").Return(room, nil)
	s.On("Save", mock.Anything, mock.Anything, int64(0)).Return(store.ErrVersionConflict)

	c := newCoordinator(t, s)
	_, err = c.Join(context.Background(), "ABCDEF", "Bob")
	assert.ErrorIs(t, err, game.ErrConflict)

	s.AssertNumberOfCalls(t, "Save", MaxConflictRetries+1)
	s.AssertNumberOfCalls(t, "Get", MaxConflictRetries+1)

	view, err := c.Get(context.Background(), "ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana"}, view.Players, "a failed command must not change the room")
}

func TestStoreFailureLeavesRoomUnchanged(t *testing.T) {
	room, err := game.NewRoom("ABCDEF", "Ana", t0)
	require.NoError(t, err)

	s := new(mockStore)
	s.On("Get", mock.Anything, "ABCDEF").Return(room, nil).Once()
	s.On("Save", mock.Anything, mock.Anything, int64(0)).Return(fmt.Errorf("disk on fire")).Once()

	c := newCoordinator(t, s)
	_, err = c.Join(context.Background(), "ABCDEF", "Bob")
	require.Error(t, err)
	assert.NotErrorIs(t, err, game.ErrConflict)

	view, err := c.Get(context.Background(), "ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana"}, view.Players)
	s.AssertExpectations(t)
}

func TestCancelledCommandHasNoEffect(t *testing.T) {
	s := store.NewMemory()
	c := newCoordinator(t, s)
	code := lobby(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Join(ctx, code, "Bob")
	require.Error(t, err)

	stored, err := s.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana"}, stored.Players)
}

func TestPublishesOnCommit(t *testing.T) {
	h := hub.NewHub()
	c := newCoordinator(t, store.NewMemory(), func(o *Options) { o.Hub = h })
	code := lobby(t, c)

	w := h.Watch(code)
	defer w.Close()

	_, err := c.Join(context.Background(), code, "Bob")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, w.Wait(ctx))
}

func TestShutdown(t *testing.T) {
	c := newCoordinator(t, store.NewMemory())
	code := lobby(t, c, "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Shutdown(ctx))

	_, err := c.Join(context.Background(), code, "Cy")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Create(context.Background(), "Dee")
	assert.ErrorIs(t, err, ErrClosed)

	// Reads fall back to the store.
	view, err := c.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana", "Bob"}, view.Players)
}
