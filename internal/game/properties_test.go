package game

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// Random guess/advance/join/leave sequences must keep the room invariants.
// A player who joins after the round finished sits that round out and is
// exempt from the completion check until the next round starts.
func TestRoomInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(MinPlayers, 5).Draw(t, "players")
		room, err := NewRoom("ABCDEF", "p0", t0)
		if err != nil {
			t.Fatal(err)
		}
		for i := 1; i < n; i++ {
			room, _, _ = Join(room, fmt.Sprintf("p%d", i))
		}
		catalog := testCatalog()
		room, err = StartGame(room, "", catalog, seeded(), t0)
		if err != nil {
			t.Fatal(err)
		}

		titles := []string{"wrong", "nope"}
		for _, tr := range catalog {
			titles = append(titles, tr.Title)
		}

		credited := map[string]bool{}
		late := map[string]bool{}
		joined := 0
		steps := rapid.IntRange(1, 120).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			if len(room.Players) == 0 {
				return
			}
			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0:
				before := room.Round.CurrentRound
				next, err := AdvanceRound(room, room.Host, t0)
				if err == nil {
					room = next
					if room.Round.CurrentRound != before {
						credited = map[string]bool{}
						late = map[string]bool{}
					}
				}
			case 1:
				if len(room.Players) >= 8 {
					continue
				}
				joined++
				p := fmt.Sprintf("guest%d", joined)
				next, changed, err := Join(room, p)
				if err != nil || !changed {
					t.Fatalf("join %s: changed=%v err=%v", p, changed, err)
				}
				if room.Round.RoundFinished {
					late[p] = true
				}
				room = next
			case 2:
				p := rapid.SampledFrom(room.Players).Draw(t, "leaver")
				next, deleted, err := Leave(room, p)
				if err != nil {
					t.Fatalf("leave %s: %v", p, err)
				}
				if deleted {
					return
				}
				room = next
			default:
				p := rapid.SampledFrom(room.Players).Draw(t, "guesser")
				text := rapid.SampledFrom(titles).Draw(t, "text")
				before := room.Round.Scores[p]
				next, res, err := SubmitGuess(room, p, text, catalog)
				if err != nil {
					if !errors.Is(err, ErrState) {
						t.Fatalf("unexpected error kind: %v", err)
					}
					continue
				}
				room = next
				if res.PointsAwarded > 0 {
					if credited[p] {
						t.Fatalf("%s credited twice in round %d", p, room.Round.CurrentRound)
					}
					credited[p] = true
				}
				if room.Round.Scores[p]-before != res.PointsAwarded {
					t.Fatalf("score delta %d != awarded %d", room.Round.Scores[p]-before, res.PointsAwarded)
				}
			}
			checkInvariants(t, room, late)
		}
	})
}

func checkInvariants(t *rapid.T, room Room, late map[string]bool) {
	if !room.HasPlayer(room.Host) {
		t.Fatalf("host %s not in players %v", room.Host, room.Players)
	}
	rs := room.Round
	if rs == nil {
		return
	}
	if rs.CurrentRound < 1 || rs.CurrentRound > rs.TotalRounds {
		t.Fatalf("current round %d out of range", rs.CurrentRound)
	}
	for p, a := range rs.Attempts {
		if a < 0 || a > MaxAttempts {
			t.Fatalf("attempts[%s]=%d", p, a)
		}
		if a != len(rs.Guesses[p]) {
			t.Fatalf("attempts[%s]=%d but %d guesses", p, a, len(rs.Guesses[p]))
		}
	}
	for p, sc := range rs.Scores {
		if sc < 0 {
			t.Fatalf("negative score for %s", p)
		}
	}
	for _, p := range room.Players {
		if _, ok := rs.Scores[p]; !ok {
			t.Fatalf("no score entry for %s", p)
		}
	}
	seen := map[string]bool{}
	for _, w := range rs.RoundWinners {
		if seen[w] {
			t.Fatalf("duplicate winner %s", w)
		}
		seen[w] = true
	}
	if rs.RoundFinished && !rs.GameFinished {
		for _, p := range room.Players {
			if !late[p] && !rs.Won(p) && rs.Attempts[p] < MaxAttempts {
				t.Fatalf("round finished but %s neither won nor exhausted", p)
			}
		}
	}
}
