package game

import (
	"strings"
	"time"
)

// StartGame freezes a song list and opens round 1. Any player may start;
// requester may be empty when the caller carries no identity.
func StartGame(room Room, requester string, catalog []Track, rng Rand, now time.Time) (Room, error) {
	if requester != "" && !room.HasPlayer(requester) {
		return room, validationf("%s is not in room %s", requester, room.Code)
	}
	switch room.Phase() {
	case PhaseLobby, PhaseGameFinished:
	default:
		return room, statef("game already in progress in room %s", room.Code)
	}
	if len(room.Players) < MinPlayers {
		return room, validationf("at least %d players are required to start", MinPlayers)
	}

	songs, err := PickSongs(catalog, TotalRounds, rng)
	if err != nil {
		return room, err
	}

	next := room.Clone()
	scores := make(map[string]int, len(next.Players))
	for _, p := range next.Players {
		scores[p] = 0
	}
	next.Round = &RoundState{
		CurrentRound:   1,
		TotalRounds:    TotalRounds,
		Songs:          songs,
		Scores:         scores,
		RoundStartTime: now,
		RoundWinners:   []string{},
		Attempts:       map[string]int{},
		Guesses:        map[string][]GuessRecord{},
	}
	next.GameStarted = true
	next.Version++
	return next, nil
}

// SubmitGuess records one attempt and awards credit at most once per player
// per round.
func SubmitGuess(room Room, nickname, text string, catalog []Track) (Room, GuessResult, error) {
	if strings.TrimSpace(text) == "" {
		return room, GuessResult{}, validationf("guess text is required")
	}
	switch room.Phase() {
	case PhaseLobby:
		return room, GuessResult{}, statef("game has not started")
	case PhaseRoundFinished:
		return room, GuessResult{}, statef("round %d is already finished", room.Round.CurrentRound)
	case PhaseGameFinished:
		return room, GuessResult{}, statef("game is finished")
	}
	if !room.HasPlayer(nickname) {
		return room, GuessResult{}, validationf("%s is not in room %s", nickname, room.Code)
	}
	if room.Round.Attempts[nickname] >= MaxAttempts {
		return room, GuessResult{}, statef("%s has used all %d attempts", nickname, MaxAttempts)
	}

	next := room.Clone()
	rs := next.Round
	active := rs.ActiveTrack()

	guess := Normalize(text)
	correct := guess == Normalize(active.Title)
	gameCorrect := correct || sameGameTitle(guess, active.Game, catalog)

	rs.Attempts[nickname]++
	used := rs.Attempts[nickname]

	points := 0
	if correct && !rs.Won(nickname) {
		rs.RoundWinners = append(rs.RoundWinners, nickname)
		points = max(0, MaxAttempts-used+1)
		rs.Scores[nickname] += points
	}

	rs.Guesses[nickname] = append(rs.Guesses[nickname], GuessRecord{
		Text:          text,
		Correct:       correct,
		GameCorrect:   gameCorrect,
		AttemptNumber: used,
	})

	if roundComplete(next.Players, rs) {
		rs.RoundFinished = true
		if len(rs.RoundWinners) == 0 {
			rs.RoundWinners = []string{NoWinner}
		}
	}
	next.Version++

	return next, GuessResult{
		Correct:       correct,
		GameCorrect:   gameCorrect,
		PointsAwarded: points,
		AttemptsUsed:  used,
		RoundFinished: rs.RoundFinished,
	}, nil
}

// AdvanceRound moves to the next round, or finishes the game after the last.
func AdvanceRound(room Room, requester string, now time.Time) (Room, error) {
	if err := requireHost(room, requester); err != nil {
		return room, err
	}
	switch room.Phase() {
	case PhaseLobby:
		return room, statef("game has not started")
	case PhaseGameFinished:
		return room, statef("game is finished")
	}

	next := room.Clone()
	rs := next.Round
	if rs.CurrentRound >= rs.TotalRounds {
		rs.GameFinished = true
		next.Version++
		return next, nil
	}

	rs.CurrentRound++
	rs.RoundWinners = []string{}
	rs.RoundFinished = false
	rs.Attempts = map[string]int{}
	rs.Guesses = map[string][]GuessRecord{}
	rs.RoundStartTime = now
	next.Version++
	return next, nil
}

// ResetGame drops the round state and returns the room to the lobby.
func ResetGame(room Room, requester string) (Room, error) {
	if err := requireHost(room, requester); err != nil {
		return room, err
	}
	next := room.Clone()
	next.Round = nil
	next.GameStarted = false
	next.Version++
	return next, nil
}

func requireHost(room Room, requester string) error {
	if requester == "" || requester != room.Host {
		return notAuthorizedf("only the host can do this")
	}
	return nil
}

// roundComplete: every current player has either won or run out of attempts.
func roundComplete(players []string, rs *RoundState) bool {
	for _, p := range players {
		if !rs.Won(p) && rs.Attempts[p] < MaxAttempts {
			return false
		}
	}
	return true
}

func sameGameTitle(guess, game string, catalog []Track) bool {
	for _, t := range catalog {
		if t.Game == game && Normalize(t.Title) == guess {
			return true
		}
	}
	return false
}
