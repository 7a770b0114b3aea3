package game

import (
	"maps"
	"slices"
	"time"
)

const (
	TotalRounds = 10
	MaxAttempts = 6
	MinPlayers  = 2

	// NoWinner is stored in RoundWinners when a round ends with nobody correct.
	NoWinner = "NONE"

	maxNicknameLength = 24
)

// Track is one catalog entry. Identity is (Title, Game).
type Track struct {
	Title     string `json:"title"`
	Game      string `json:"game"`
	Franchise string `json:"franchise,omitempty"`
	AudioURL  string `json:"audioUrl,omitempty"`
}

// GuessRecord is one submitted guess within the current round.
type GuessRecord struct {
	Text          string `json:"text"`
	Correct       bool   `json:"correct"`
	GameCorrect   bool   `json:"gameCorrect"`
	AttemptNumber int    `json:"attemptNumber"`
}

// RoundState exists from the moment a game starts until it is reset.
type RoundState struct {
	CurrentRound   int                      `json:"currentRound"`
	TotalRounds    int                      `json:"totalRounds"`
	Songs          []Track                  `json:"songs"`
	Scores         map[string]int           `json:"scores"`
	RoundStartTime time.Time                `json:"roundStartTime"`
	RoundWinners   []string                 `json:"roundWinners"`
	RoundFinished  bool                     `json:"roundFinished"`
	GameFinished   bool                     `json:"gameFinished"`
	Attempts       map[string]int           `json:"attempts"`
	Guesses        map[string][]GuessRecord `json:"guesses"`
}

// Room is the aggregate stored under its code.
type Room struct {
	Code        string      `json:"roomCode"`
	Players     []string    `json:"players"`
	Host        string      `json:"host"`
	CreatedAt   time.Time   `json:"createdAt"`
	GameStarted bool        `json:"gameStarted"`
	Round       *RoundState `json:"round,omitempty"`
	Version     int64       `json:"version"`
}

// GuessResult is what a player learns from one guess.
type GuessResult struct {
	Correct       bool `json:"correct"`
	GameCorrect   bool `json:"gameCorrect"`
	PointsAwarded int  `json:"pointsAwarded"`
	AttemptsUsed  int  `json:"attemptsUsed"`
	RoundFinished bool `json:"roundFinished"`
}

// Phase is the state-machine position of a room.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseInRound
	PhaseRoundFinished
	PhaseGameFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseInRound:
		return "in_round"
	case PhaseRoundFinished:
		return "round_finished"
	case PhaseGameFinished:
		return "game_finished"
	default:
		return "unknown"
	}
}

// Phase derives the state from the aggregate.
func (r Room) Phase() Phase {
	if r.Round == nil {
		return PhaseLobby
	}
	switch {
	case r.Round.GameFinished:
		return PhaseGameFinished
	case r.Round.RoundFinished:
		return PhaseRoundFinished
	default:
		return PhaseInRound
	}
}

// HasPlayer reports whether nickname is currently in the room.
func (r Room) HasPlayer(nickname string) bool {
	return indexOf(r.Players, nickname) >= 0
}

// ActiveTrack returns the track of the current round.
func (rs *RoundState) ActiveTrack() Track {
	return rs.Songs[rs.CurrentRound-1]
}

// Won reports whether nickname already has credit for the current round.
func (rs *RoundState) Won(nickname string) bool {
	for _, w := range rs.RoundWinners {
		if w == nickname && w != NoWinner {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so transitions never alias the caller's state.
func (r Room) Clone() Room {
	cp := r
	cp.Players = slices.Clone(r.Players)
	if r.Round != nil {
		cp.Round = r.Round.clone()
	}
	return cp
}

func (rs *RoundState) clone() *RoundState {
	cp := *rs
	cp.Songs = slices.Clone(rs.Songs)
	cp.RoundWinners = slices.Clone(rs.RoundWinners)
	cp.Scores = maps.Clone(rs.Scores)
	cp.Attempts = maps.Clone(rs.Attempts)
	if cp.Scores == nil {
		cp.Scores = map[string]int{}
	}
	if cp.Attempts == nil {
		cp.Attempts = map[string]int{}
	}
	cp.Guesses = make(map[string][]GuessRecord, len(rs.Guesses))
	for k, v := range rs.Guesses {
		cp.Guesses[k] = slices.Clone(v)
	}
	return &cp
}

func indexOf(list []string, s string) int {
	return slices.Index(list, s)
}
