package game

import "time"

// RoomView is the read model returned by get. A missing room is rendered as
// Exists=false with no players rather than as an error.
type RoomView struct {
	Exists      bool        `json:"exists"`
	Code        string      `json:"roomCode"`
	Phase       string      `json:"phase"`
	Players     []string    `json:"players"`
	Host        string      `json:"host,omitempty"`
	CreatedAt   *time.Time  `json:"createdAt,omitempty"`
	GameStarted bool        `json:"gameStarted"`
	Round       *RoundState `json:"gameState,omitempty"`
	Version     int64       `json:"version"`
}

// View snapshots a room. The snapshot shares nothing with room, and lists
// only the songs of rounds already reached.
func View(room Room) RoomView {
	cp := room.Clone()
	if rs := cp.Round; rs != nil {
		rs.Songs = rs.Songs[:min(max(rs.CurrentRound, 0), len(rs.Songs))]
	}
	created := cp.CreatedAt
	return RoomView{
		Exists:      true,
		Code:        cp.Code,
		Phase:       cp.Phase().String(),
		Players:     cp.Players,
		Host:        cp.Host,
		CreatedAt:   &created,
		GameStarted: cp.GameStarted,
		Round:       cp.Round,
		Version:     cp.Version,
	}
}

// EmptyView is the view of a room that does not exist.
func EmptyView(code string) RoomView {
	return RoomView{
		Code:    code,
		Phase:   PhaseLobby.String(),
		Players: []string{},
	}
}
