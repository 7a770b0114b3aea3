package game

import (
	"strings"
	"time"
	"unicode/utf8"
)

// CheckNickname trims a nickname and validates it.
func CheckNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	switch {
	case nickname == "":
		return "", validationf("nickname is required")
	case utf8.RuneCountInString(nickname) > maxNicknameLength:
		return "", validationf("nickname is longer than %d characters", maxNicknameLength)
	case nickname == NoWinner:
		return "", validationf("nickname %q is reserved", NoWinner)
	}
	return nickname, nil
}

// NewRoom builds a lobby whose only player is its host.
func NewRoom(code, nickname string, now time.Time) (Room, error) {
	nickname, err := CheckNickname(nickname)
	if err != nil {
		return Room{}, err
	}
	return Room{
		Code:      code,
		Players:   []string{nickname},
		Host:      nickname,
		CreatedAt: now,
	}, nil
}

// Join adds nickname to the room. Joining twice is a no-op and reports
// changed=false.
func Join(room Room, nickname string) (next Room, changed bool, err error) {
	nickname, err = CheckNickname(nickname)
	if err != nil {
		return room, false, err
	}
	if room.HasPlayer(nickname) {
		return room, false, nil
	}

	next = room.Clone()
	next.Players = append(next.Players, nickname)
	// A player joining a finished round sits it out and plays from the next.
	if next.Round != nil {
		if _, ok := next.Round.Scores[nickname]; !ok {
			next.Round.Scores[nickname] = 0
		}
	}
	next.Version++
	return next, true, nil
}

// Leave removes nickname. When the last player leaves the caller must delete
// the room. A departing host hands over to the oldest remaining player.
func Leave(room Room, nickname string) (next Room, deleted bool, err error) {
	nickname = strings.TrimSpace(nickname)
	i := indexOf(room.Players, nickname)
	if i < 0 {
		return room, false, notFoundf("%s is not in room %s", nickname, room.Code)
	}

	next = room.Clone()
	next.Players = append(next.Players[:i], next.Players[i+1:]...)
	if len(next.Players) == 0 {
		return next, true, nil
	}
	if next.Host == nickname {
		next.Host = next.Players[0]
	}
	next.Version++
	return next, false, nil
}
