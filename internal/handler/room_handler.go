package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"songquiz/backend/internal/auth"
	"songquiz/backend/internal/game"
	"songquiz/backend/internal/hub"
	"songquiz/backend/internal/room"
	"songquiz/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MaxPollWait caps how long a long-polling get may hold a request.
const MaxPollWait = 25 * time.Second

// Rooms is the coordinator surface the handlers need.
type Rooms interface {
	Create(ctx context.Context, nickname string) (game.RoomView, error)
	Get(ctx context.Context, code string) (game.RoomView, error)
	Join(ctx context.Context, code, nickname string) (game.RoomView, error)
	Start(ctx context.Context, code, requester string) (game.RoomView, error)
	Guess(ctx context.Context, code, nickname, text string) (game.GuessResult, error)
	NextRound(ctx context.Context, code, requester string) (game.RoomView, error)
	Leave(ctx context.Context, code, nickname string) (bool, error)
	Reset(ctx context.Context, code, requester string) (game.RoomView, error)
}

type RoomHandler struct {
	rooms  Rooms
	hub    *hub.Hub
	secret string
}

func NewRoomHandler(rooms Rooms, h *hub.Hub, jwtSecret string) *RoomHandler {
	return &RoomHandler{rooms: rooms, hub: h, secret: jwtSecret}
}

// Register mounts the room routes on rg.
func (h *RoomHandler) Register(rg *gin.RouterGroup) {
	rooms := rg.Group("/rooms")
	{
		rooms.POST("", h.CreateRoom)
		rooms.GET("/:code", h.GetRoom)
		rooms.POST("/:code/join", h.JoinRoom)
		rooms.POST("/:code/start", h.StartGame)
		rooms.POST("/:code/guess", h.SubmitGuess)
		rooms.POST("/:code/next-round", h.NextRound)
		rooms.POST("/:code/leave", h.LeaveRoom)
		rooms.POST("/:code/reset", h.ResetGame)
	}
	rg.POST("/action", h.Action)
}

// region --- DTOs ---

// PlayerInput names the acting player. A room token overrides Nickname.
type PlayerInput struct {
	Nickname string `json:"nickname" example:"Ana"`
}

// GuessInput is a title guess.
type GuessInput struct {
	Nickname string `json:"nickname" example:"Ana"`
	Text     string `json:"text" binding:"required" example:"Gerudo Valley"`
}

// ActionInput is the body of the single action endpoint.
type ActionInput struct {
	Action   string `json:"action" binding:"required" example:"guess" enums:"create,join,get,start,guess,next_round,leave,reset"`
	RoomCode string `json:"roomCode" example:"K7QX2M"`
	Nickname string `json:"nickname" example:"Ana"`
	Text     string `json:"text" example:"Gerudo Valley"`
}

// SessionResponse is returned by create and join.
type SessionResponse struct {
	RoomCode string        `json:"roomCode" example:"K7QX2M"`
	Token    string        `json:"token"`
	Room     game.RoomView `json:"room"`
}

// LeaveResponse reports whether the last player left.
type LeaveResponse struct {
	RoomDeleted bool `json:"roomDeleted"`
}

// endregion

// region --- Handlers ---

// CreateRoom godoc
// @Summary      Create a room
// @Description  Opens a new room hosted by the given nickname and returns its code with a session token.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        input body PlayerInput true "Host nickname"
// @Success      201 {object} SessionResponse
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "No free room code"
// @Router       /rooms [post]
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var input PlayerInput
	if !bindOptional(c, &input) {
		return
	}
	resp, err := h.create(c.Request.Context(), input.Nickname)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetRoom godoc
// @Summary      Get a room
// @Description  Returns a snapshot of the room. A missing room is returned with exists=false. With since, waits up to wait seconds for a version newer than since.
// @Tags         rooms
// @Produce      json
// @Param        code  path  string true  "Room code"
// @Param        since query int    false "Last version the client has seen"
// @Param        wait  query int    false "Seconds to wait for a change" default(25)
// @Success      200 {object} game.RoomView
// @Router       /rooms/{code} [get]
func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := room.CanonicalCode(c.Param("code"))

	since, err := strconv.ParseInt(c.Query("since"), 10, 64)
	if err != nil || h.hub == nil {
		view, err := h.rooms.Get(c.Request.Context(), code)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
		return
	}

	view, err := h.poll(c.Request.Context(), code, since, pollWait(c.Query("wait")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// JoinRoom godoc
// @Summary      Join a room
// @Description  Adds the nickname to the room. Joining twice is a no-op.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        code  path string      true "Room code"
// @Param        input body PlayerInput true "Nickname"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse "Room not found"
// @Router       /rooms/{code}/join [post]
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var input PlayerInput
	if !bindOptional(c, &input) {
		return
	}
	code := room.CanonicalCode(c.Param("code"))
	resp, err := h.join(c.Request.Context(), code, h.player(c, code, input.Nickname))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StartGame godoc
// @Summary      Start a game
// @Description  Draws the songs and begins round 1. Needs at least two players.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code  path string      true  "Room code"
// @Param        input body PlayerInput false "Requester"
// @Success      200 {object} game.RoomView
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "Game already running"
// @Router       /rooms/{code}/start [post]
func (h *RoomHandler) StartGame(c *gin.Context) {
	var input PlayerInput
	if !bindOptional(c, &input) {
		return
	}
	code := room.CanonicalCode(c.Param("code"))
	view, err := h.rooms.Start(c.Request.Context(), code, h.player(c, code, input.Nickname))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SubmitGuess godoc
// @Summary      Submit a guess
// @Description  Checks a title guess against the active song and scores it.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code  path string     true "Room code"
// @Param        input body GuessInput true "Guess"
// @Success      200 {object} game.GuessResult
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "Round not accepting guesses"
// @Router       /rooms/{code}/guess [post]
func (h *RoomHandler) SubmitGuess(c *gin.Context) {
	var input GuessInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	code := room.CanonicalCode(c.Param("code"))
	result, err := h.rooms.Guess(c.Request.Context(), code, h.player(c, code, input.Nickname), input.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// NextRound godoc
// @Summary      Advance the round
// @Description  Moves to the next round, or finishes the game after the last one. Host only.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code  path string      true "Room code"
// @Param        input body PlayerInput true "Requester"
// @Success      200 {object} game.RoomView
// @Failure      403 {object} ErrorResponse "Host only"
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /rooms/{code}/next-round [post]
func (h *RoomHandler) NextRound(c *gin.Context) {
	var input PlayerInput
	if !bindOptional(c, &input) {
		return
	}
	code := room.CanonicalCode(c.Param("code"))
	view, err := h.rooms.NextRound(c.Request.Context(), code, h.player(c, code, input.Nickname))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// LeaveRoom godoc
// @Summary      Leave a room
// @Description  Removes the player. The room is deleted when its last player leaves and the host passes to the next player.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code  path string      true "Room code"
// @Param        input body PlayerInput true "Player"
// @Success      200 {object} LeaveResponse
// @Failure      404 {object} ErrorResponse
// @Router       /rooms/{code}/leave [post]
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	var input PlayerInput
	if !bindOptional(c, &input) {
		return
	}
	code := room.CanonicalCode(c.Param("code"))
	deleted, err := h.rooms.Leave(c.Request.Context(), code, h.player(c, code, input.Nickname))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, LeaveResponse{RoomDeleted: deleted})
}

// ResetGame godoc
// @Summary      Reset a room
// @Description  Drops the current game and returns the room to its lobby. Host only.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code  path string      true "Room code"
// @Param        input body PlayerInput true "Requester"
// @Success      200 {object} game.RoomView
// @Failure      403 {object} ErrorResponse "Host only"
// @Failure      404 {object} ErrorResponse
// @Router       /rooms/{code}/reset [post]
func (h *RoomHandler) ResetGame(c *gin.Context) {
	var input PlayerInput
	if !bindOptional(c, &input) {
		return
	}
	code := room.CanonicalCode(c.Param("code"))
	view, err := h.rooms.Reset(c.Request.Context(), code, h.player(c, code, input.Nickname))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Action godoc
// @Summary      Run a room action
// @Description  Single entry point for every room action, addressed by roomCode.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        input body ActionInput true "Action"
// @Success      200 {object} map[string]interface{}
// @Failure      400 {object} ErrorResponse "Unknown action"
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /action [post]
func (h *RoomHandler) Action(c *gin.Context) {
	var input ActionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	code := room.CanonicalCode(input.RoomCode)
	nickname := h.player(c, code, input.Nickname)

	var (
		body   any
		err    error
		status = http.StatusOK
	)
	switch strings.ToLower(input.Action) {
	case "create":
		body, err = h.create(ctx, input.Nickname)
		status = http.StatusCreated
	case "join":
		body, err = h.join(ctx, code, nickname)
	case "get":
		body, err = h.rooms.Get(ctx, code)
	case "start":
		body, err = h.rooms.Start(ctx, code, nickname)
	case "guess":
		body, err = h.rooms.Guess(ctx, code, nickname, input.Text)
	case "next_round", "next-round":
		body, err = h.rooms.NextRound(ctx, code, nickname)
	case "leave":
		var deleted bool
		deleted, err = h.rooms.Leave(ctx, code, nickname)
		body = LeaveResponse{RoomDeleted: deleted}
	case "reset":
		body, err = h.rooms.Reset(ctx, code, nickname)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action: " + input.Action})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, body)
}

// endregion

func (h *RoomHandler) create(ctx context.Context, nickname string) (SessionResponse, error) {
	view, err := h.rooms.Create(ctx, nickname)
	if err != nil {
		return SessionResponse{}, err
	}
	return h.session(view.Code, view.Host, view)
}

func (h *RoomHandler) join(ctx context.Context, code, nickname string) (SessionResponse, error) {
	view, err := h.rooms.Join(ctx, code, nickname)
	if err != nil {
		return SessionResponse{}, err
	}
	return h.session(code, strings.TrimSpace(nickname), view)
}

func (h *RoomHandler) session(code, nickname string, view game.RoomView) (SessionResponse, error) {
	token, err := jwt.GenerateToken(h.secret, nickname, code)
	if err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{RoomCode: code, Token: token, Room: view}, nil
}

// player prefers the nickname of a token issued for this room over the one
// in the body.
func (h *RoomHandler) player(c *gin.Context, code, fromBody string) string {
	if nickname, ok := auth.Nickname(c, code); ok {
		return nickname
	}
	return fromBody
}

// poll returns as soon as the room's version is past since, the room is
// gone, or wait runs out.
func (h *RoomHandler) poll(ctx context.Context, code string, since int64, wait time.Duration) (game.RoomView, error) {
	w := h.hub.Watch(code)
	defer w.Close()

	view, err := h.rooms.Get(ctx, code)
	if err != nil || !view.Exists || view.Version > since {
		return view, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if w.Wait(waitCtx) {
		log.Debug().Str("room", code).Int64("since", since).Msg("Long poll woke on change")
	}
	if ctx.Err() != nil {
		return game.RoomView{}, ctx.Err()
	}
	return h.rooms.Get(ctx, code)
}

func pollWait(raw string) time.Duration {
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return MaxPollWait
	}
	return min(time.Duration(secs)*time.Second, MaxPollWait)
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	return false
}
