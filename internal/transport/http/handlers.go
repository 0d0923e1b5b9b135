package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxHistory = 500

// Handler serves the room, roster and chat endpoints.
type Handler struct {
	Store        core.Store
	Feed         core.ChatFeed
	HistoryLimit int
}

type SendRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Register mounts the routes under g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/rooms/:id", h.getRoom)
	g.GET("/rooms/:id/participants", h.listParticipants)
	g.GET("/rooms/:id/messages", h.listMessages)
	g.POST("/rooms/:id/messages", h.sendMessage)
	g.GET("/rooms/:id/chat/ws", h.chatSocket)
}

func roomID(c *gin.Context) domain.RoomID { return domain.RoomID(c.Param("id")) }

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrUserIDInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "transport.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) getRoom(c *gin.Context) {
	room, err := h.Store.GetRoom(c.Request.Context(), roomID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) listParticipants(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.Store.GetRoom(ctx, roomID(c)); err != nil {
		h.fail(c, err)
		return
	}
	roster, err := h.Store.ActiveParticipants(ctx, roomID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if roster == nil {
		roster = domain.Roster{}
	}
	c.JSON(http.StatusOK, roster)
}

func (h *Handler) limit(c *gin.Context) int {
	n := h.HistoryLimit
	if n <= 0 {
		n = 100
	}
	if q := c.Query("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			n = min(v, maxHistory)
		}
	}
	return n
}

func (h *Handler) listMessages(c *gin.Context) {
	ctx := c.Request.Context()
	msgs, err := h.Store.RecentMessages(ctx, roomID(c), h.limit(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	cache := map[domain.UserID]*domain.Profile{}
	for i := range msgs {
		msgs[i].Sender = h.sender(ctx, cache, msgs[i].SenderID)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sender(ctx context.Context, cache map[domain.UserID]*domain.Profile, id domain.UserID) *domain.Profile {
	if p, ok := cache[id]; ok {
		return p
	}
	p, err := h.Store.Profile(ctx, id)
	if err != nil || p == nil {
		anon := domain.AnonymousProfile(id)
		p = &anon
	}
	cache[id] = p
	return p
}

// sendMessage posts as the body's user_id, or as the caller's client token.
func (h *Handler) sendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Store.GetRoom(ctx, roomID(c)); err != nil {
		h.fail(c, err)
		return
	}
	user := domain.UserID(req.UserID)
	if user == "" {
		user = domain.UserID(c.GetString("client_token"))
	}
	if err := user.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	text, err := domain.NormalizeMessage(req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	m := domain.ChatMessage{RoomID: roomID(c), SenderID: user, Text: text}
	if err := h.Store.InsertMessage(ctx, &m); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatSocket relays the room's insert feed to a browser until it disconnects.
func (h *Handler) chatSocket(c *gin.Context) {
	room := roomID(c)
	if _, err := h.Store.GetRoom(c.Request.Context(), room); err != nil {
		h.fail(c, err)
		return
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "transport.http").Msg("chat ws upgrade")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.ChatMessage, 64)

	sub, err := h.Feed.Subscribe(ctx, room, func(m domain.ChatMessage) {
		select {
		case out <- m:
		default:
			log.Warn().Str("module", "transport.http").Str("room", string(room)).Msg("chat relay backlog, dropping")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("module", "transport.http").Str("room", string(room)).Msg("chat subscribe")
		cancel()
		_ = ws.Close()
		return
	}

	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			_ = sub.Unsubscribe()
			_ = ws.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-out:
				_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := ws.WriteJSON(m); err != nil {
					cancel()
					return
				}
			}
		}
	}()
}
