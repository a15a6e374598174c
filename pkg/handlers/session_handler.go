package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"oee-copilot/pkg/logger"
	"oee-copilot/pkg/models"
	"oee-copilot/pkg/store"

	"github.com/gin-gonic/gin"
)

// SessionStore はセッションと会話履歴の操作です。
type SessionStore interface {
	CreateSession(ctx context.Context, title string) (models.Session, error)
	GetSession(ctx context.Context, id string) (models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	RenameSession(ctx context.Context, id, title string) error
	QueryMessages(ctx context.Context, sessionID string, asc bool, limit int) ([]models.ConversationTurn, error)
}

// SessionHandler チャットセッションのハンドラ
type SessionHandler struct {
	store SessionStore
	log   *logger.Logger
}

// NewSessionHandler は新しいSessionHandlerを生成します。
func NewSessionHandler(s SessionStore, log *logger.Logger) *SessionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionHandler{store: s, log: log}
}

// Create は新しいセッションを作成します。タイトルは省略可。
func (h *SessionHandler) Create(c *gin.Context) {
	var req models.SessionCreateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	session, err := h.store.CreateSession(c.Request.Context(), strings.TrimSpace(req.Title))
	if err != nil {
		h.log.Errorw("failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, session)
}

// List は更新日時の新しい順にセッションを返します。
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.store.ListSessions(c.Request.Context())
	if err != nil {
		h.log.Errorw("failed to list sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// Rename はセッションのタイトルを変更します。
func (h *SessionHandler) Rename(c *gin.Context) {
	var req models.SessionRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	id := c.Param("id")
	err := h.store.RenameSession(c.Request.Context(), id, strings.TrimSpace(req.Title))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		h.log.Errorw("failed to rename session", "sessionId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rename session"})
		return
	}

	session, err := h.store.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"id": id, "title": strings.TrimSpace(req.Title)})
		return
	}
	c.JSON(http.StatusOK, session)
}

// Messages はセッションの会話履歴を時系列順で返します。
// ?limit= で件数を指定でき、省略時や不正な値はstore.DefaultPageSizeです。
func (h *SessionHandler) Messages(c *gin.Context) {
	id := c.Param("id")
	session, err := h.store.GetSession(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		h.log.Errorw("failed to load session", "sessionId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit <= 0 || limit > store.DefaultPageSize {
		limit = store.DefaultPageSize
	}
	turns, err := h.store.QueryMessages(c.Request.Context(), id, true, limit)
	if err != nil {
		h.log.Errorw("failed to load messages", "sessionId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "messages": turns})
}
