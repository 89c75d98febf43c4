package api

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"postflow/internal/auth"
	"postflow/internal/catalog"
	"postflow/internal/dialogue"
	"postflow/internal/models"
	"postflow/internal/storage"
	"postflow/internal/worker"
)

const genericRetryMessage = "Something went wrong on our side. Please try again."

// ChatDispatcher schedules inbound chat turns.
type ChatDispatcher interface {
	Process(ctx context.Context, userID int64, message string) (*dialogue.Reply, error)
}

// Regenerator rewrites a single post's content.
type Regenerator interface {
	Regenerate(ctx context.Context, persona *models.Persona, existing *models.Post, instruction string) (string, error)
}

// Handler wires HTTP routes to the dialogue engine and the store.
type Handler struct {
	store      *storage.Store
	auth       *auth.Service
	dispatcher ChatDispatcher
	regen      Regenerator
}

// NewHandler constructs a Handler instance.
func NewHandler(store *storage.Store, authService *auth.Service, dispatcher ChatDispatcher, regen Regenerator) *Handler {
	return &Handler{
		store:      store,
		auth:       authService,
		dispatcher: dispatcher,
		regen:      regen,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)

	authed := api.Group("")
	authed.Use(h.auth.Middleware())
	authed.POST("/chat", h.chat)
	authed.POST("/chat/reset", h.resetChat)
	authed.GET("/history", h.getHistory)
	authed.GET("/schedule", h.getSchedule)
	authed.POST("/posts/:id/regenerate", h.regeneratePost)
	authed.POST("/posts/:id/click", h.clickPost)
	authed.POST("/logout", h.logoutUser)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.store.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"auth_token": token,
	})
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	reply, err := h.dispatcher.Process(ctx, userID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		case errors.Is(err, storage.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "another message is being processed, please retry"})
		default:
			log.Printf("chat turn failed for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		}
		return
	}

	payload := gin.H{
		"responses": reply.Responses,
		"completed": reply.Completed,
		"phase":     dialogue.PhaseNumber(reply.Phase),
	}
	if reply.Role != "" {
		payload["role"] = string(reply.Role)
	}
	if reply.Schedule != nil {
		payload["schedule"] = scheduleView(reply.Schedule)
	}
	c.JSON(http.StatusOK, payload)
}

func (h *Handler) resetChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.store.ResetSession(c.Request.Context(), userID); err != nil {
		log.Printf("reset session for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}
	first := catalog.Qualify()[0].Format()
	if err := h.store.AppendHistory(c.Request.Context(), models.HistoryEntry{
		UserID: userID, Message: first, Sender: models.SenderBot,
	}); err != nil {
		log.Printf("append reset history for user %d: %v", userID, err)
	}
	c.JSON(http.StatusOK, gin.H{
		"responses": []string{first},
		"completed": false,
		"phase":     1,
	})
}

func (h *Handler) getHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	entries, err := h.store.History(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}
	if entries == nil {
		entries = make([]models.HistoryEntry, 0)
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) getSchedule(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	persona, err := h.store.LatestPersona(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no schedule yet, finish the interview first"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}
	posts, err := h.store.PostsByPersona(c.Request.Context(), persona.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"persona":  persona,
		"schedule": scheduleView(posts),
	})
}

type regenerateRequest struct {
	Instruction string `json:"instruction"`
}

func (h *Handler) regeneratePost(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || postID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req regenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	post, err := h.store.GetPost(c.Request.Context(), userID, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}
	persona, err := h.store.PersonaByID(c.Request.Context(), userID, post.PersonaID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}

	content, err := h.regen.Regenerate(c.Request.Context(), persona, post, req.Instruction)
	if err != nil {
		log.Printf("regenerate post %d for user %d: %v", postID, userID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": genericRetryMessage})
		return
	}
	if err := h.store.ReplacePostContent(c.Request.Context(), postID, content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}
	if err := h.store.AppendHistory(c.Request.Context(), models.HistoryEntry{
		UserID: userID, Message: content, Sender: models.SenderBot,
	}); err != nil {
		log.Printf("append regenerate history for user %d: %v", userID, err)
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             postID,
		"content":        content,
		"scheduled_date": post.ScheduledDate,
	})
}

func (h *Handler) clickPost(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || postID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	if _, err := h.store.GetPost(c.Request.Context(), userID, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}
	if err := h.store.RecordPostClick(c.Request.Context(), postID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericRetryMessage})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	token := c.GetHeader("Authorization")
	if token != "" {
		_ = h.auth.RevokeToken(c.Request.Context(), trimBearer(token))
	}
	c.Status(http.StatusNoContent)
}

func scheduleView(posts []models.Post) []gin.H {
	view := make([]gin.H, 0, len(posts))
	for _, p := range posts {
		view = append(view, gin.H{
			"id":                p.ID,
			"content":           p.Content,
			"scheduled_date":    p.ScheduledDate,
			"clicks":            p.Clicks,
			"regenerate_clicks": p.RegenerateClicks,
		})
	}
	return view
}

func trimBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return header
}
