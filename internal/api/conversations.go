package api

import (
	"context"
	"errors"
	"net/http"

	"whatsapp-flowbot/internal/database"
	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/models"
	"whatsapp-flowbot/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TextSender delivers an agent's reply.
type TextSender interface {
	SendText(ctx context.Context, creds whatsapp.Credentials, to, body string) error
}

type ConversationHandler struct {
	Repo   *database.Repository
	Sender TextSender
}

func NewConversationHandler(repo *database.Repository, sender TextSender) *ConversationHandler {
	return &ConversationHandler{Repo: repo, Sender: sender}
}

// GetConversations lists a workspace's conversations, most recently active first.
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	wsID, ok := uintParam(c, "wsID")
	if !ok {
		return
	}

	convs, err := h.Repo.ListConversations(c.Request.Context(), wsID, limitQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, convs)
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	msgs, err := h.Repo.ListMessages(c.Request.Context(), id, limitQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, msgs)
}

// ReleaseConversation ends any running flow session so an agent can take over.
func (h *ConversationHandler) ReleaseConversation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	conv, err := h.Repo.ReleaseConversation(c.Request.Context(), id)
	if err != nil {
		respondLookupError(c, err)
		return
	}

	logger.Info("conversation released", zap.Uint("conversationID", id))
	c.JSON(http.StatusOK, conv)
}

// SendMessage sends an agent's text reply and records it in the message log.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	conv, err := h.Repo.GetConversation(ctx, id)
	if err != nil {
		respondLookupError(c, err)
		return
	}
	ws, err := h.Repo.GetWorkspace(ctx, conv.WorkspaceID)
	if err != nil {
		respondLookupError(c, err)
		return
	}

	creds := whatsapp.Credentials{AccessToken: ws.AccessToken, PhoneNumberID: ws.PhoneNumberID}
	sendErr := h.Sender.SendText(ctx, creds, conv.WaID, req.Text)

	msg := models.Message{
		WorkspaceID:    conv.WorkspaceID,
		ConversationID: conv.ID,
		WaID:           conv.WaID,
		Direction:      models.DirectionOutbound,
		Content:        req.Text,
		Type:           "text",
		Status:         "sent",
	}
	if sendErr != nil {
		msg.Status = "failed"
	}
	if err := h.Repo.AppendMessage(ctx, &msg); err != nil {
		logger.Error("error recording agent message", zap.Uint("conversationID", conv.ID), zap.Error(err))
	}

	if sendErr != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": sendErr.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}

func respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
