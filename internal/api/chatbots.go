package api

import (
	"errors"
	"net/http"

	"whatsapp-flowbot/internal/automation"
	"whatsapp-flowbot/internal/database"
	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChatbotHandler struct {
	Repo *database.Repository
}

func NewChatbotHandler(repo *database.Repository) *ChatbotHandler {
	return &ChatbotHandler{Repo: repo}
}

type chatbotRequest struct {
	Name      string `json:"name" binding:"required"`
	Trigger   string `json:"trigger"`
	IsDefault bool   `json:"is_default"`
	Flow      string `json:"flow" binding:"required"`
}

func (h *ChatbotHandler) ListChatbots(c *gin.Context) {
	wsID, ok := uintParam(c, "wsID")
	if !ok {
		return
	}

	bots, err := h.Repo.ListChatbots(c.Request.Context(), wsID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, bots)
}

func (h *ChatbotHandler) GetChatbot(c *gin.Context) {
	bot, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, bot)
}

// CreateChatbot stores a new draft chatbot. The flow must parse and validate.
func (h *ChatbotHandler) CreateChatbot(c *gin.Context) {
	wsID, ok := uintParam(c, "wsID")
	if !ok {
		return
	}

	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validFlow(c, req.Flow) {
		return
	}

	bot := models.Chatbot{
		WorkspaceID: wsID,
		Name:        req.Name,
		Trigger:     req.Trigger,
		IsDefault:   req.IsDefault,
		Flow:        req.Flow,
	}
	if err := h.Repo.SaveChatbot(c.Request.Context(), &bot); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.Info("chatbot created", zap.Uint("chatbotID", bot.ID), zap.Uint("workspaceID", wsID))
	c.JSON(http.StatusCreated, gin.H{"id": bot.ID, "message": "Chatbot created successfully"})
}

func (h *ChatbotHandler) UpdateChatbot(c *gin.Context) {
	bot, ok := h.load(c)
	if !ok {
		return
	}

	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validFlow(c, req.Flow) {
		return
	}

	bot.Name = req.Name
	bot.Trigger = req.Trigger
	bot.IsDefault = req.IsDefault
	bot.Flow = req.Flow
	if err := h.Repo.SaveChatbot(c.Request.Context(), bot); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Chatbot updated successfully"})
}

func (h *ChatbotHandler) PublishChatbot(c *gin.Context) {
	h.setPublished(c, true)
}

func (h *ChatbotHandler) UnpublishChatbot(c *gin.Context) {
	h.setPublished(c, false)
}

func (h *ChatbotHandler) setPublished(c *gin.Context, publish bool) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	if err := h.Repo.SetPublished(c.Request.Context(), id, publish); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chatbot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "publish": publish})
}

func (h *ChatbotHandler) load(c *gin.Context) (*models.Chatbot, bool) {
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, false
	}
	bot, err := h.Repo.GetChatbot(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chatbot not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return bot, true
}

// validFlow answers 422 with every authoring problem of the flow.
func validFlow(c *gin.Context, flow string) bool {
	graph, err := automation.ParseGraph(flow)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return false
	}
	if problems := graph.Validate(); len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.Error()
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid flow", "problems": msgs})
		return false
	}
	return true
}
