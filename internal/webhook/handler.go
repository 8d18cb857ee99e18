package webhook

import (
	"context"
	"net/http"
	"sync"

	"whatsapp-flowbot/internal/automation"
	"whatsapp-flowbot/internal/config"
	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/pkg/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Processor handles one inbound message end to end.
type Processor interface {
	HandleInbound(ctx context.Context, msg automation.InboundMessage) error
}

type Handler struct {
	Config    *config.Config
	Processor Processor

	wg sync.WaitGroup
}

func NewHandler(cfg *config.Config, processor Processor) *Handler {
	return &Handler{
		Config:    cfg,
		Processor: processor,
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode == "subscribe" && token == h.Config.VerifyToken {
		logger.Info("webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// HandleMessage acknowledges the delivery at once and processes its messages in the
// background, in the order they were delivered.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Warn("error binding webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	var inbound []automation.InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				logger.Debug("message status",
					zap.String("messageID", status.ID),
					zap.String("status", status.Status),
					zap.String("recipient", status.RecipientID))
			}
			for _, message := range change.Value.Messages {
				inbound = append(inbound, ToInbound(change.Value.Metadata.PhoneNumberID, message))
			}
		}
	}

	if len(inbound) > 0 && h.Processor != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for _, msg := range inbound {
				if err := h.Processor.HandleInbound(context.Background(), msg); err != nil {
					logger.Error("error handling inbound message",
						zap.String("from", msg.From),
						zap.String("messageID", msg.MessageID),
						zap.Error(err))
				}
			}
		}()
	}

	c.Status(http.StatusOK)
}

// Wait blocks until in-flight messages are processed.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// ToInbound converts a webhook message into the engine's inbound message. Button and list
// replies become interactive events; template quick replies are read as text.
func ToInbound(phoneNumberID string, message models.WebhookMessage) automation.InboundMessage {
	msg := automation.InboundMessage{
		PhoneNumberID: phoneNumberID,
		From:          message.From,
		MessageID:     message.ID,
		Type:          message.Type,
	}

	switch message.Type {
	case "text":
		if message.Text != nil {
			msg.Event.Text = message.Text.Body
			msg.Content = message.Text.Body
		}
	case "interactive":
		if it := message.Interactive; it != nil {
			switch {
			case it.ButtonReply != nil:
				msg.Event.Interactive = &automation.ButtonReply{ID: it.ButtonReply.ID, Title: it.ButtonReply.Title}
			case it.ListReply != nil:
				msg.Event.Interactive = &automation.ButtonReply{ID: it.ListReply.ID, Title: it.ListReply.Title}
			}
		}
		if msg.Event.Interactive != nil {
			msg.Content = msg.Event.Interactive.Title
		} else {
			msg.Content = "[interactive]"
		}
	case "button":
		if message.Button != nil {
			msg.Event.Text = message.Button.Text
			msg.Content = message.Button.Text
		}
	case "image":
		msg.Content = mediaContent("image", message.Image)
	case "video":
		msg.Content = mediaContent("video", message.Video)
	case "audio":
		msg.Content = mediaContent("audio", message.Audio)
	case "document":
		msg.Content = mediaContent("document", message.Document)
	default:
		msg.Content = "[" + message.Type + "]"
	}
	return msg
}

func mediaContent(kind string, media *models.MediaMessage) string {
	content := "[" + kind + "]"
	if media == nil {
		return content
	}
	content += ":" + media.ID
	if media.Caption != "" {
		content += ":" + media.Caption
	} else if media.Filename != "" {
		content += ":" + media.Filename
	}
	return content
}
