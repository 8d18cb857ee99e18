package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"whatsapp-flowbot/internal/automation"
	"whatsapp-flowbot/internal/config"
	"whatsapp-flowbot/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu   sync.Mutex
	msgs []automation.InboundMessage
}

func (p *recordingProcessor) HandleInbound(_ context.Context, msg automation.InboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.HandleMessage)
	return r
}

func TestVerifyWebhook(t *testing.T) {
	r := newRouter(NewHandler(&config.Config{VerifyToken: "secret"}, nil))

	cases := []struct {
		query string
		code  int
		body  string
	}{
		{"hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", http.StatusOK, "42"},
		{"hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", http.StatusForbidden, ""},
		{"hub.challenge=42", http.StatusBadRequest, ""},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?"+c.query, nil))
		assert.Equal(t, c.code, w.Code, c.query)
		assert.Equal(t, c.body, w.Body.String(), c.query)
	}
}

const deliveryJSON = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "waba",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550000", "phone_number_id": "555"},
        "messages": [
          {"from": "111", "id": "m1", "type": "text", "text": {"body": "menu"}},
          {"from": "111", "id": "m2", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "yes", "title": "Yes"}}},
          {"from": "111", "id": "m3", "type": "interactive",
           "interactive": {"type": "list_reply", "list_reply": {"id": "opt", "title": "Sales"}}},
          {"from": "111", "id": "m4", "type": "image", "image": {"id": "img1", "caption": "look"}}
        ],
        "statuses": [{"id": "m0", "status": "delivered", "recipient_id": "111"}]
      }
    }]
  }]
}`

func TestHandleMessage(t *testing.T) {
	processor := &recordingProcessor{}
	h := NewHandler(&config.Config{}, processor)
	r := newRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(deliveryJSON)))
	require.Equal(t, http.StatusOK, w.Code)
	h.Wait()

	require.Len(t, processor.msgs, 4)
	text := processor.msgs[0]
	assert.Equal(t, "555", text.PhoneNumberID)
	assert.Equal(t, "111", text.From)
	assert.Equal(t, "menu", text.Event.Text)
	assert.False(t, text.Event.IsInteractive())

	assert.Equal(t, &automation.ButtonReply{ID: "yes", Title: "Yes"}, processor.msgs[1].Event.Interactive)
	assert.Equal(t, &automation.ButtonReply{ID: "opt", Title: "Sales"}, processor.msgs[2].Event.Interactive)

	image := processor.msgs[3]
	assert.Equal(t, "[image]:img1:look", image.Content)
	assert.Empty(t, image.Event.Text)
	assert.Nil(t, image.Event.Interactive)
}

func TestHandleMessageBadJSON(t *testing.T) {
	r := newRouter(NewHandler(&config.Config{}, &recordingProcessor{}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToInboundTemplateButton(t *testing.T) {
	msg := ToInbound("555", models.WebhookMessage{
		From:   "111",
		Type:   "button",
		Button: &models.QuickReplyButton{Payload: "p", Text: "Stop promotions"},
	})
	assert.Equal(t, "Stop promotions", msg.Event.Text)
	assert.Equal(t, "[document]", mediaContent("document", nil))
}
