package automation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"whatsapp-flowbot/internal/metrics"
	"whatsapp-flowbot/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLocker struct {
	mu       sync.Mutex
	keys     []string
	released int
	err      error
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func newEngineHarness(t *testing.T) (*harness, *recordingLocker) {
	h := newHarness(t)
	locker := &recordingLocker{}
	h.engine.locker = locker
	h.store.team[1] = 1
	h.store.addChatbot(models.Chatbot{ID: 1, WorkspaceID: 1, Trigger: "menu", Publish: true, Flow: menuFlow})
	h.store.settings[1] = &models.AutomationSettings{WorkspaceID: 1, Rules: rulesJSON(t,
		AutomationRule{ID: "fb", Kind: RuleFallback, Enabled: true, ResponseType: ResponseText, Message: "Sorry?"})}
	return h, locker
}

func inboundText(text string) InboundMessage {
	return InboundMessage{PhoneNumberID: "555", From: "15550001", MessageID: "wamid.1", Type: "text", Event: InboundEvent{Text: text}}
}

func TestHandleInboundStartsAndContinuesFlow(t *testing.T) {
	h, locker := newEngineHarness(t)
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.InboundEvents.WithLabelValues("handled"))

	require.NoError(t, h.engine.HandleInbound(ctx, inboundText("menu")))
	require.NoError(t, h.engine.HandleInbound(ctx, inboundText("2")))

	assert.Equal(t, []string{"Hello", "Pick one\n1. Cee\n2. Dee", "Dee"}, h.channel.texts())
	assert.Equal(t, "D", *h.conv().CurrentNode)
	assert.Equal(t, []string{"conversation:1:15550001", "conversation:1:15550001"}, locker.keys)
	assert.Equal(t, 2, locker.released)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.InboundEvents.WithLabelValues("handled")))

	var inbound []models.Message
	for _, m := range h.store.messages {
		if m.Direction == models.DirectionInbound {
			inbound = append(inbound, m)
		}
	}
	require.Len(t, inbound, 2)
	assert.Equal(t, "menu", inbound[0].Content)
	assert.False(t, inbound[0].BotAuthored)
}

func TestHandleInboundFallsBackWhenUnowned(t *testing.T) {
	h, _ := newEngineHarness(t)

	require.NoError(t, h.engine.HandleInbound(context.Background(), inboundText("good morning")))
	assert.Equal(t, []string{"Sorry?"}, h.channel.texts())
	require.Len(t, h.store.logs, 1)
	assert.Equal(t, "fb", h.store.logs[0].RuleID)
}

func TestHandleInboundRejectedStaysSilent(t *testing.T) {
	h, _ := newEngineHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.HandleInbound(ctx, inboundText("menu")))
	sends := len(h.channel.sent())

	require.NoError(t, h.engine.HandleInbound(ctx, inboundText("7")))
	assert.Len(t, h.channel.sent(), sends)
	assert.Empty(t, h.store.logs)
}

func TestHandleInboundButtonWithoutFlowIsUnowned(t *testing.T) {
	h, _ := newEngineHarness(t)
	msg := InboundMessage{
		PhoneNumberID: "555",
		From:          "15550001",
		Type:          "interactive",
		Event:         InboundEvent{Interactive: &ButtonReply{ID: "x", Title: "menu"}},
	}

	require.NoError(t, h.engine.HandleInbound(context.Background(), msg))
	assert.False(t, h.conv().HasFlow())
	assert.Equal(t, []string{"Sorry?"}, h.channel.texts())
}

func TestHandleInboundMediaIsOnlyRecorded(t *testing.T) {
	h, _ := newEngineHarness(t)
	msg := InboundMessage{PhoneNumberID: "555", From: "15550001", Type: "image", Content: "[image]"}

	require.NoError(t, h.engine.HandleInbound(context.Background(), msg))
	assert.Empty(t, h.channel.sent())
	require.Len(t, h.store.messages, 1)
	assert.Equal(t, "[image]", h.store.messages[0].Content)
}

func TestHandleInboundErrors(t *testing.T) {
	h, locker := newEngineHarness(t)
	msg := inboundText("menu")
	msg.PhoneNumberID = "unknown"
	err := h.engine.HandleInbound(context.Background(), msg)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	locker.err = errors.New("busy")
	err = h.engine.HandleInbound(context.Background(), inboundText("menu"))
	assert.ErrorContains(t, err, "busy")
	assert.Empty(t, h.channel.sent())
}

func TestProcessInboundEvent(t *testing.T) {
	h, _ := newEngineHarness(t)
	ctx := context.Background()
	conv := h.target.Conversation

	assert.False(t, h.engine.ProcessInboundEvent(ctx, conv, InboundEvent{Text: "weather"}))
	assert.True(t, h.engine.ProcessInboundEvent(ctx, conv, InboundEvent{Text: "/menu"}))
	assert.False(t, h.engine.ProcessInboundEvent(ctx, conv, InboundEvent{Text: "9"}))
	assert.True(t, h.engine.ProcessInboundEvent(ctx, conv, InboundEvent{Interactive: &ButtonReply{ID: "C", Title: "Cee"}}))

	conv.WorkspaceID = 99
	assert.False(t, h.engine.ProcessInboundEvent(ctx, conv, InboundEvent{Text: "menu"}))
}
