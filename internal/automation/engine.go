package automation

import (
	"context"
	"fmt"
	"time"

	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/metrics"
	"whatsapp-flowbot/internal/models"
	"whatsapp-flowbot/internal/whatsapp"

	"go.uber.org/zap"
)

// lockWait bounds how long an inbound message waits for its conversation lock.
const lockWait = 30 * time.Second

// Store is everything the engine reads and writes.
type Store interface {
	ChatbotStore
	ConversationStore
	MessageLog
	WorkspaceStore
	TeamStore
	SettingsStore
	AutomationLogStore
}

type Deps struct {
	Store       Store
	Channel     Channel
	Responder   Responder
	Locker      Locker
	Graphs      *GraphCache
	FlowTimeout time.Duration
	Location    *time.Location
	Now         func() time.Time
}

// Engine decides who answers an inbound message: the active flow, a newly triggered
// flow, or the automation rules.
type Engine struct {
	Triggers   *TriggerResolver
	Flows      *FlowExecutor
	Dispatcher *Dispatcher
	Rules      *RuleEngine

	store  Store
	locker Locker
}

func New(d Deps) *Engine {
	dispatcher := &Dispatcher{
		Channel:       d.Channel,
		Messages:      d.Store,
		Conversations: d.Store,
	}
	flows := &FlowExecutor{
		Chatbots:      d.Store,
		Conversations: d.Store,
		Dispatcher:    dispatcher,
		Graphs:        d.Graphs,
		Timeout:       d.FlowTimeout,
		Now:           d.Now,
	}
	return &Engine{
		Triggers:   &TriggerResolver{Chatbots: d.Store},
		Flows:      flows,
		Dispatcher: dispatcher,
		Rules: &RuleEngine{
			Settings:   d.Store,
			Team:       d.Store,
			Logs:       d.Store,
			Chatbots:   d.Store,
			Dispatcher: dispatcher,
			Flows:      flows,
			Responder:  d.Responder,
			Location:   d.Location,
			Now:        d.Now,
		},
		store:  d.Store,
		locker: d.Locker,
	}
}

// Process runs the flow layer for one event. It never consults the automation rules.
func (e *Engine) Process(ctx context.Context, target Target, event InboundEvent) Outcome {
	conv := target.Conversation
	if conv.HasFlow() {
		return e.Flows.ContinueFlow(ctx, target, event)
	}
	// Button taps answer prompts; they never start a flow.
	if event.IsInteractive() {
		return Unowned
	}

	bot := e.Triggers.Resolve(ctx, event.Text, conv.WorkspaceID, conv.Status)
	if bot == nil {
		return Unowned
	}
	if !e.Flows.StartFlow(ctx, target, bot) {
		return Unowned
	}
	return Handled
}

// ProcessInboundEvent reports whether the flow layer fully handled the event. Rejected
// option input also reports false; callers that must stay silent on it use Process.
func (e *Engine) ProcessInboundEvent(ctx context.Context, conv *models.Conversation, event InboundEvent) bool {
	ws, err := e.store.GetWorkspace(ctx, conv.WorkspaceID)
	if err != nil {
		logger.Error("error loading workspace", zap.Uint("workspaceID", conv.WorkspaceID), zap.Error(err))
		return false
	}
	return e.Process(ctx, targetFor(ws, conv), event) == Handled
}

// InboundMessage is a message received on a workspace number.
type InboundMessage struct {
	PhoneNumberID string
	From          string
	MessageID     string
	// Type is the channel message type: text, interactive, image and so on.
	Type    string
	Content string
	Event   InboundEvent
}

func (m InboundMessage) conversational() bool {
	return m.Event.IsInteractive() || m.Event.Text != ""
}

// HandleInbound records an inbound message and answers it. Messages of one conversation
// are handled one at a time.
func (e *Engine) HandleInbound(ctx context.Context, msg InboundMessage) error {
	ws, err := e.store.FindWorkspaceByPhoneNumberID(ctx, msg.PhoneNumberID)
	if err != nil {
		return fmt.Errorf("find workspace for %s: %w", msg.PhoneNumberID, err)
	}

	// A started reply sequence runs to completion even if the request goes away.
	ctx = context.WithoutCancel(ctx)

	if e.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, lockWait)
		unlock, err := e.locker.Lock(lockCtx, fmt.Sprintf("conversation:%d:%s", ws.ID, msg.From))
		cancel()
		if err != nil {
			return fmt.Errorf("lock conversation %s: %w", msg.From, err)
		}
		defer unlock()
	}

	conv, err := e.store.FindOrCreateConversation(ctx, ws.ID, msg.From)
	if err != nil {
		return fmt.Errorf("find conversation %s: %w", msg.From, err)
	}

	content := msg.Content
	if content == "" {
		content = msg.Event.Input()
	}
	if err := e.store.AppendMessage(ctx, &models.Message{
		WorkspaceID:    ws.ID,
		ConversationID: conv.ID,
		WaID:           msg.From,
		Direction:      models.DirectionInbound,
		Content:        content,
		Type:           msg.Type,
		Status:         "received",
	}); err != nil {
		logger.Error("error recording inbound message", zap.String("waID", msg.From), zap.Error(err))
	}

	if !msg.conversational() {
		metrics.InboundEvents.WithLabelValues("ignored").Inc()
		return nil
	}

	target := targetFor(ws, conv)
	outcome := e.Process(ctx, target, msg.Event)
	metrics.InboundEvents.WithLabelValues(outcome.String()).Inc()
	logger.Debug("inbound event processed",
		zap.String("waID", msg.From),
		zap.String("messageID", msg.MessageID),
		zap.Stringer("outcome", outcome))

	if outcome == Unowned {
		e.Rules.Evaluate(ctx, target, msg.Event)
	}
	return nil
}

func targetFor(ws *models.Workspace, conv *models.Conversation) Target {
	return Target{
		Conversation: conv,
		Credentials: whatsapp.Credentials{
			AccessToken:   ws.AccessToken,
			PhoneNumberID: ws.PhoneNumberID,
		},
	}
}
