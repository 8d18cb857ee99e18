package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/metrics"
	"whatsapp-flowbot/internal/models"

	"go.uber.org/zap"
)

// RuleKind is the condition an automation rule answers.
type RuleKind string

const (
	RuleOutOfHours    RuleKind = "out_of_hours"
	RuleNoAgentOnline RuleKind = "no_agent_online"
	RuleWelcome       RuleKind = "welcome"
	RuleFallback      RuleKind = "fallback"
)

// ValidRuleKind reports whether kind is one the engine evaluates.
func ValidRuleKind(kind RuleKind) bool {
	switch kind {
	case RuleOutOfHours, RuleNoAgentOnline, RuleWelcome, RuleFallback:
		return true
	}
	return false
}

type ResponseType string

const (
	ResponseText     ResponseType = "text"
	ResponseChatbot  ResponseType = "chatbot"
	ResponseAI       ResponseType = "ai"
	ResponseTemplate ResponseType = "template"
)

// welcomeWindow is how young a conversation must be for the welcome rule.
const welcomeWindow = 5 * time.Minute

// AutomationRule is one fallback response configured for a workspace.
type AutomationRule struct {
	ID               string       `json:"id"`
	Kind             RuleKind     `json:"kind"`
	Enabled          bool         `json:"enabled"`
	ResponseType     ResponseType `json:"responseType"`
	Message          string       `json:"message,omitempty"`
	TemplateName     string       `json:"templateName,omitempty"`
	TemplateLanguage string       `json:"templateLanguage,omitempty"`
	ChatbotID        uint         `json:"chatbotId,omitempty"`
	Prompt           string       `json:"prompt,omitempty"`
}

// DecodeSettings reads the rules and schedule stored on settings. Fields that are not
// JSON arrays are treated as empty.
func DecodeSettings(settings *models.AutomationSettings) ([]AutomationRule, WorkingHoursSchedule) {
	rules := decodeList[AutomationRule](settings.Rules, "rules", settings.WorkspaceID)
	days := decodeList[WorkingDay](settings.WorkingHours, "working_hours", settings.WorkspaceID)
	return rules, WorkingHoursSchedule{Days: days, HolidayMode: settings.HolidayMode}
}

func decodeList[T any](raw, field string, workspaceID uint) []T {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logger.Warn("malformed automation settings, using empty list",
			zap.String("field", field),
			zap.Uint("workspaceID", workspaceID),
			zap.Error(err))
		return nil
	}
	return out
}

// RuleEngine answers inbound events no flow claimed.
type RuleEngine struct {
	Settings   SettingsStore
	Team       TeamStore
	Logs       AutomationLogStore
	Chatbots   ChatbotStore
	Dispatcher *Dispatcher
	Flows      *FlowExecutor
	Responder  Responder
	Location   *time.Location
	Now        func() time.Time
}

func (r *RuleEngine) now() time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	if r.Location != nil {
		now = now.In(r.Location)
	}
	return now
}

// Evaluate fires at most one rule for the event and returns it, or nil when none applies.
// Rules are considered in the order out of hours, no agent online, welcome, fallback.
func (r *RuleEngine) Evaluate(ctx context.Context, target Target, event InboundEvent) *AutomationRule {
	conv := target.Conversation
	settings, err := r.Settings.GetAutomationSettings(ctx, conv.WorkspaceID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logger.Error("error loading automation settings", zap.Uint("workspaceID", conv.WorkspaceID), zap.Error(err))
		}
		return nil
	}
	rules, schedule := DecodeSettings(settings)
	if len(rules) == 0 {
		return nil
	}

	now := r.now()
	var rule *AutomationRule
	if schedule.OutOfHours(now) {
		rule = firstEnabled(rules, RuleOutOfHours)
	} else if r.noAgentOnline(ctx, conv.WorkspaceID) {
		rule = firstEnabled(rules, RuleNoAgentOnline)
	}
	if rule == nil && !conv.CreatedAt.IsZero() && now.Sub(conv.CreatedAt) < welcomeWindow {
		rule = firstEnabled(rules, RuleWelcome)
	}
	if rule == nil {
		rule = firstEnabled(rules, RuleFallback)
	}
	if rule == nil {
		return nil
	}

	err = r.execute(ctx, target, event, rule)
	r.log(ctx, conv, rule, err)
	return rule
}

func (r *RuleEngine) noAgentOnline(ctx context.Context, workspaceID uint) bool {
	if r.Team == nil {
		return false
	}
	count, err := r.Team.CountTeamMembers(ctx, workspaceID)
	if err != nil {
		logger.Error("error counting team members", zap.Uint("workspaceID", workspaceID), zap.Error(err))
		return false
	}
	return count == 0
}

func firstEnabled(rules []AutomationRule, kind RuleKind) *AutomationRule {
	for i := range rules {
		if rules[i].Enabled && rules[i].Kind == kind {
			return &rules[i]
		}
	}
	return nil
}

func (r *RuleEngine) execute(ctx context.Context, target Target, event InboundEvent, rule *AutomationRule) error {
	switch rule.ResponseType {
	case ResponseText:
		if strings.TrimSpace(rule.Message) == "" {
			return errors.New("rule has no message")
		}
		return r.Dispatcher.Reply(ctx, target, rule.Message)

	case ResponseTemplate:
		if rule.TemplateName == "" {
			return errors.New("rule has no template")
		}
		return r.Dispatcher.SendTemplate(ctx, target, rule.TemplateName, rule.TemplateLanguage)

	case ResponseChatbot:
		bot, err := r.Chatbots.GetChatbot(ctx, rule.ChatbotID)
		if err != nil {
			return fmt.Errorf("get chatbot %d: %w", rule.ChatbotID, err)
		}
		if bot.WorkspaceID != target.Conversation.WorkspaceID {
			return fmt.Errorf("chatbot %d belongs to another workspace", bot.ID)
		}
		if !r.Flows.StartFlow(ctx, target, bot) {
			return fmt.Errorf("chatbot %d could not be started", bot.ID)
		}
		return nil

	case ResponseAI:
		if r.Responder == nil {
			return errors.New("no ai responder configured")
		}
		answer, err := r.Responder.Respond(ctx, rule.Prompt, event.Input())
		if err != nil {
			return fmt.Errorf("ai responder: %w", err)
		}
		if strings.TrimSpace(answer) == "" {
			return errors.New("ai responder returned an empty answer")
		}
		return r.Dispatcher.Reply(ctx, target, answer)
	}
	return fmt.Errorf("unknown response type %q", rule.ResponseType)
}

func (r *RuleEngine) log(ctx context.Context, conv *models.Conversation, rule *AutomationRule, execErr error) {
	entry := &models.AutomationLog{
		WorkspaceID:    conv.WorkspaceID,
		ConversationID: conv.ID,
		RuleID:         rule.ID,
		RuleKind:       string(rule.Kind),
		ResponseType:   string(rule.ResponseType),
		Success:        execErr == nil,
	}
	if execErr != nil {
		entry.ErrorMessage = execErr.Error()
		logger.Error("automation rule failed",
			zap.String("ruleID", rule.ID),
			zap.String("kind", string(rule.Kind)),
			zap.Uint("conversationID", conv.ID),
			zap.Error(execErr))
	} else {
		logger.Info("automation rule fired",
			zap.String("ruleID", rule.ID),
			zap.String("kind", string(rule.Kind)),
			zap.Uint("conversationID", conv.ID))
	}
	metrics.RulesFired.WithLabelValues(string(rule.Kind), string(rule.ResponseType)).Inc()

	if r.Logs == nil {
		return
	}
	if err := r.Logs.AppendAutomationLog(ctx, entry); err != nil {
		logger.Error("error writing automation log", zap.Uint("conversationID", conv.ID), zap.Error(err))
	}
}
