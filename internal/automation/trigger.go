package automation

import (
	"context"
	"strings"

	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/models"

	"go.uber.org/zap"
)

// TriggerResolver picks the published chatbot an inbound text starts.
type TriggerResolver struct {
	Chatbots ChatbotStore
}

type triggerRule func(text, trigger string) bool

// Rules in priority order; the first rule with any hit wins.
var triggerRules = []triggerRule{matchExact, matchSlashNormalized, matchContains}

func matchExact(text, trigger string) bool {
	return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(trigger))
}

func matchSlashNormalized(text, trigger string) bool {
	return normalizeTrigger(text) == normalizeTrigger(trigger)
}

// matchContains lets a short trigger match any text containing it.
func matchContains(text, trigger string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSpace(trigger)))
}

func normalizeTrigger(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "/")
}

// MatchesTrigger reports whether text starts a chatbot with the given trigger.
// Empty triggers never match.
func MatchesTrigger(text, trigger string) bool {
	if strings.TrimSpace(trigger) == "" {
		return false
	}
	for _, rule := range triggerRules {
		if rule(text, trigger) {
			return true
		}
	}
	return false
}

// Resolve returns the chatbot triggered by text in a workspace, or nil.
// A workspace's default chatbot is only considered for closed conversations and
// only when its own trigger matches.
func (r *TriggerResolver) Resolve(ctx context.Context, text string, workspaceID uint, status string) *models.Chatbot {
	chatbots, err := r.Chatbots.ListPublished(ctx, workspaceID)
	if err != nil {
		logger.Error("error listing published chatbots", zap.Uint("workspaceID", workspaceID), zap.Error(err))
		chatbots = nil
	}

	for _, rule := range triggerRules {
		for i := range chatbots {
			trigger := chatbots[i].Trigger
			if strings.TrimSpace(trigger) == "" {
				continue
			}
			if rule(text, trigger) {
				return &chatbots[i]
			}
		}
	}

	if status != models.StatusClosed {
		return nil
	}
	def, err := r.Chatbots.GetDefault(ctx, workspaceID)
	if err != nil {
		logger.Debug("no default chatbot", zap.Uint("workspaceID", workspaceID), zap.Error(err))
		return nil
	}
	if MatchesTrigger(text, def.Trigger) {
		return def
	}
	return nil
}
