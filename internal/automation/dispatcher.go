package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/metrics"
	"whatsapp-flowbot/internal/models"
	"whatsapp-flowbot/internal/whatsapp"

	"go.uber.org/zap"
)

// maxHTTPResponse caps the HTTP call body relayed to the user, in runes.
const maxHTTPResponse = 4000

const emptyHTTPResponse = "The request completed with an empty response."

// Option is a selectable child of a button or option node.
type Option struct {
	ID    string
	Label string
}

// Step is a node ready for dispatch, with the labels of its children resolved.
type Step struct {
	Node    Node
	Options []Option
}

// Dispatcher turns flow steps into channel sends and records them in the message log.
type Dispatcher struct {
	Channel       Channel
	Messages      MessageLog
	Conversations ConversationStore
}

// Dispatch sends steps one after another. A failed send is logged and recorded as failed;
// the remaining steps are still sent.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, steps []Step) {
	for _, step := range steps {
		kind, content, err := d.send(ctx, target, step)
		if kind != "" {
			status := "sent"
			result := "ok"
			if err != nil {
				status, result = "failed", "error"
				logger.Error("error dispatching flow step",
					zap.String("node", step.Node.ID),
					zap.String("kind", kind),
					zap.String("waID", target.Conversation.WaID),
					zap.Error(err))
			}
			metrics.DispatchSteps.WithLabelValues(kind, result).Inc()
			d.record(ctx, target, kind, content, status)
		}

		if step.Node.Type == NodeAgentHandoff {
			d.handoff(ctx, target)
		}
	}
}

// Reply sends a plain text message outside of a flow and records it.
func (d *Dispatcher) Reply(ctx context.Context, target Target, text string) error {
	err := d.Channel.SendText(ctx, target.Credentials, target.Conversation.WaID, text)
	d.record(ctx, target, "text", text, sendStatus(err))
	return err
}

// SendTemplate sends an approved message template and records it.
func (d *Dispatcher) SendTemplate(ctx context.Context, target Target, name, language string) error {
	err := d.Channel.SendTemplate(ctx, target.Credentials, target.Conversation.WaID, name, language)
	d.record(ctx, target, "template", name, sendStatus(err))
	return err
}

// send picks the channel primitive for a step. An empty kind means nothing was sent.
func (d *Dispatcher) send(ctx context.Context, target Target, step Step) (kind, content string, err error) {
	node := step.Node
	creds := target.Credentials
	to := target.Conversation.WaID

	switch p := node.Payload.(type) {
	case *LocationPayload:
		err = d.Channel.SendLocation(ctx, creds, to, whatsapp.Location{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Name:      p.Name,
			Address:   p.Address,
		})
		content = fmt.Sprintf("%f,%f", p.Latitude, p.Longitude)
		if node.Message != "" {
			err = errors.Join(err, d.Channel.SendText(ctx, creds, to, node.Message))
			content += "\n" + node.Message
		}
		return "location", content, err

	case *CTAButtonPayload:
		err = d.Channel.SendCTAButton(ctx, creds, to, whatsapp.CTAButton{
			Header:      p.Header,
			Body:        node.Message,
			Footer:      p.Footer,
			DisplayText: p.DisplayText,
			URL:         p.URL,
		})
		return "cta_button", node.Message, err

	case *HTTPCallPayload:
		content = d.callHTTP(ctx, node.Message, p)
		return "http_call", content, d.Channel.SendText(ctx, creds, to, content)

	case *FilePayload:
		switch p.Kind {
		case FileImage:
			return "image", p.URL, d.Channel.SendImage(ctx, creds, to, p.URL, node.Message)
		case FileVideo:
			return "video", p.URL, d.Channel.SendVideo(ctx, creds, to, p.URL, node.Message)
		case FileAudio:
			err = d.Channel.SendAudio(ctx, creds, to, p.URL)
			if node.Message != "" {
				err = errors.Join(err, d.Channel.SendText(ctx, creds, to, node.Message))
			}
			return "audio", p.URL, err
		}
		logger.Warn("unknown file kind, sending text", zap.String("node", node.ID), zap.String("kind", string(p.Kind)))
	}

	if node.Type == NodeButtonMessage && len(step.Options) > 0 {
		buttons := make([]whatsapp.Button, 0, whatsapp.MaxButtons)
		for _, opt := range step.Options {
			if len(buttons) == whatsapp.MaxButtons {
				logger.Warn("button node has more children than the channel allows",
					zap.String("node", node.ID), zap.Int("children", len(step.Options)))
				break
			}
			buttons = append(buttons, whatsapp.Button{ID: opt.ID, Title: opt.Label})
		}
		return "buttons", node.Message, d.Channel.SendButtons(ctx, creds, to, node.Message, buttons)
	}

	text := node.Message
	kind = "text"
	if node.Type == NodeOptionMessage && len(step.Options) > 0 {
		text = numberedOptions(node.Message, step.Options)
		kind = "options"
	}
	if strings.TrimSpace(text) == "" {
		return "", "", nil
	}
	return kind, text, d.Channel.SendText(ctx, creds, to, text)
}

func (d *Dispatcher) callHTTP(ctx context.Context, message string, p *HTTPCallPayload) string {
	body, err := d.Channel.ExecuteHTTPCall(ctx, whatsapp.HTTPCall{
		Method:  p.Method,
		URL:     p.URL,
		Headers: p.Headers,
		Body:    p.Body,
	})
	var reply string
	switch {
	case err != nil:
		logger.Warn("flow http call failed", zap.String("url", p.URL), zap.Error(err))
		reply = formatHTTPCallError(err)
	case strings.TrimSpace(body) == "":
		reply = emptyHTTPResponse
	default:
		reply = body
	}
	if message != "" {
		reply = message + "\n\n" + reply
	}
	return truncateRunes(reply, maxHTTPResponse)
}

func formatHTTPCallError(err error) string {
	return "Sorry, the request could not be completed: " + truncateRunes(err.Error(), 500)
}

func numberedOptions(message string, options []Option) string {
	var sb strings.Builder
	sb.WriteString(message)
	for i, opt := range options {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, opt.Label)
	}
	return sb.String()
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func sendStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}

func (d *Dispatcher) record(ctx context.Context, target Target, kind, content, status string) {
	conv := target.Conversation
	msg := &models.Message{
		WorkspaceID:    conv.WorkspaceID,
		ConversationID: conv.ID,
		WaID:           conv.WaID,
		Direction:      models.DirectionOutbound,
		BotAuthored:    true,
		Content:        content,
		Type:           kind,
		Status:         status,
	}
	if err := d.Messages.AppendMessage(ctx, msg); err != nil {
		logger.Error("error recording outbound message", zap.String("waID", conv.WaID), zap.Error(err))
	}
}

// handoff releases the conversation to a human agent.
func (d *Dispatcher) handoff(ctx context.Context, target Target) {
	conv := target.Conversation
	conv.ClearFlow()
	conv.Status = models.StatusOpen
	if err := d.Conversations.SaveFlowState(ctx, conv); err != nil {
		logger.Error("error releasing conversation to agent", zap.Uint("conversationID", conv.ID), zap.Error(err))
		return
	}
	metrics.FlowTransitions.WithLabelValues("handoff").Inc()
	logger.Info("conversation handed off to agent", zap.Uint("conversationID", conv.ID))
}
