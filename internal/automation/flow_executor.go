package automation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/metrics"
	"whatsapp-flowbot/internal/models"

	"go.uber.org/zap"
)

// DefaultFlowTimeout is how long a flow waits for a reply before it is considered expired.
const DefaultFlowTimeout = 12 * time.Minute

// FlowExecutor runs the flow session stored on a conversation.
type FlowExecutor struct {
	Chatbots      ChatbotStore
	Conversations ConversationStore
	Dispatcher    *Dispatcher
	Graphs        *GraphCache
	Timeout       time.Duration
	Now           func() time.Time
}

func (x *FlowExecutor) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

func (x *FlowExecutor) deadline() time.Time {
	timeout := x.Timeout
	if timeout <= 0 {
		timeout = DefaultFlowTimeout
	}
	return x.now().Add(timeout)
}

// StartFlow walks a chatbot from its start node, stores the session and sends the walked
// nodes. It returns false, leaving the conversation untouched, when the definition cannot
// be used.
func (x *FlowExecutor) StartFlow(ctx context.Context, target Target, bot *models.Chatbot) bool {
	graph, err := x.Graphs.Load(bot)
	if err != nil {
		logger.Error("error loading flow graph", zap.Uint("chatbotID", bot.ID), zap.Error(err))
		return false
	}
	nodes, err := graph.Walk(StartNodeID)
	if err != nil {
		logger.Error("error walking flow graph", zap.Uint("chatbotID", bot.ID), zap.String("from", StartNodeID), zap.Error(err))
		return false
	}

	conv := target.Conversation
	last := nodes[len(nodes)-1]
	conv.SetFlow(bot.ID, last.ID, x.deadline())
	conv.Status = models.StatusClosed
	if err := x.Conversations.SaveFlowState(ctx, conv); err != nil {
		logger.Error("error saving flow state", zap.Uint("conversationID", conv.ID), zap.Error(err))
		return false
	}

	metrics.FlowTransitions.WithLabelValues("started").Inc()
	logger.Info("flow started",
		zap.Uint("chatbotID", bot.ID),
		zap.Uint("conversationID", conv.ID),
		zap.String("currentNode", last.ID))

	x.Dispatcher.Dispatch(ctx, target, graph.Steps(ContentNodes(nodes)))
	return true
}

// ContinueFlow feeds an inbound event to the conversation's active flow.
func (x *FlowExecutor) ContinueFlow(ctx context.Context, target Target, event InboundEvent) Outcome {
	conv := target.Conversation
	if !conv.HasFlow() {
		return Unowned
	}

	bot, err := x.Chatbots.GetChatbot(ctx, *conv.ChatbotID)
	if err != nil {
		logger.Warn("active chatbot not found", zap.Uint("chatbotID", *conv.ChatbotID), zap.Error(err))
		return Unowned
	}
	graph, err := x.Graphs.Load(bot)
	if err != nil {
		logger.Error("error loading flow graph", zap.Uint("chatbotID", bot.ID), zap.Error(err))
		return Unowned
	}

	if x.now().After(*conv.FlowTimeout) {
		switch {
		case event.IsInteractive():
			// A button tap answers a prompt that was already delivered.
			deadline := x.deadline()
			conv.FlowTimeout = &deadline
			if err := x.Conversations.SaveFlowState(ctx, conv); err != nil {
				logger.Error("error extending flow timeout", zap.Uint("conversationID", conv.ID), zap.Error(err))
			}
		case MatchesTrigger(event.Text, bot.Trigger):
			return x.restart(ctx, target, bot)
		default:
			// The stale session stays attached.
			metrics.FlowTransitions.WithLabelValues("expired").Inc()
			logger.Info("flow expired", zap.Uint("chatbotID", bot.ID), zap.Uint("conversationID", conv.ID))
			return Unowned
		}
	}

	current, ok := graph.Node(*conv.CurrentNode)
	if !ok {
		logger.Warn("current node not in flow graph",
			zap.Uint("chatbotID", bot.ID),
			zap.String("node", *conv.CurrentNode))
		return Unowned
	}

	nextID, ok := resolveNext(graph, current, event)
	if !ok {
		if len(current.Children) > 0 {
			logger.Debug("input matches no option", zap.String("node", current.ID), zap.String("input", event.Input()))
			return Rejected
		}
		if MatchesTrigger(event.Input(), bot.Trigger) {
			return x.restart(ctx, target, bot)
		}
		x.complete(ctx, target, current)
		return Handled
	}

	nodes, err := graph.Walk(nextID)
	if err != nil {
		logger.Error("error walking flow graph", zap.Uint("chatbotID", bot.ID), zap.String("from", nextID), zap.Error(err))
		return Unowned
	}
	last := nodes[len(nodes)-1]
	conv.SetFlow(bot.ID, last.ID, x.deadline())
	if err := x.Conversations.SaveFlowState(ctx, conv); err != nil {
		logger.Error("error saving flow state", zap.Uint("conversationID", conv.ID), zap.Error(err))
		return Unowned
	}

	metrics.FlowTransitions.WithLabelValues("continued").Inc()
	x.Dispatcher.Dispatch(ctx, target, graph.Steps(ContentNodes(nodes)))
	return Handled
}

// restart drops the current session and starts bot again from its start node.
func (x *FlowExecutor) restart(ctx context.Context, target Target, bot *models.Chatbot) Outcome {
	conv := target.Conversation
	conv.ClearFlow()
	conv.Status = models.StatusOpen
	if err := x.Conversations.SaveFlowState(ctx, conv); err != nil {
		logger.Error("error clearing flow state", zap.Uint("conversationID", conv.ID), zap.Error(err))
		return Unowned
	}
	metrics.FlowTransitions.WithLabelValues("restarted").Inc()
	if !x.StartFlow(ctx, target, bot) {
		return Unowned
	}
	return Handled
}

// complete sends the current node's message as the closing reply and ends the session.
func (x *FlowExecutor) complete(ctx context.Context, target Target, current Node) {
	conv := target.Conversation
	if current.Message != "" {
		if err := x.Dispatcher.Reply(ctx, target, current.Message); err != nil {
			logger.Error("error sending closing message", zap.String("waID", conv.WaID), zap.Error(err))
		}
	}
	conv.ClearFlow()
	conv.Status = models.StatusClosed
	if err := x.Conversations.SaveFlowState(ctx, conv); err != nil {
		logger.Error("error clearing flow state", zap.Uint("conversationID", conv.ID), zap.Error(err))
		return
	}
	metrics.FlowTransitions.WithLabelValues("completed").Inc()
}

// resolveNext finds the node an event moves the flow to.
func resolveNext(graph FlowGraph, current Node, event InboundEvent) (string, bool) {
	if event.IsInteractive() {
		if node, ok := graph.Node(event.Interactive.ID); ok {
			if node.Next != "" {
				return node.Next, true
			}
			return node.ID, true
		}
		title := strings.TrimSpace(event.Interactive.Title)
		for _, childID := range current.Children {
			child, ok := graph.Node(childID)
			if ok && strings.EqualFold(strings.TrimSpace(child.Message), title) {
				if child.Next != "" {
					return child.Next, true
				}
				return child.ID, true
			}
		}
		return "", false
	}

	n, err := strconv.Atoi(strings.TrimSpace(event.Text))
	if err != nil || n < 1 || n > len(current.Children) {
		return "", false
	}
	return current.Children[n-1], true
}

// Steps attaches child labels to nodes for dispatch.
func (g FlowGraph) Steps(nodes []Node) []Step {
	steps := make([]Step, 0, len(nodes))
	for _, n := range nodes {
		step := Step{Node: n}
		for _, childID := range n.Children {
			label := childID
			if child, ok := g[childID]; ok && child.Message != "" {
				label = child.Message
			}
			step.Options = append(step.Options, Option{ID: childID, Label: label})
		}
		steps = append(steps, step)
	}
	return steps
}
