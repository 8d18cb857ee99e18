package automation

import (
	"context"
	"testing"

	"whatsapp-flowbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesTrigger(t *testing.T) {
	cases := []struct {
		text, trigger string
		want          bool
	}{
		{"Hello", "hello", true},
		{"  HELLO ", "hello", true},
		{"/start", "start", true},
		{"start", "/start", true},
		{"/START", "/start", true},
		{"please start now", "start", true},
		{"stop", "start", false},
		{"anything", "", false},
		{"anything", "   ", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MatchesTrigger(c.text, c.trigger), "%q vs %q", c.text, c.trigger)
	}
}

func TestResolvePriority(t *testing.T) {
	store := newFakeStore()
	store.addChatbot(models.Chatbot{ID: 1, WorkspaceID: 1, Trigger: "order", Publish: true})
	store.addChatbot(models.Chatbot{ID: 2, WorkspaceID: 1, Trigger: "order status", Publish: true})
	store.addChatbot(models.Chatbot{ID: 3, WorkspaceID: 1, Trigger: "/help", Publish: true})
	store.addChatbot(models.Chatbot{ID: 4, WorkspaceID: 1, Trigger: "secret", Publish: false})
	store.addChatbot(models.Chatbot{ID: 5, WorkspaceID: 2, Trigger: "order status", Publish: true})
	r := &TriggerResolver{Chatbots: store}
	ctx := context.Background()

	// Exact beats an earlier contains hit.
	bot := r.Resolve(ctx, "Order Status", 1, models.StatusOpen)
	require.NotNil(t, bot)
	assert.Equal(t, uint(2), bot.ID)

	bot = r.Resolve(ctx, "help", 1, models.StatusOpen)
	require.NotNil(t, bot)
	assert.Equal(t, uint(3), bot.ID)

	// Contains picks the first scanned definition.
	bot = r.Resolve(ctx, "where is my order status please", 1, models.StatusOpen)
	require.NotNil(t, bot)
	assert.Equal(t, uint(1), bot.ID)

	assert.Nil(t, r.Resolve(ctx, "secret", 1, models.StatusOpen), "unpublished")
	assert.Nil(t, r.Resolve(ctx, "nothing here", 1, models.StatusOpen))
}

func TestResolveDefaultOnlyWhenClosedAndMatching(t *testing.T) {
	store := newFakeStore()
	store.addChatbot(models.Chatbot{ID: 9, WorkspaceID: 1, Trigger: "menu", IsDefault: true})
	r := &TriggerResolver{Chatbots: store}
	ctx := context.Background()

	bot := r.Resolve(ctx, "/menu", 1, models.StatusClosed)
	require.NotNil(t, bot)
	assert.Equal(t, uint(9), bot.ID)

	assert.Nil(t, r.Resolve(ctx, "/menu", 1, models.StatusOpen))
	assert.Nil(t, r.Resolve(ctx, "hello", 1, models.StatusClosed))
}
