package automation

import (
	"context"

	"whatsapp-flowbot/internal/models"
	"whatsapp-flowbot/internal/whatsapp"
)

// ChatbotStore reads flow definitions. Lookups of a missing row return an error
// matching models.ErrNotFound.
type ChatbotStore interface {
	GetChatbot(ctx context.Context, id uint) (*models.Chatbot, error)
	// ListPublished returns the published definitions of a workspace ordered by id.
	ListPublished(ctx context.Context, workspaceID uint) ([]models.Chatbot, error)
	GetDefault(ctx context.Context, workspaceID uint) (*models.Chatbot, error)
}

type ConversationStore interface {
	FindOrCreateConversation(ctx context.Context, workspaceID uint, waID string) (*models.Conversation, error)
	// SaveFlowState writes the flow triple and status, including nil values.
	SaveFlowState(ctx context.Context, conv *models.Conversation) error
}

type MessageLog interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
}

type WorkspaceStore interface {
	GetWorkspace(ctx context.Context, id uint) (*models.Workspace, error)
	FindWorkspaceByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Workspace, error)
}

type TeamStore interface {
	CountTeamMembers(ctx context.Context, workspaceID uint) (int64, error)
}

type SettingsStore interface {
	GetAutomationSettings(ctx context.Context, workspaceID uint) (*models.AutomationSettings, error)
}

type AutomationLogStore interface {
	AppendAutomationLog(ctx context.Context, entry *models.AutomationLog) error
}

// Channel sends outbound messages on behalf of a workspace.
type Channel interface {
	SendText(ctx context.Context, creds whatsapp.Credentials, to, body string) error
	SendImage(ctx context.Context, creds whatsapp.Credentials, to, link, caption string) error
	SendVideo(ctx context.Context, creds whatsapp.Credentials, to, link, caption string) error
	SendAudio(ctx context.Context, creds whatsapp.Credentials, to, link string) error
	SendLocation(ctx context.Context, creds whatsapp.Credentials, to string, loc whatsapp.Location) error
	SendButtons(ctx context.Context, creds whatsapp.Credentials, to, body string, buttons []whatsapp.Button) error
	SendCTAButton(ctx context.Context, creds whatsapp.Credentials, to string, cta whatsapp.CTAButton) error
	SendTemplate(ctx context.Context, creds whatsapp.Credentials, to, templateName, languageCode string) error
	ExecuteHTTPCall(ctx context.Context, call whatsapp.HTTPCall) (string, error)
}

// Responder produces a free-form answer for the "ai" automation response type.
type Responder interface {
	Respond(ctx context.Context, prompt, message string) (string, error)
}

// Locker serializes work per key. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Target is the conversation being served and the credentials to reply with.
type Target struct {
	Conversation *models.Conversation
	Credentials  whatsapp.Credentials
}
