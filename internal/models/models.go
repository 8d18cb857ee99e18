package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Conversation statuses. A closed conversation is either running a flow session
// (ChatbotID set) or finished one.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Message directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Workspace owns a WhatsApp number and its Cloud API credentials
type Workspace struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	PhoneNumberID string    `gorm:"type:varchar(100);uniqueIndex" json:"phone_number_id"`
	AccessToken   string    `gorm:"type:text" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// TeamMember is a human agent able to take over conversations
type TeamMember struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"index;not null" json:"workspace_id"`
	Name        string    `gorm:"type:varchar(255)" json:"name"`
	Email       string    `gorm:"type:varchar(255)" json:"email"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TeamMember) TableName() string {
	return "team_members"
}

// Contact represents a WhatsApp contact
type Contact struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"uniqueIndex:idx_contact_workspace_wa;not null" json:"workspace_id"`
	WaID        string    `gorm:"type:varchar(50);uniqueIndex:idx_contact_workspace_wa;not null" json:"wa_id"` // WhatsApp ID (phone number)
	Name        string    `gorm:"type:varchar(255)" json:"name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Conversation carries the flow session of one contact. ChatbotID, CurrentNode and
// FlowTimeout are either all nil or all set.
type Conversation struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID uint       `gorm:"uniqueIndex:idx_conversation_workspace_wa;not null" json:"workspace_id"`
	WaID        string     `gorm:"type:varchar(50);uniqueIndex:idx_conversation_workspace_wa;not null" json:"wa_id"`
	ChatbotID   *uint      `json:"chatbot_id"`
	CurrentNode *string    `gorm:"type:varchar(255)" json:"current_node"`
	FlowTimeout *time.Time `json:"flow_timeout"`
	Status      string     `gorm:"type:varchar(20);default:'open'" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// HasFlow reports whether a flow session is attached.
func (c *Conversation) HasFlow() bool {
	return c.ChatbotID != nil && c.CurrentNode != nil && c.FlowTimeout != nil
}

// SetFlow attaches (or moves) the flow session in one step.
func (c *Conversation) SetFlow(chatbotID uint, node string, timeout time.Time) {
	c.ChatbotID = &chatbotID
	c.CurrentNode = &node
	c.FlowTimeout = &timeout
}

// ClearFlow detaches the flow session.
func (c *Conversation) ClearFlow() {
	c.ChatbotID = nil
	c.CurrentNode = nil
	c.FlowTimeout = nil
}

// Chatbot is a published or draft flow definition produced by the builder
type Chatbot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"index;not null" json:"workspace_id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Trigger     string    `gorm:"type:varchar(255)" json:"trigger"`
	Publish     bool      `gorm:"default:false" json:"publish"`
	IsDefault   bool      `gorm:"default:false" json:"is_default"`
	Flow        string    `gorm:"type:text" json:"flow"` // JSON node graph keyed by node id
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Chatbot) TableName() string {
	return "chatbots"
}

// Message is one inbound or outbound record of the message log
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID    uint      `gorm:"index" json:"workspace_id"`
	ConversationID uint      `gorm:"index" json:"conversation_id"`
	WaID           string    `gorm:"index;not null" json:"wa_id"`
	Direction      string    `gorm:"type:varchar(10)" json:"direction"`
	BotAuthored    bool      `gorm:"default:false" json:"bot_authored"`
	Content        string    `gorm:"type:text" json:"content"`
	Type           string    `gorm:"type:varchar(50)" json:"type"`
	Status         string    `gorm:"type:varchar(20)" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// AutomationSettings holds the fallback rules and working hours of a workspace.
// Rules and WorkingHours are JSON arrays.
type AutomationSettings struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID  uint      `gorm:"uniqueIndex;not null" json:"workspace_id"`
	Rules        string    `gorm:"type:text" json:"rules"`
	WorkingHours string    `gorm:"type:text" json:"working_hours"`
	HolidayMode  bool      `gorm:"default:false" json:"holiday_mode"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AutomationSettings) TableName() string {
	return "automation_settings"
}

// AutomationLog represents a log entry for automation execution
type AutomationLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID    uint      `gorm:"index" json:"workspace_id"`
	ConversationID uint      `json:"conversation_id"`
	RuleID         string    `gorm:"type:varchar(100)" json:"rule_id"`
	RuleKind       string    `gorm:"type:varchar(50)" json:"rule_kind"`
	ResponseType   string    `gorm:"type:varchar(20)" json:"response_type"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AutomationLog) TableName() string {
	return "automation_logs"
}

// All lists every model for auto-migration.
func All() []interface{} {
	return []interface{}{
		&Workspace{},
		&TeamMember{},
		&Contact{},
		&Conversation{},
		&Chatbot{},
		&Message{},
		&AutomationSettings{},
		&AutomationLog{},
	}
}
