package database

import (
	"context"
	"errors"

	"whatsapp-flowbot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm-backed store of the flow engine and the admin API.
type Repository struct {
	DB *gorm.DB

	// Optional hooks run after a write succeeds, used to push live updates.
	OnMessage      func(models.Message)
	OnConversation func(models.Conversation)
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

func (r *Repository) db(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx)
}

func (r *Repository) conversationChanged(conv *models.Conversation) {
	if r.OnConversation != nil {
		r.OnConversation(*conv)
	}
}

// --- Workspaces ---

func (r *Repository) GetWorkspace(ctx context.Context, id uint) (*models.Workspace, error) {
	var ws models.Workspace
	if err := r.db(ctx).First(&ws, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ws, nil
}

func (r *Repository) FindWorkspaceByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := r.db(ctx).Where("phone_number_id = ?", phoneNumberID).First(&ws).Error; err != nil {
		return nil, notFound(err)
	}
	return &ws, nil
}

func (r *Repository) SaveWorkspace(ctx context.Context, ws *models.Workspace) error {
	return r.db(ctx).Save(ws).Error
}

func (r *Repository) CountTeamMembers(ctx context.Context, workspaceID uint) (int64, error) {
	var count int64
	err := r.db(ctx).Model(&models.TeamMember{}).Where("workspace_id = ?", workspaceID).Count(&count).Error
	return count, err
}

// --- Chatbots ---

func (r *Repository) GetChatbot(ctx context.Context, id uint) (*models.Chatbot, error) {
	var bot models.Chatbot
	if err := r.db(ctx).First(&bot, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &bot, nil
}

func (r *Repository) ListPublished(ctx context.Context, workspaceID uint) ([]models.Chatbot, error) {
	var bots []models.Chatbot
	err := r.db(ctx).
		Where("workspace_id = ? AND publish = ?", workspaceID, true).
		Order("id asc").
		Find(&bots).Error
	return bots, err
}

// GetDefault returns the workspace's default chatbot whether or not it is published.
func (r *Repository) GetDefault(ctx context.Context, workspaceID uint) (*models.Chatbot, error) {
	var bot models.Chatbot
	err := r.db(ctx).
		Where("workspace_id = ? AND is_default = ?", workspaceID, true).
		Order("id asc").
		First(&bot).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &bot, nil
}

func (r *Repository) ListChatbots(ctx context.Context, workspaceID uint) ([]models.Chatbot, error) {
	var bots []models.Chatbot
	err := r.db(ctx).Where("workspace_id = ?", workspaceID).Order("id asc").Find(&bots).Error
	return bots, err
}

// SaveChatbot creates or updates a chatbot. Marking it default clears the flag on the
// workspace's other chatbots.
func (r *Repository) SaveChatbot(ctx context.Context, bot *models.Chatbot) error {
	return r.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(bot).Error; err != nil {
			return err
		}
		if !bot.IsDefault {
			return nil
		}
		return tx.Model(&models.Chatbot{}).
			Where("workspace_id = ? AND id <> ?", bot.WorkspaceID, bot.ID).
			Update("is_default", false).Error
	})
}

func (r *Repository) SetPublished(ctx context.Context, id uint, publish bool) error {
	res := r.db(ctx).Model(&models.Chatbot{}).Where("id = ?", id).Update("publish", publish)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// --- Conversations ---

func (r *Repository) FindOrCreateConversation(ctx context.Context, workspaceID uint, waID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db(ctx).Where("workspace_id = ? AND wa_id = ?", workspaceID, waID).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = models.Conversation{WorkspaceID: workspaceID, WaID: waID, Status: models.StatusOpen}
	if err := r.db(ctx).Create(&conv).Error; err != nil {
		// Lost a race on the unique index: the row exists now.
		var existing models.Conversation
		if lookupErr := r.db(ctx).Where("workspace_id = ? AND wa_id = ?", workspaceID, waID).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	r.conversationChanged(&conv)
	return &conv, nil
}

// SaveFlowState writes the flow triple and status. Nil fields are written as NULL.
func (r *Repository) SaveFlowState(ctx context.Context, conv *models.Conversation) error {
	res := r.db(ctx).Model(conv).
		Select("chatbot_id", "current_node", "flow_timeout", "status").
		Updates(conv)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	r.conversationChanged(conv)
	return nil
}

func (r *Repository) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db(ctx).First(&conv, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (r *Repository) ListConversations(ctx context.Context, workspaceID uint, limit int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("updated_at desc").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}

// ReleaseConversation detaches any flow session so a human agent takes over.
func (r *Repository) ReleaseConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	conv, err := r.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.ClearFlow()
	conv.Status = models.StatusOpen
	if err := r.SaveFlowState(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// --- Messages ---

func (r *Repository) AppendMessage(ctx context.Context, msg *models.Message) error {
	if err := r.db(ctx).Create(msg).Error; err != nil {
		return err
	}
	if r.OnMessage != nil {
		r.OnMessage(*msg)
	}
	return nil
}

func (r *Repository) ListMessages(ctx context.Context, conversationID uint, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id asc").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// --- Automation ---

func (r *Repository) GetAutomationSettings(ctx context.Context, workspaceID uint) (*models.AutomationSettings, error) {
	var settings models.AutomationSettings
	if err := r.db(ctx).Where("workspace_id = ?", workspaceID).First(&settings).Error; err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

// SaveAutomationSettings upserts the settings row of a workspace.
func (r *Repository) SaveAutomationSettings(ctx context.Context, settings *models.AutomationSettings) error {
	return r.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rules", "working_hours", "holiday_mode", "updated_at"}),
	}).Create(settings).Error
}

func (r *Repository) AppendAutomationLog(ctx context.Context, entry *models.AutomationLog) error {
	return r.db(ctx).Create(entry).Error
}

func (r *Repository) ListAutomationLogs(ctx context.Context, workspaceID uint, limit int) ([]models.AutomationLog, error) {
	var logs []models.AutomationLog
	err := r.db(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("id desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// AutomationStats counts rule executions of a workspace.
type AutomationStats struct {
	TotalExecutions int64 `json:"total_executions"`
	Successful      int64 `json:"successful_executions"`
	Failed          int64 `json:"failed_executions"`
}

func (r *Repository) AutomationStats(ctx context.Context, workspaceID uint) (AutomationStats, error) {
	var stats AutomationStats
	base := func() *gorm.DB {
		return r.db(ctx).Model(&models.AutomationLog{}).Where("workspace_id = ?", workspaceID)
	}
	if err := base().Count(&stats.TotalExecutions).Error; err != nil {
		return stats, err
	}
	if err := base().Where("success = ?", true).Count(&stats.Successful).Error; err != nil {
		return stats, err
	}
	stats.Failed = stats.TotalExecutions - stats.Successful
	return stats, nil
}
