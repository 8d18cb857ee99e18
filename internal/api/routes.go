package api

import (
	"whatsapp-flowbot/internal/database"

	"github.com/gin-gonic/gin"
)

// Register mounts the admin endpoints on group.
func Register(group *gin.RouterGroup, repo *database.Repository, sender TextSender) {
	automationHandler := NewAutomationHandler(repo)
	chatbotHandler := NewChatbotHandler(repo)
	conversationHandler := NewConversationHandler(repo, sender)

	workspaces := group.Group("/workspaces/:wsID")
	{
		workspaces.GET("/automation/settings", automationHandler.GetSettings)
		workspaces.PUT("/automation/settings", automationHandler.UpdateSettings)
		workspaces.GET("/automation/logs", automationHandler.GetLogs)
		workspaces.GET("/automation/analytics", automationHandler.GetAnalytics)

		workspaces.GET("/chatbots", chatbotHandler.ListChatbots)
		workspaces.POST("/chatbots", chatbotHandler.CreateChatbot)

		workspaces.GET("/conversations", conversationHandler.GetConversations)
	}

	group.GET("/chatbots/:id", chatbotHandler.GetChatbot)
	group.PUT("/chatbots/:id", chatbotHandler.UpdateChatbot)
	group.POST("/chatbots/:id/publish", chatbotHandler.PublishChatbot)
	group.POST("/chatbots/:id/unpublish", chatbotHandler.UnpublishChatbot)

	group.GET("/conversations/:id/messages", conversationHandler.GetMessages)
	group.POST("/conversations/:id/messages", conversationHandler.SendMessage)
	group.POST("/conversations/:id/release", conversationHandler.ReleaseConversation)
}
