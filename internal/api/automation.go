package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"whatsapp-flowbot/internal/automation"
	"whatsapp-flowbot/internal/database"
	"whatsapp-flowbot/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type AutomationHandler struct {
	Repo *database.Repository
}

func NewAutomationHandler(repo *database.Repository) *AutomationHandler {
	return &AutomationHandler{Repo: repo}
}

// settingsBody is the decoded form of a workspace's automation settings.
type settingsBody struct {
	Rules        []automation.AutomationRule `json:"rules"`
	WorkingHours []automation.WorkingDay     `json:"working_hours"`
	HolidayMode  bool                        `json:"holiday_mode"`
}

// GetSettings returns the rules and working hours of a workspace. A workspace that
// never saved settings gets empty lists.
func (h *AutomationHandler) GetSettings(c *gin.Context) {
	wsID, ok := uintParam(c, "wsID")
	if !ok {
		return
	}

	body := settingsBody{Rules: []automation.AutomationRule{}, WorkingHours: []automation.WorkingDay{}}
	settings, err := h.Repo.GetAutomationSettings(c.Request.Context(), wsID)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	default:
		rules, schedule := automation.DecodeSettings(settings)
		if rules != nil {
			body.Rules = rules
		}
		if schedule.Days != nil {
			body.WorkingHours = schedule.Days
		}
		body.HolidayMode = schedule.HolidayMode
	}

	c.JSON(http.StatusOK, body)
}

func (h *AutomationHandler) UpdateSettings(c *gin.Context) {
	wsID, ok := uintParam(c, "wsID")
	if !ok {
		return
	}

	var req settingsBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, rule := range req.Rules {
		if !automation.ValidRuleKind(rule.Kind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown rule kind: " + string(rule.Kind)})
			return
		}
	}

	rules, err := json.Marshal(nonNil(req.Rules))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	hours, err := json.Marshal(nonNil(req.WorkingHours))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	settings := models.AutomationSettings{
		WorkspaceID:  wsID,
		Rules:        string(rules),
		WorkingHours: string(hours),
		HolidayMode:  req.HolidayMode,
	}
	if err := h.Repo.SaveAutomationSettings(c.Request.Context(), &settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully"})
}

// GetLogs returns the most recent rule executions, newest first.
func (h *AutomationHandler) GetLogs(c *gin.Context) {
	wsID, ok := uintParam(c, "wsID")
	if !ok {
		return
	}

	logs, err := h.Repo.ListAutomationLogs(c.Request.Context(), wsID, limitQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, logs)
}

func (h *AutomationHandler) GetAnalytics(c *gin.Context) {
	wsID, ok := uintParam(c, "wsID")
	if !ok {
		return
	}

	stats, err := h.Repo.AutomationStats(c.Request.Context(), wsID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	successRate := 0.0
	if stats.TotalExecutions > 0 {
		successRate = float64(stats.Successful) / float64(stats.TotalExecutions) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"total_executions":      stats.TotalExecutions,
		"successful_executions": stats.Successful,
		"failed_executions":     stats.Failed,
		"success_rate":          successRate,
	})
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func limitQuery(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
