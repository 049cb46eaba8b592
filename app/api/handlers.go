package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rss-stash/rss-stash/app/database"
	"github.com/rss-stash/rss-stash/app/source"
)

func NewHandler(configCache *source.ConfigCache, stateRepo database.StateRepository) *Handler {
	return &Handler{
		stateRepo:   stateRepo,
		configCache: configCache,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if sourceCount, err := h.stateRepo.GetSourceCount(); err == nil {
		health["sources"] = sourceCount
	}
	if itemCount, err := h.stateRepo.GetTrackedItemCount(); err == nil {
		health["tracked_items"] = itemCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"loaded_configurations": h.configCache.GetConfigCount(),
		"enabled_sources":       len(h.configCache.GetEnabledConfigs()),
	}

	if sourceCount, err := h.stateRepo.GetSourceCount(); err == nil {
		stats["registered_sources"] = sourceCount
	}
	if itemCount, err := h.stateRepo.GetTrackedItemCount(); err == nil {
		stats["tracked_items"] = itemCount
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListSources(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	sources := make([]map[string]interface{}, 0, len(configs))

	for _, sourceConfig := range configs {
		sourceInfo := map[string]interface{}{
			"name":             sourceConfig.Name,
			"url":              sourceConfig.URL,
			"enabled":          sourceConfig.Settings.Enabled,
			"authenticated":    sourceConfig.Login != nil,
			"poll_interval":    (time.Duration(sourceConfig.Settings.PollInterval) * time.Second).String(),
			"refresh_interval": (time.Duration(sourceConfig.Settings.RefreshInterval) * time.Second).String(),
			"retention_days":   sourceConfig.Settings.RetentionDays,
		}

		if state, err := h.stateRepo.LoadState(sourceConfig.Name); err == nil {
			sourceInfo["last_poll_at"] = formatTime(state.LastPollAt)
			sourceInfo["last_refresh_at"] = formatTime(state.LastRefreshAt)
			sourceInfo["high_water_mark"] = formatTime(state.HighWaterMark)
			sourceInfo["force_poll"] = state.ForcePoll
			sourceInfo["force_sweep"] = state.ForceSweep
		}

		sources = append(sources, sourceInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIGetSourceDetails(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source name parameter"})
		return
	}

	sourceConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Source configuration not found", "source", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	state, err := h.stateRepo.LoadState(name)
	if err != nil {
		slog.Error("Database error", "operation", "load_state", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	details := map[string]interface{}{
		"name":             name,
		"url":              sourceConfig.URL,
		"enabled":          sourceConfig.Settings.Enabled,
		"authenticated":    sourceConfig.Login != nil,
		"auth_feed":        sourceConfig.Settings.AuthFeed,
		"auth_content":     sourceConfig.Settings.AuthContent,
		"protected":        sourceConfig.Settings.Protected,
		"poll_interval":    (time.Duration(sourceConfig.Settings.PollInterval) * time.Second).String(),
		"refresh_interval": (time.Duration(sourceConfig.Settings.RefreshInterval) * time.Second).String(),
		"timeout":          (time.Duration(sourceConfig.Settings.Timeout) * time.Second).String(),
		"retention_days":   sourceConfig.Settings.RetentionDays,
		"folder":           sourceConfig.Destination.Folder,
		"tags":             sourceConfig.Destination.Tags,
	}

	details["state"] = map[string]interface{}{
		"high_water_mark": formatTime(state.HighWaterMark),
		"last_poll_at":    formatTime(state.LastPollAt),
		"last_refresh_at": formatTime(state.LastRefreshAt),
		"force_poll":      state.ForcePoll,
		"force_sweep":     state.ForceSweep,
		"created_at":      formatTime(state.CreatedAt),
		"updated_at":      formatTime(state.UpdatedAt),
	}

	if items, err := h.stateRepo.ListTrackedItems(name); err == nil {
		details["tracked_items"] = len(items)
	}

	c.JSON(http.StatusOK, details)
}

// APIForcePoll sets the one-shot poll flag; the next cycle polls the source
// regardless of cadence and the flag clears once that poll succeeds.
func (h *Handler) APIForcePoll(c *gin.Context) {
	h.setFlag(c, "poll", h.stateRepo.SetForcePoll)
}

// APIForceSweep flags the source for a sync-and-retention sweep at the end
// of the next cycle.
func (h *Handler) APIForceSweep(c *gin.Context) {
	h.setFlag(c, "sweep", h.stateRepo.SetForceSweep)
}

func (h *Handler) setFlag(c *gin.Context, flag string, set func(string, bool) error) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source name parameter"})
		return
	}

	if _, err := h.configCache.GetConfig(name); err != nil {
		slog.Error("Source configuration not found", "source", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	if err := set(name, true); err != nil {
		slog.Error("Database error", "operation", "set_force_"+flag, "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Source flagged for " + flag + " on the next cycle",
		"source":  name,
	})
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
