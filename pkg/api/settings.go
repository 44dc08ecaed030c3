package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timoknapp/gulfer/pkg/browser"
	"github.com/timoknapp/gulfer/pkg/store"
)

type SettingsHandler struct {
	settings *store.SettingsStore
}

func NewSettingsHandler(settings *store.SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.Load(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// SetCurrentUser handles PUT /api/settings/current-user. An empty id clears
// the current user.
func (h *SettingsHandler) SetCurrentUser(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON request body"})
		return
	}
	if err := h.settings.SetCurrentUser(c.Request.Context(), req.UserID); err != nil {
		respondError(c, err)
		return
	}
	h.GetSettings(c)
}

// SetDistanceUnit handles PUT /api/settings/distance-unit.
func (h *SettingsHandler) SetDistanceUnit(c *gin.Context) {
	var req struct {
		Unit string `json:"unit" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON request body"})
		return
	}
	if err := h.settings.SetDistanceUnit(c.Request.Context(), req.Unit); err != nil {
		respondError(c, err)
		return
	}
	h.GetSettings(c)
}

// DBHandler exposes the raw storage buckets for inspection.
type DBHandler struct {
	browser *browser.Browser
}

func NewDBHandler(b *browser.Browser) *DBHandler {
	return &DBHandler{browser: b}
}

func (h *DBHandler) ListTables(c *gin.Context) {
	tables, err := h.browser.Tables(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tables)
}

// GetTable handles GET /api/db/tables/:name?limit=N.
func (h *DBHandler) GetTable(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	page, err := h.browser.Rows(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
