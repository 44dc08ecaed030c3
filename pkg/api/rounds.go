package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timoknapp/gulfer/pkg/autosave"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/roundio"
	"github.com/timoknapp/gulfer/pkg/store"
	"github.com/timoknapp/gulfer/pkg/util"
)

// maxImportBytes bounds pasted export text.
const maxImportBytes = 1 << 20

type RoundHandler struct {
	stores    *store.Stores
	codec     *roundio.Codec
	debouncer *autosave.Debouncer
}

func NewRoundHandler(stores *store.Stores, codec *roundio.Codec, debouncer *autosave.Debouncer) *RoundHandler {
	return &RoundHandler{stores: stores, codec: codec, debouncer: debouncer}
}

type createRoundRequest struct {
	Title      string          `json:"title"`
	Date       int64           `json:"date"`
	CourseID   string          `json:"courseId"`
	CourseName string          `json:"courseName"`
	Notes      string          `json:"notes"`
	Players    []models.Player `json:"players"`
}

type scoreRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Hole     int    `json:"hole" binding:"required"`
	Throws   *int   `json:"throws" binding:"required"`
}

type importRequest struct {
	Text      string            `json:"text"`
	Overrides roundio.Overrides `json:"overrides"`
}

// current returns the newest state of a round: a pending autosave wins over
// the stored copy.
func (h *RoundHandler) current(ctx context.Context, id string) (models.Round, error) {
	if r, ok := h.debouncer.Pending(id); ok {
		return r, nil
	}
	r, found, err := h.stores.Rounds.GetByID(ctx, id)
	if err != nil {
		return models.Round{}, err
	}
	if !found {
		return models.Round{}, fmt.Errorf("%w: round %s", store.ErrNotFound, id)
	}
	return r, nil
}

// ListRounds handles GET /api/rounds[?course=name].
func (h *RoundHandler) ListRounds(c *gin.Context) {
	var (
		rounds []models.Round
		err    error
	)
	if course := c.Query("course"); util.TrimName(course) != "" {
		rounds, err = h.stores.Rounds.FilterByCourseName(c.Request.Context(), course)
	} else {
		rounds, err = h.stores.Rounds.GetAll(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if rounds == nil {
		rounds = []models.Round{}
	}
	c.JSON(http.StatusOK, rounds)
}

// CreateRound handles POST /api/rounds. Players without an id get the id of
// their linked user or a fresh one.
func (h *RoundHandler) CreateRound(c *gin.Context) {
	var req createRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON request body"})
		return
	}
	if util.TrimName(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if req.Date == 0 {
		req.Date = time.Now().UnixMilli()
	}
	ctx := c.Request.Context()
	players := make([]models.Player, 0, len(req.Players))
	for _, p := range req.Players {
		if util.TrimName(p.Name) == "" && p.UserID != "" {
			u, found, err := h.stores.Users.GetByID(ctx, p.UserID)
			if err != nil {
				respondError(c, err)
				return
			}
			if found {
				p.Name = u.Name
			}
		}
		if p.ID == "" {
			p.ID = p.UserID
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		players = append(players, p)
	}

	round, err := h.stores.Rounds.Create(ctx, models.Round{
		Title:      util.TrimName(req.Title),
		Date:       req.Date,
		CourseID:   req.CourseID,
		CourseName: req.CourseName,
		Notes:      req.Notes,
		Players:    players,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, round)
}

// GetRound handles GET /api/rounds/:id.
func (h *RoundHandler) GetRound(c *gin.Context) {
	round, err := h.current(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// UpdateScore handles PUT /api/rounds/:id/scores. The edit is applied in
// memory and saved after the autosave delay.
func (h *RoundHandler) UpdateScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON request body"})
		return
	}
	if req.Hole < 1 || *req.Throws < 0 {
		respondError(c, fmt.Errorf("%w: hole %d throws %d", store.ErrInvalid, req.Hole, *req.Throws))
		return
	}

	id := c.Param("id")
	round, err := h.debouncer.Update(c.Request.Context(), h.stores.Rounds, id, func(r *models.Round) error {
		if _, ok := r.Player(req.PlayerID); !ok {
			return fmt.Errorf("%w: player %s in round %s", store.ErrNotFound, req.PlayerID, id)
		}
		r.SetScore(req.PlayerID, req.Hole, *req.Throws)
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, round)
}

// DeleteRound handles DELETE /api/rounds/:id.
func (h *RoundHandler) DeleteRound(c *gin.Context) {
	id := c.Param("id")
	h.debouncer.Cancel(id)
	if err := h.stores.Rounds.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	logger.WithRound(id).Info("Deleted round")
	c.Status(http.StatusNoContent)
}

// ExportRound handles GET /api/rounds/:id/export. Pending edits are saved
// first so the export reflects them.
func (h *RoundHandler) ExportRound(c *gin.Context) {
	if err := h.debouncer.Flush(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	text, err := h.codec.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

// ImportRound handles POST /api/rounds/import. The body is either the raw
// export text or a JSON object with text and overrides.
func (h *RoundHandler) ImportRound(c *gin.Context) {
	var req importRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBodyError(c, err, "invalid JSON request body")
			return
		}
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			respondBodyError(c, err, "failed to read request body")
			return
		}
		req.Text = string(body)
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(c, &roundio.ParseError{Msg: "empty import text"})
		return
	}

	id, err := h.codec.Import(c.Request.Context(), req.Text, roundio.ImportOptions{Overrides: req.Overrides})
	if err != nil {
		var resolutionErr *roundio.ResolutionError
		if errors.As(err, &resolutionErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  err.Error(),
				"entity": resolutionErr.Entity,
				"name":   resolutionErr.Name,
				"line":   resolutionErr.Line,
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// respondBodyError reports an unreadable request body, with 413 when the body
// exceeded its limit.
func respondBodyError(c *gin.Context, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
