package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/profile"
	"github.com/timoknapp/gulfer/pkg/store"
)

type UserHandler struct {
	stores *store.Stores
}

func NewUserHandler(stores *store.Stores) *UserHandler {
	return &UserHandler{stores: stores}
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.stores.Users.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, users)
}

// SaveUser handles POST /api/users. Names are unique ignoring case.
func (h *UserHandler) SaveUser(c *gin.Context) {
	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON request body"})
		return
	}
	saved, err := h.stores.Users.Save(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.stores.Users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetProfile handles GET /api/users/:id/profile.
func (h *UserHandler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	user, found, err := h.stores.Users.GetByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		respondError(c, fmt.Errorf("%w: user %s", store.ErrNotFound, id))
		return
	}
	rounds, err := h.stores.Rounds.GetAll(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":  user,
		"stats": profile.Compute(rounds, user.ID),
	})
}
