package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timoknapp/gulfer/pkg/browser"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/merge"
	"github.com/timoknapp/gulfer/pkg/roundio"
	"github.com/timoknapp/gulfer/pkg/scorecard"
	"github.com/timoknapp/gulfer/pkg/store"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		parseErr      *roundio.ParseError
		resolutionErr *roundio.ResolutionError
		validationErr *roundio.ValidationError
	)
	switch {
	case errors.As(err, &parseErr), errors.As(err, &resolutionErr):
		return http.StatusBadRequest
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, merge.ErrUnsupportedEntity),
		errors.Is(err, scorecard.ErrNoHoles),
		errors.Is(err, scorecard.ErrNoName):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNameTaken), errors.Is(err, roundio.ErrSelfImport):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound), errors.Is(err, browser.ErrUnknownTable):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
