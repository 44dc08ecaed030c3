package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/scorecard"
	"github.com/timoknapp/gulfer/pkg/storage"
	"github.com/timoknapp/gulfer/pkg/store"
)

// maxScorecardBytes bounds uploaded scorecard pages.
const maxScorecardBytes = 4 << 20

type CourseHandler struct {
	courses  *store.CourseStore
	importer *scorecard.Importer
}

func NewCourseHandler(courses *store.CourseStore) *CourseHandler {
	return &CourseHandler{courses: courses, importer: &scorecard.Importer{Courses: courses}}
}

// ListCourses handles GET /api/courses.
func (h *CourseHandler) ListCourses(c *gin.Context) {
	courses, err := h.courses.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if courses == nil {
		courses = []models.Course{}
	}
	c.JSON(http.StatusOK, courses)
}

// SaveCourse handles POST /api/courses. A course with an id replaces the
// stored one.
func (h *CourseHandler) SaveCourse(c *gin.Context) {
	var course models.Course
	if err := c.ShouldBindJSON(&course); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON request body"})
		return
	}
	saved, err := h.courses.Save(c.Request.Context(), course)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DeleteCourse handles DELETE /api/courses/:id.
func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ImportScorecard handles POST /api/courses/scorecard with an HTML page as
// body. The optional name query parameter overrides the page title.
func (h *CourseHandler) ImportScorecard(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxScorecardBytes)
	course, err := h.importer.Import(c.Request.Context(), body, c.Query("name"))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondBodyError(c, err, "")
			return
		}
		if statusFor(err) == http.StatusInternalServerError && !errors.Is(err, storage.ErrStorage) {
			// Malformed tables surface as plain errors.
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}
