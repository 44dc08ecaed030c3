// Package api serves the local stores and the round codec over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timoknapp/gulfer/pkg/autosave"
	"github.com/timoknapp/gulfer/pkg/browser"
	"github.com/timoknapp/gulfer/pkg/roundio"
	"github.com/timoknapp/gulfer/pkg/storage"
	"github.com/timoknapp/gulfer/pkg/store"
)

// Deps are the components behind the API.
type Deps struct {
	Backend   storage.Backend
	Stores    *store.Stores
	Codec     *roundio.Codec
	Debouncer *autosave.Debouncer
}

// Cors allows the web client to call the API from any origin.
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Storage-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Register mounts all /api routes on r.
func Register(r gin.IRouter, deps Deps) {
	rounds := NewRoundHandler(deps.Stores, deps.Codec, deps.Debouncer)
	courses := NewCourseHandler(deps.Stores.Courses)
	users := NewUserHandler(deps.Stores)
	settings := NewSettingsHandler(deps.Stores.Settings)
	db := NewDBHandler(browser.New(deps.Backend))

	g := r.Group("/api")

	g.GET("/rounds", rounds.ListRounds)
	g.POST("/rounds", rounds.CreateRound)
	g.POST("/rounds/import", rounds.ImportRound)
	g.GET("/rounds/:id", rounds.GetRound)
	g.PUT("/rounds/:id/scores", rounds.UpdateScore)
	g.DELETE("/rounds/:id", rounds.DeleteRound)
	g.GET("/rounds/:id/export", rounds.ExportRound)

	g.GET("/courses", courses.ListCourses)
	g.POST("/courses", courses.SaveCourse)
	g.POST("/courses/scorecard", courses.ImportScorecard)
	g.DELETE("/courses/:id", courses.DeleteCourse)

	g.GET("/users", users.ListUsers)
	g.POST("/users", users.SaveUser)
	g.DELETE("/users/:id", users.DeleteUser)
	g.GET("/users/:id/profile", users.GetProfile)

	g.GET("/settings", settings.GetSettings)
	g.PUT("/settings/current-user", settings.SetCurrentUser)
	g.PUT("/settings/distance-unit", settings.SetDistanceUnit)

	g.GET("/db/tables", db.ListTables)
	g.GET("/db/tables/:name", db.GetTable)
}
