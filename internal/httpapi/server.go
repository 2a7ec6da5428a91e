// Package httpapi exposes the engine's transport, pattern, and mute-group
// controls over HTTP, adapted from the teacher's gin+cors router wiring
// (handlers/api.go, handlers/midi.go, main.go) to the sequencer domain.
package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sequencer64/internal/engine"
	"sequencer64/internal/logging"
)

// Server wraps a gin.Engine bound to a sequencer Engine.
type Server struct {
	router *gin.Engine
	engine *engine.Engine
	log    *logging.Logger
}

// NewServer builds the router and registers every route. corsOrigins is a
// comma-separated origin list ("*" for local development), matching the
// teacher's CORS_ORIGINS convention.
func NewServer(e *engine.Engine, corsOrigins string, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewLogger("httpapi")
	}
	if corsOrigins == "" {
		corsOrigins = "*"
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins: strings.Split(corsOrigins, ","),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	s := &Server{router: r, engine: e, log: log}

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.POST("/transport/play", s.postPlay)
		api.POST("/transport/stop", s.postStop)
		api.POST("/transport/bpm", s.postBPM)
		api.POST("/transport/loop", s.postLoopMarkers)

		api.GET("/patterns", s.listPatterns)
		api.GET("/patterns/:slot", s.getPattern)
		api.POST("/patterns/:slot", s.createPattern)
		api.DELETE("/patterns/:slot", s.deletePattern)
		api.POST("/patterns/:slot/playing", s.setPatternPlaying)
		api.POST("/patterns/:slot/notes", s.addNote)

		api.POST("/screenset", s.setScreenSet)
		api.GET("/screenset", s.getScreenSet)

		api.POST("/mute-group/:group/learn", s.learnMuteGroup)
		api.POST("/mute-group/:group/apply", s.applyMuteGroup)
	}

	return s
}

// Handler returns the underlying http.Handler, for use with http.Server or
// httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Run starts the HTTP server on addr (e.g. ":8080"), blocking until it
// exits or fails.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CORSOriginsFromEnv mirrors the teacher's main.go default-to-local-dev
// env read, kept here so cmd/sequencer64 doesn't duplicate os.Getenv calls
// for a single value.
func CORSOriginsFromEnv() string {
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		return v
	}
	return "*"
}
