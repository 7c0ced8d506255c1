package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/challengeboard/challengeboard/pkg/types"
)

// Source reads the published leaderboard.
type Source interface {
	Leaderboard(ctx context.Context) ([]types.MonthlyRanking, error)
}

// Handler serves the read API. It answers 202 until a Source is attached.
type Handler struct {
	engine *gin.Engine
	source atomic.Pointer[Source]
}

// New builds the gin engine and registers the routes. debug enables gin's
// request log.
func New(debug bool) *Handler {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	h := &Handler{engine: gin.New()}

	r := h.engine
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	if debug {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/favicon.ico"}}))
	}
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/", h.leaderboard)
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusMethodNotAllowed)
	})

	return h
}

// SetSource attaches the store once it is open.
func (h *Handler) SetSource(s Source) {
	h.source.Store(&s)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// leaderboard handles GET /.
func (h *Handler) leaderboard(c *gin.Context) {
	src := h.source.Load()
	if src == nil {
		c.Status(http.StatusAccepted)
		return
	}

	rankings, err := (*src).Leaderboard(c.Request.Context())
	if err != nil {
		slog.Error("api: read leaderboard", "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, toResponse(rankings))
}
