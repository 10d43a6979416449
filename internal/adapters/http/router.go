package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/medmmo/roomsync/internal/adapters/ws"
	"github.com/medmmo/roomsync/internal/app"
	"github.com/medmmo/roomsync/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *app.RoomManager, ctl *ws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, rooms.List())
	})

	api.GET("/ws/rooms/:type", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("room", c.Param("type")).Msg("ws room endpoint hit")
		ctl.HandleRoom(ctx, c)
	})

	return r
}
