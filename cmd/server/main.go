package main

import (
	"os"
	"time"

	"planning-poker-backend/internal/config"
	"planning-poker-backend/internal/database"
	"planning-poker-backend/internal/handlers"
	"planning-poker-backend/internal/middleware"
	"planning-poker-backend/internal/services"
	"planning-poker-backend/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	hub := ws.NewHub()
	locks := services.NewRoomLocker()

	tokenService := services.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	roomService := services.NewRoomService(db, locks, hub)
	roundService := services.NewRoundService(db, locks, hub)

	presence := services.NewPresenceTracker(db, locks, hub, clockwork.NewRealClock(), cfg.SweepInterval, cfg.LivenessWindow)
	presence.Start()
	defer presence.Stop()

	roomHandler := handlers.NewRoomHandler(roomService, roundService, tokenService)
	playHandler := handlers.NewPlayHandler(roomService, roundService)
	wsHandler := handlers.NewWSHandler(roomService, tokenService, hub)

	joinLimiter := middleware.NewIPRateLimiter(5, 10)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/ws/room/:code", wsHandler.HandleRoomWebSocket)

	api := r.Group("/api/v1")
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", middleware.RateLimit(joinLimiter), roomHandler.CreateRoom)
			rooms.POST("/join", middleware.RateLimit(joinLimiter), roomHandler.Join)

			admin := rooms.Group("/:code")
			admin.Use(middleware.SeatAuth(tokenService))
			{
				admin.POST("/start", roomHandler.StartVoting)
				admin.POST("/reveal", roomHandler.Reveal)
				admin.POST("/hide", roomHandler.Hide)
				admin.POST("/reset", roomHandler.Reset)
				admin.POST("/discussion/start", roomHandler.StartDiscussion)
				admin.POST("/discussion/end", roomHandler.EndDiscussion)
				admin.DELETE("/participants/:id", roomHandler.RemoveParticipant)
				admin.DELETE("", roomHandler.CloseRoom)
			}
		}

		play := api.Group("/play")
		play.Use(middleware.SeatAuth(tokenService))
		{
			play.GET("/state", playHandler.GetState)
			play.POST("/heartbeat", playHandler.Heartbeat)
			play.POST("/leave", playHandler.Leave)
			play.PUT("/name", playHandler.UpdateName)
			play.POST("/vote", playHandler.CastVote)
			play.PUT("/participation", playHandler.SetParticipation)
		}
	}

	log.Info().Str("port", cfg.ServerPort).Msg("server starting")
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
