package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "studynotes/internal/app"
	"studynotes/internal/bootstrap"
	"studynotes/internal/cache"
	"studynotes/internal/platform/rabbitmq"
	"studynotes/internal/repository"
	"studynotes/internal/transport/http/handler"
	"studynotes/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.Postgres)
	noteRepo := repository.NewNoteRepository(app.Postgres)
	chunkRepo := repository.NewChunkRepository(app.Postgres)

	publisher := rabbitmq.NewNoteEventPublisher(app.MQConn, app.Config.RabbitMQ.ReindexQueue)
	answerCache := cache.NewAnswerCache(app.Redis, time.Duration(app.Config.Redis.AnswerTTLSeconds)*time.Second)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	noteService := appsvc.NewNoteService(noteRepo, chunkRepo, publisher)
	retrievalService := appsvc.NewRetrievalService(chunkRepo, app.Embedder, app.Config.RAG.TopK)
	answerService := appsvc.NewAnswerService(retrievalService, app.AIClient, answerCache, app.Config.LLM.Model)

	authHandler := handler.NewAuthHandler(authService)
	noteHandler := handler.NewNoteHandler(noteService)
	searchHandler := handler.NewSearchHandler(retrievalService, answerService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	noteGroup := v1.Group("/notes")
	noteGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	noteGroup.POST("", noteHandler.Create)
	noteGroup.GET("", noteHandler.List)
	noteGroup.GET("/:id", noteHandler.Get)
	noteGroup.PUT("/:id", noteHandler.Update)
	noteGroup.DELETE("/:id", noteHandler.Delete)
	noteGroup.POST("/import/pdf", noteHandler.ImportPDF)

	searchGroup := v1.Group("/search")
	searchGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	searchGroup.POST("", searchHandler.Search)
	searchGroup.POST("/hybrid", searchHandler.HybridSearch)
	searchGroup.POST("/ask", searchHandler.Ask)

	return router
}
