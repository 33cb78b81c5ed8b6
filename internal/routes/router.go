package routes

import (
	"github.com/gin-gonic/gin"

	"todo-api/internal/config"
	"todo-api/internal/controller"
	"todo-api/internal/middleware"
)

func Router(h *controller.Handler, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// The collection answers with and without a trailing slash.
	router.RedirectTrailingSlash = false
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.CORS(cfg),
		middleware.Recovery(cfg.IsDevelopment()),
	)

	api := router.Group("/api")
	api.GET("", controller.Index)

	// Health for load balancers and K8s probes
	api.GET("/health", controller.Health)
	api.GET("/ready", h.Ready)

	todos := api.Group("/todos")
	{
		todos.GET("", h.ListTodos)
		todos.GET("/", h.ListTodos)
		todos.GET("/:id", h.GetTodo)
		todos.POST("", h.CreateTodo)
		todos.POST("/", h.CreateTodo)
		todos.PUT("/:id", h.UpdateTodo)
		todos.DELETE("/:id", h.DeleteTodo)
	}

	router.NoRoute(controller.NotFound)
	return router
}
