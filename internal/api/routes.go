package api

import (
	"github.com/gin-gonic/gin"

	"taskgrid/internal/middleware"
	"taskgrid/internal/services"
)

// SetupRoutes configures all API routes.
func SetupRoutes(handlers *Handlers, jwtService *services.JWTService) *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.RegisterHandler)
			auth.POST("/login", handlers.LoginHandler)
		}

		// Everything else requires a valid token
		protected := api.Group("")
		protected.Use(middleware.JWTAuth(jwtService))
		{
			protected.GET("/auth/me", handlers.MeHandler)
			protected.PUT("/auth/profile", handlers.UpdateProfileHandler)

			data := protected.Group("/data")
			{
				data.POST("/tasks", handlers.CreateTaskHandler)
				data.GET("/tasks", handlers.ListTasksHandler)
				data.GET("/tasks/:id", handlers.GetTaskHandler)
				data.PUT("/tasks/:id", handlers.UpdateTaskHandler)
				data.DELETE("/tasks/:id", handlers.ArchiveTaskHandler)
			}

			protected.POST("/subtasks", handlers.CreateSubtasksHandler)
			protected.GET("/tasks/:id/subtasks", handlers.ListTaskSubtasksHandler)
			protected.GET("/my-subtasks", handlers.ListMySubtasksHandler)
			protected.POST("/subtasks/:id/start", handlers.StartSubtaskHandler)

			manager := protected.Group("/manager")
			{
				manager.POST("/subtasks/:id/approve", handlers.ApproveSubtaskHandler)
				manager.POST("/subtasks/:id/reject", handlers.RejectSubtaskHandler)
				manager.GET("/pending-approvals", handlers.PendingSubtasksHandler)
			}

			admin := protected.Group("/admin")
			{
				admin.POST("/tasks/:id/approve", handlers.ApproveTaskHandler)
				admin.POST("/tasks/:id/reject", handlers.RejectTaskHandler)
				admin.GET("/pending-approvals", handlers.PendingTasksHandler)
				admin.GET("/dashboard", handlers.DashboardHandler)
			}

			work := protected.Group("/work-uploads")
			{
				work.POST("", handlers.SubmitWorkHandler)
				work.GET("", handlers.ListWorkUploadsHandler)
				work.GET("/pending", handlers.PendingWorkHandler)
				work.POST("/:id/review", handlers.ReviewWorkHandler)
				work.GET("/:id/files/:index", handlers.OpenWorkFileHandler)
			}

			notifications := protected.Group("/notifications")
			{
				notifications.GET("", handlers.ListNotificationsHandler)
				notifications.POST("/:id/read", handlers.MarkNotificationReadHandler)
				notifications.GET("/unread-count", handlers.UnreadCountHandler)
			}

			timeline := protected.Group("/timeline")
			{
				timeline.GET("/my", handlers.MyTimelineHandler)
				timeline.GET("/team", handlers.TeamTimelineHandler)
			}
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
