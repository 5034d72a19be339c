package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/controllers"
	"github.com/vinakademin/vinakademin-backend/middleware"
	"github.com/vinakademin/vinakademin-backend/models"
	"github.com/vinakademin/vinakademin-backend/ws"
)

func SetupRouter(r *gin.Engine, db *gorm.DB) *gin.Engine {
	r.Use(middleware.DBMiddleware(db))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/health", controllers.HealthCheck)
	r.GET("/ws/sessions/:id", ws.HandleSessionWebSocket)

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)
		auth.POST("/google", controllers.GoogleLogin)
		auth.POST("/forgot-password", controllers.ForgotPassword)
		auth.POST("/reset-password", controllers.ResetPassword)
		auth.GET("/me", middleware.AuthMiddleware(), controllers.Me)
		auth.PUT("/password", middleware.AuthMiddleware(), controllers.ChangePassword)
	}

	webhooks := api.Group("/webhooks")
	{
		webhooks.POST("/stripe", controllers.StripeWebhook)
		webhooks.POST("/mux", controllers.MuxWebhook)
	}

	// Public catalog; a token only changes what is unlocked.
	public := api.Group("")
	public.Use(middleware.OptionalAuthMiddleware())
	{
		public.GET("/courses", controllers.ListCourses)
		public.GET("/courses/:slug", controllers.GetCourse)
		public.GET("/courses/:slug/content", controllers.GetCourseContent)
		public.GET("/lessons/:id", controllers.GetLesson)
		public.GET("/quizzes/:id", controllers.GetQuiz)
		public.GET("/course-reviews/:id", controllers.ListCourseReviews)

		public.GET("/wines", controllers.ListWines)
		public.GET("/wines/:id", controllers.GetWine)

		public.GET("/blog", controllers.ListPosts)
		public.GET("/blog/:slug", controllers.GetPost)

		// guests use a participant token here
		public.POST("/sessions/join", controllers.JoinSession)
		public.GET("/sessions/:id", controllers.GetSessionState)
		public.POST("/sessions/:id/heartbeat", controllers.SessionHeartbeat)
		public.POST("/sessions/:id/leave", controllers.LeaveSession)
		public.GET("/sessions/:id/reviews", controllers.ListSessionReviews)
	}

	user := api.Group("")
	user.Use(middleware.AuthMiddleware())
	{
		user.POST("/enrollments/:id", controllers.EnrollFree)
		user.GET("/progress/:id", controllers.GetCourseProgress)
		user.POST("/lessons/:id/complete", controllers.CompleteLesson)
		user.POST("/quizzes/:id/attempts", controllers.SubmitQuizAttempt)
		user.GET("/quizzes/:id/attempts", controllers.MyQuizAttempts)
		user.POST("/course-reviews/:id", controllers.UpsertCourseReview)
		user.POST("/wines/:id/reviews", controllers.CreateWineReview)
		user.DELETE("/reviews/:id", controllers.DeleteReview)

		user.POST("/checkout", controllers.CreateCheckout)

		user.POST("/sessions", controllers.CreateSession)
		user.PUT("/sessions/:id/current", controllers.NavigateSession)
		user.POST("/sessions/:id/end", controllers.EndSession)
		user.POST("/sessions/:id/reviews", controllers.CreateSessionReview)

		me := user.Group("/me")
		me.GET("/enrollments", controllers.MyEnrollments)
		me.GET("/orders", controllers.MyOrders)
		me.GET("/sessions", controllers.MySessions)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireStaff())
	{
		admin.GET("/courses", controllers.AdminListCourses)
		admin.POST("/courses", controllers.CreateCourse)
		admin.GET("/courses/:id", controllers.AdminGetCourse)
		admin.PUT("/courses/:id", controllers.UpdateCourse)
		admin.DELETE("/courses/:id", controllers.DeleteCourse)
		admin.POST("/courses/:id/thumbnail", controllers.UploadCourseThumbnail)
		admin.PUT("/courses/:id/reorder", controllers.ReorderCourseModules)
		admin.POST("/courses/:id/modules", controllers.CreateModule)

		admin.PUT("/modules/:id", controllers.UpdateModule)
		admin.DELETE("/modules/:id", controllers.DeleteModule)
		admin.PUT("/modules/:id/reorder", controllers.ReorderModule)
		admin.POST("/modules/:id/lessons", controllers.CreateLesson)
		admin.POST("/modules/:id/quizzes", controllers.CreateQuiz)

		admin.PUT("/lessons/:id", controllers.UpdateLesson)
		admin.DELETE("/lessons/:id", controllers.DeleteLesson)
		admin.POST("/lessons/:id/video-upload", controllers.CreateLessonVideoUpload)

		admin.PUT("/quizzes/:id", controllers.UpdateQuiz)
		admin.DELETE("/quizzes/:id", controllers.DeleteQuiz)
		admin.POST("/quizzes/:id/questions", controllers.CreateQuestion)
		admin.DELETE("/questions/:id", controllers.DeleteQuestion)

		admin.POST("/wines", controllers.CreateWine)
		admin.PUT("/wines/:id", controllers.UpdateWine)
		admin.DELETE("/wines/:id", controllers.DeleteWine)
		admin.POST("/wines/:id/image", controllers.UploadWineImage)

		admin.GET("/blog", controllers.AdminListPosts)
		admin.POST("/blog", controllers.CreatePost)
		admin.PUT("/blog/:id", controllers.UpdatePost)
		admin.DELETE("/blog/:id", controllers.DeletePost)
		admin.POST("/blog/:id/cover", controllers.UploadPostCover)
	}

	// Money and accounts are admin only.
	owner := api.Group("/admin")
	owner.Use(middleware.AuthMiddleware(), middleware.RequireRoles(models.RoleAdmin))
	{
		owner.GET("/orders", controllers.AdminListOrders)
		owner.GET("/orders/export", controllers.ExportOrders)
		owner.POST("/enrollments", controllers.AdminGrantEnrollment)
		owner.DELETE("/enrollments/:id", controllers.AdminRevokeEnrollment)
		owner.POST("/instructors", controllers.AdminCreateInstructor)
		owner.PUT("/users/:id/active", controllers.AdminSetUserActive)
	}

	return r
}
