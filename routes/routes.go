package routes

import (
	"net/http"

	"IT_borrowing_system/app"
	"IT_borrowing_system/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	authCtl := controllers.NewAuthController(s)
	deviceCtl := controllers.NewDeviceController(s)
	borrowCtl := controllers.NewBorrowingController(s)
	reviewCtl := controllers.NewReviewController(s)
	userCtl := controllers.NewUserController(s)
	notifyCtl := controllers.NewNotificationController(s)
	auditCtl := controllers.NewAuditController(s)

	// 复用的中间件
	authMW := app.AuthRequired(a.AppSessions(), a.Repo, a.Config)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(a.Repo, a.RDB, a.Config.SeenThrottle)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	// ------------------------------
	// 认证
	// ------------------------------
	auth := r.Group("/auth")
	{
		auth.POST("/register", authCtl.Register)
		auth.POST("/login", authCtl.Login)
	}
	authed := auth.Group("", authMW, seenMW)
	{
		authed.POST("/logout", authCtl.Logout)
		authed.GET("/whoami", authCtl.WhoAmI)
	}

	api := r.Group("/api", authMW, seenMW)
	admin := api.Group("", adminMW)

	// ------------------------------
	// 设备
	// ------------------------------
	api.GET("/devices", deviceCtl.ListDevices) // ?q=&category=
	api.GET("/devices/search", deviceCtl.SearchDevices)
	api.GET("/devices/:id", deviceCtl.GetDevice)
	api.GET("/devices/:id/reviews", reviewCtl.ListDeviceReviews)
	admin.POST("/devices", deviceCtl.CreateDevice)
	admin.PUT("/devices/:id", deviceCtl.UpdateDevice)
	admin.DELETE("/devices/:id", deviceCtl.DeleteDevice)
	admin.GET("/admin/devices", deviceCtl.AdminListDevices) // ?q=&status=&page=&size=

	// ------------------------------
	// 借还
	// ------------------------------
	api.POST("/borrowings", borrowCtl.CreateBorrowing)
	api.GET("/borrowings", borrowCtl.ListBorrowings)
	api.GET("/borrowings/mine", borrowCtl.ListMine)
	api.GET("/borrowings/user/:userId", borrowCtl.ListByUser)
	api.GET("/borrowings/:id", borrowCtl.GetBorrowing)
	api.POST("/borrowings/:id/pay", borrowCtl.PayFine)
	admin.PUT("/borrowings/:id", borrowCtl.UpdateBorrowing)
	admin.DELETE("/borrowings/:id", borrowCtl.DeleteBorrowing)

	// ------------------------------
	// 评价
	// ------------------------------
	api.GET("/reviews", reviewCtl.ListReviews)
	api.POST("/reviews", reviewCtl.CreateReview)
	api.PUT("/reviews/:id", reviewCtl.UpdateReview)
	api.DELETE("/reviews/:id", reviewCtl.DeleteReview)
	api.POST("/reviews/:id/like", reviewCtl.Like)
	api.POST("/reviews/:id/dislike", reviewCtl.Dislike)

	// ------------------------------
	// 通知 / 统计 / 审计
	// ------------------------------
	api.GET("/notifications", notifyCtl.Notifications)
	admin.GET("/stats", notifyCtl.Stats)
	admin.GET("/audit", auditCtl.ListAudit)

	// ------------------------------
	// 用户管理（仅管理员）
	// ------------------------------
	users := admin.Group("/users")
	{
		users.GET("", userCtl.ListUsers) // ?q=&page=&size=
		users.GET("/:id", userCtl.GetUser)
		users.PUT("/:id", userCtl.UpdateUser)
		users.DELETE("/:id", userCtl.DeleteUser)
	}
}
