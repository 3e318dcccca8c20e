package router

import (
	"net/http"
	"time"

	"financify/api"
	"financify/config"
	_ "financify/docs"
	"financify/middleware"
	"financify/telemetry"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers 路由用到的全部处理器
type Handlers struct {
	Auth         *api.AuthHandler
	Transactions *api.TransactionHandler
	Recurring    *api.RecurringHandler
	Goals        *api.GoalHandler
	Budgets      *api.BudgetHandler
	Accounts     *api.AccountHandler
	Categories   *api.CategoryHandler
	Reports      *api.ReportHandler
	Export       *api.ExportHandler
	Backup       *api.BackupHandler
	Sync         *api.SyncHandler
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, h *Handlers) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.Default()
	r.Use(CORSMiddleware())
	if cfg.Telemetry.Enabled {
		r.Use(telemetry.GinMiddleware())
		r.GET("/metrics", gin.WrapH(telemetry.Handler()))
	}

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		// 认证相关路由（无需登录）
		auth := v1.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", middleware.LoginRateLimit(5, 15*time.Minute), h.Auth.Login)
		}

		// 网络状态（无需登录）
		v1.GET("/connectivity", h.Sync.GetConnectivity)

		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth())
		{
			authorized.GET("/auth/profile", h.Auth.GetProfile)
			authorized.PUT("/auth/password", h.Auth.ChangePassword)
			authorized.PUT("/auth/email", h.Auth.UpdateEmail)
			authorized.POST("/auth/test-email", h.Auth.SendTestEmail)

			transactions := authorized.Group("/transactions")
			{
				transactions.POST("", h.Transactions.Create)
				transactions.GET("", h.Transactions.List)
				transactions.GET("/:id", h.Transactions.Get)
				transactions.PUT("/:id", h.Transactions.Update)
				transactions.DELETE("/:id", h.Transactions.Delete)
			}

			recurring := authorized.Group("/recurring")
			{
				recurring.POST("", h.Recurring.Create)
				recurring.GET("", h.Recurring.List)
				recurring.POST("/generate", h.Recurring.GenerateDue)
				recurring.GET("/:id", h.Recurring.Get)
				recurring.PUT("/:id", h.Recurring.Update)
				recurring.DELETE("/:id", h.Recurring.Delete)
				recurring.POST("/:id/generate", h.Recurring.Generate)
			}

			goals := authorized.Group("/goals")
			{
				goals.POST("", h.Goals.Create)
				goals.GET("", h.Goals.List)
				goals.GET("/:id", h.Goals.Get)
				goals.PUT("/:id", h.Goals.Update)
				goals.DELETE("/:id", h.Goals.Delete)
				goals.POST("/:id/contribute", h.Goals.Contribute)
			}

			budgets := authorized.Group("/budgets")
			{
				budgets.POST("", h.Budgets.Create)
				budgets.GET("", h.Budgets.List)
				budgets.GET("/status", h.Budgets.Status)
				budgets.PUT("/:id", h.Budgets.Update)
				budgets.DELETE("/:id", h.Budgets.Delete)
			}

			accounts := authorized.Group("/accounts")
			{
				accounts.POST("", h.Accounts.Create)
				accounts.GET("", h.Accounts.List)
				accounts.GET("/balances", h.Accounts.Balances)
				accounts.PUT("/:id", h.Accounts.Update)
				accounts.DELETE("/:id", h.Accounts.Delete)
				accounts.GET("/:id/balance", h.Accounts.Balance)
			}

			categories := authorized.Group("/categories")
			{
				categories.GET("", h.Categories.List)
				categories.POST("", h.Categories.Create)
				categories.PUT("/:id", h.Categories.Update)
				categories.DELETE("/:id", h.Categories.Delete)
			}

			authorized.GET("/statistics/summary", h.Reports.GetSummary)
			authorized.GET("/statistics/dashboard", h.Reports.GetDashboard)

			export := authorized.Group("/export")
			{
				export.GET("/csv", h.Export.ExportCSV)
				export.GET("/json", h.Export.ExportJSON)
				export.GET("/excel", h.Export.ExportExcel)
			}

			authorized.GET("/backup", h.Backup.Export)
			authorized.POST("/backup", h.Backup.Import)

			sync := authorized.Group("/sync")
			{
				sync.GET("/status", h.Sync.Status)
				sync.GET("/operations", h.Sync.Operations)
				sync.POST("/process", middleware.SyncRateLimit(10, time.Minute), h.Sync.Process)
				sync.POST("/operations/:id/retry", h.Sync.Retry)
				sync.DELETE("/operations/:id", h.Sync.Remove)
				sync.DELETE("/completed", h.Sync.ClearCompleted)
				sync.GET("/pending-writes", h.Sync.PendingWrites)
				sync.DELETE("/pending-writes/:key", h.Sync.DiscardPendingWrite)
			}
			// 手动切换在线状态影响整个实例，仅供调试
			if cfg.Server.Mode == gin.DebugMode {
				authorized.PUT("/connectivity", h.Sync.SetConnectivity)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"online": h.Sync.Online(),
		})
	})

	return r
}

// CORSMiddleware CORS 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
