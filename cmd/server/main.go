// Package main runs the event finance HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventdesk/backend/config"
	"github.com/eventdesk/backend/internal/attendance"
	"github.com/eventdesk/backend/internal/audit"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/certificates"
	"github.com/eventdesk/backend/internal/events"
	"github.com/eventdesk/backend/internal/exports"
	"github.com/eventdesk/backend/internal/finance"
	"github.com/eventdesk/backend/internal/middleware"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/permissions"
	"github.com/eventdesk/backend/internal/realtime"
	"github.com/eventdesk/backend/internal/receipts"
	"github.com/eventdesk/backend/internal/worker"
	"github.com/eventdesk/backend/pkg/database"
	"github.com/eventdesk/backend/pkg/queue"
	"github.com/eventdesk/backend/pkg/redis"
	"github.com/eventdesk/backend/pkg/response"
	"github.com/eventdesk/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	// Money goes over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReceiptsBucket:       cfg.AWS.ReceiptsBucket,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}
	// Handlers take interfaces; a nil *storage.S3 must stay a nil interface.
	var receiptSigner receipts.Presigner
	var exportSigner exports.Presigner
	if s3Client != nil {
		receiptSigner, exportSigner = s3Client, s3Client
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events, team and permissions
	eventRepo := events.NewRepository(pool)
	permCache := permissions.NewRedisCache(rdb.Client, time.Duration(cfg.Finance.PermissionCacheSeconds)*time.Second)
	gate := permissions.NewGate(eventRepo, permCache, logger)
	eventHandler := events.NewHandler(eventRepo, gate, logger)
	permHandler := permissions.NewHandler(gate)

	// Audit
	auditRepo := audit.NewRepository(pool)
	auditRecorder := audit.NewRecorder(auditRepo, logger)
	auditHandler := audit.NewHandler(auditRepo)

	// Finance
	financeRepo := finance.NewRepository(pool)
	financeSvc := finance.NewService(financeRepo, auditRecorder, hub, logger)
	financeHandler := finance.NewHandler(financeSvc, gate, authRepo, logger)
	receiptHandler := receipts.NewHandler(receiptSigner, gate, logger)

	// Async exports
	exportRepo := exports.NewRepository(pool)
	exportHandler := exports.NewHandler(exportRepo, jobQueue, exportSigner, logger)

	// Attendance and certificates
	attendanceHandler := attendance.NewHandler(attendance.NewRepository(pool), gate, hub, logger)
	certificateHandler := certificates.NewHandler(certificates.NewRepository(pool), gate, hub, logger)

	wsValidate := func(token string) (auth.Actor, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return auth.Actor{}, err
		}
		return claims.Actor(), nil
	}
	wsAuthorize := func(ctx context.Context, actor auth.Actor, eventID uuid.UUID) bool {
		return gate.Allowed(ctx, actor, eventID, permissions.FinanceView)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, wsValidate, wsAuthorize))

	apiRoot := router.Group("/api")

	// Auth (public)
	authGroup := apiRoot.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}
	// Certificate verification (public)
	apiRoot.GET("/certificates/verify/:code", certificateHandler.Verify)

	// Protected API (JWT required)
	api := apiRoot.Group("")
	api.Use(middleware.JWT(jwtService))
	admin := middleware.RequireRole(models.RoleAdmin)
	{
		api.GET("/auth/me", authHandler.Me)
		api.PUT("/auth/me/payout", authHandler.UpdatePayout)
		api.GET("/users", admin, authHandler.List)

		// Events and team
		api.GET("/events", eventHandler.List)
		api.POST("/events", eventHandler.Create)
		api.GET("/events/:eventId", gate.RequireMember("eventId"), eventHandler.Get)
		api.PUT("/events/:eventId", gate.RequireParam("eventId", permissions.TeamManage), eventHandler.Update)
		api.GET("/events/:eventId/permissions", permHandler.Mine)
		api.GET("/events/:eventId/members", gate.RequireMember("eventId"), eventHandler.ListMembers)
		api.PUT("/events/:eventId/members", gate.RequireParam("eventId", permissions.TeamManage), eventHandler.UpsertMember)
		api.DELETE("/events/:eventId/members/:userId", gate.RequireParam("eventId", permissions.TeamManage), eventHandler.RemoveMember)

		// Attendance
		api.POST("/events/:eventId/attendance", gate.RequireParam("eventId", permissions.AttendanceManage), attendanceHandler.CheckIn)
		api.GET("/events/:eventId/attendance", gate.RequireParam("eventId", permissions.AttendanceManage), attendanceHandler.List)
		api.GET("/events/:eventId/attendance/count", gate.RequireParam("eventId", permissions.FinanceView), attendanceHandler.Count)
		api.PUT("/attendance/:id/invalidate", attendanceHandler.Invalidate)

		// Certificates
		api.POST("/events/:eventId/certificates", gate.RequireParam("eventId", permissions.CertificatesManage), certificateHandler.Issue)
		api.GET("/events/:eventId/certificates", gate.RequireParam("eventId", permissions.CertificatesManage), certificateHandler.List)
		api.PUT("/certificates/:id/revoke", certificateHandler.Revoke)

		// Finance: budgets and amendments
		api.POST("/finance/budget/request", financeHandler.RequestBudget)
		api.GET("/finance/budgets", admin, financeHandler.ListBudgets)
		api.GET("/finance/budget/:eventId", gate.RequireParam("eventId", permissions.FinanceView), financeHandler.GetBudget)
		api.PUT("/finance/budget/:eventId/approval", admin, financeHandler.ApproveBudget)
		api.POST("/finance/budget/:eventId/amendment", gate.RequireParam("eventId", permissions.FinanceRequestAmendment), financeHandler.RequestAmendment)
		api.PUT("/finance/budget/:eventId/amendment/:amendmentId", admin, financeHandler.ReviewAmendment)
		api.PUT("/finance/budget/:eventId/close", admin, financeHandler.CloseBudget)
		api.GET("/finance/budget/:eventId/expenses", gate.RequireParam("eventId", permissions.FinanceView), financeHandler.ListEventExpenses)
		api.GET("/finance/amendments/pending", admin, financeHandler.ListPendingAmendments)

		// Finance: expenses and reimbursements
		api.POST("/finance/expense", financeHandler.LogExpense)
		api.POST("/finance/expense/receipt-upload-url", receiptHandler.UploadURL)
		api.PUT("/finance/expense/:expenseId/status", admin, financeHandler.UpdateExpenseStatus)
		api.PUT("/finance/expense/:expenseId/resubmit", financeHandler.ResubmitExpense)
		api.GET("/finance/expenses/mine", financeHandler.ListMyExpenses)
		api.GET("/finance/expenses/pending/all", admin, financeHandler.ListPendingExpenses)
		api.PUT("/finance/expenses/bulk-update", admin, financeHandler.BulkUpdateExpenses)
		api.GET("/finance/reimbursements/pending", admin, financeHandler.PendingReimbursements)
		api.PUT("/finance/reimbursements/:userId/mark-paid", admin, financeHandler.MarkUserReimbursed)

		// Finance: reports
		api.GET("/finance/reports/event-wise", admin, financeHandler.EventReport)
		api.GET("/finance/reports/category-wise", admin, financeHandler.CategoryReport)
		api.GET("/finance/reports/over-budget", admin, financeHandler.OverBudgetReport)
		api.GET("/finance/reports/export", admin, financeHandler.ExportReport)
		api.POST("/finance/reports/exports", admin, exportHandler.Create)
		api.GET("/finance/reports/exports/:id", admin, exportHandler.Get)

		// Audit
		api.GET("/audit-logs", admin, auditHandler.List)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (report export to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Finance.ExportWorkerInProcess && s3Client != nil {
		processor := worker.NewExportProcessor(exportRepo, financeSvc, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
