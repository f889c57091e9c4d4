package router

import (
	"time"

	"tillpoint/internal/config"
	"tillpoint/internal/handler"
	"tillpoint/internal/middleware"
	"tillpoint/internal/model"
	"tillpoint/internal/repository"
	"tillpoint/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	registerRepo := repository.NewRegisterRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpirationHours)
	saleSvc := service.NewSaleService(saleRepo, productRepo, movementRepo, userRepo, sequenceRepo)
	registerSvc := service.NewRegisterService(registerRepo, saleRepo, rdb)
	deviceSvc := service.NewDeviceService(registerRepo, rdb)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	salesH := handler.NewSalesHandler(saleSvc)
	registersH := handler.NewRegistersHandler(registerSvc)
	devicesH := handler.NewDevicesHandler(deviceSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb))

	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	anyStaff := middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleCashier, model.RoleEmployee)
	managers := middleware.RequireRole(model.RoleAdmin, model.RoleManager)

	v1 := r.Group("/v1", jwtMW)
	{
		sales := v1.Group("/sales")
		{
			sales.POST("", anyStaff, salesH.Create)
			sales.GET("", anyStaff, salesH.List)
			sales.POST("/internal", managers, salesH.CreateInternal)
			sales.GET("/:id", anyStaff, salesH.GetByID)
			sales.POST("/:id/complete", anyStaff, salesH.Complete)
			sales.POST("/:id/cancel", managers, salesH.Cancel)
			sales.POST("/:id/refund", managers, salesH.Refund)
		}

		registers := v1.Group("/registers")
		{
			registers.POST("/open", anyStaff, registersH.Open)
			registers.GET("/active", anyStaff, registersH.Active)
			registers.GET("", managers, registersH.History)
			registers.POST("/bind-device", middleware.RequireRole(model.RoleAdmin), registersH.BindDevice)
			registers.GET("/:id/expected-cash", anyStaff, registersH.ExpectedCash)
			registers.POST("/:id/withdrawals", anyStaff, registersH.Withdraw)
			registers.POST("/:id/close", anyStaff, registersH.Close)
		}

		v1.GET("/devices/:device_id/register", anyStaff, devicesH.Lookup)
	}

	// Swagger UI is only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
