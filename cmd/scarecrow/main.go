package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/scarecrow/internal/access"
	"github.com/scarecrow/internal/audit"
	"github.com/scarecrow/internal/authapi"
	"github.com/scarecrow/internal/crud"
	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/internal/registry"
	"github.com/scarecrow/internal/resolver"
	"github.com/scarecrow/internal/schema"
	"github.com/scarecrow/internal/token"
	"github.com/scarecrow/pkg/config"
	"github.com/scarecrow/pkg/database"
	"github.com/scarecrow/pkg/logger"
	"github.com/scarecrow/pkg/middleware"
	"github.com/scarecrow/pkg/router"
)

const serviceName = "scarecrow"

// controlTables 网关自身的管控表
var controlTables = []string{
	"roles", "users", "resource", "scepter", "restrict", "operation_logs",
}

func main() {
	// 加载配置
	if err := config.Init(""); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志
	logger.Init(&cfg.Log)
	defer logger.Sync()

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	db := database.Get()

	// 数据库迁移
	err := db.AutoMigrate(
		&model.Role{},
		&model.User{},
		&model.Resource{},
		&model.Scepter{},
		&model.Restrict{},
		&model.OperationLog{},
	)
	if err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 装载模式注册表:管控表在前,受管业务表在后
	schemaReg := schema.NewRegistry()
	schemaReg.LoadTables(db, append(append([]string{}, controlTables...), cfg.Database.Tables...))
	schemaReg.SetCodeSource("roles", "role_name")
	schemaReg.SetCodeSource("users", "username")

	store := schema.NewStore(db, schemaReg)

	// 资源注册:认证端点与每张受管表各占一条模式
	resources := registry.New(db, cfg.App.Attribute)
	mustRegister := func(pattern, name string) {
		if err := resources.Register(pattern, name); err != nil {
			logger.Fatal("资源模式注册失败", zap.String("pattern", pattern), zap.Error(err))
		}
	}
	mustRegister("^/api/login$", "login")
	mustRegister("^/api/logout$", "logout")
	mustRegister("^/api/password_reset$", "password_reset")
	mustRegister("^/api/logs$", "logs")
	for _, table := range schemaReg.Names() {
		mustRegister("^/api/"+table+"(/.*)?$", table)
	}

	ctx := context.Background()
	if err := resources.Rebuild(ctx); err != nil {
		logger.Fatal("资源落库失败", zap.Error(err))
	}

	// 域内服务
	tokens := token.NewService(&cfg.Token, db)
	evaluator := access.NewEvaluator(db, tokens, resources)
	recorder := audit.NewRecorder(db, &cfg.Audit)
	if err := recorder.StartSweeper(cfg.Audit.SweepCron); err != nil {
		logger.Fatal("审计清理任务启动失败", zap.Error(err))
	}

	rv := resolver.New(store)
	rv.Use(resolver.NewProgramEnricher(store))

	// 创建Fiber应用
	app := fiber.New(fiber.Config{
		AppName:      serviceName,
		ReadTimeout:  time.Duration(cfg.Server.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.HTTP.WriteTimeout) * time.Second,
	})

	// 全局中间件
	app.Use(middleware.Recovery())
	app.Use(middleware.Cors())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLog())
	app.Use(middleware.ErrorHandler())

	// 健康检查
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(200).JSON(fiber.Map{
			"status":  "healthy",
			"service": serviceName,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// 认证路由先注册,避免被:table通配吞掉
	// 登录接口单独限流
	loginLimiter := middleware.NewRateLimiter(5, 10)
	authCtrl := authapi.NewController(tokens, recorder)
	logsCtrl := audit.NewController(recorder, evaluator)
	crudCtrl := crud.NewController(store, rv, evaluator, recorder, &cfg.CRUD)
	router.Register(app, map[string]fiber.Handler{
		"ratelimit": loginLimiter.Middleware(),
	}, authCtrl, logsCtrl, crudCtrl)

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			logger.Fatal("服务启动失败", zap.Error(err))
		}
	}()
	logger.Info("服务已启动", zap.String("addr", addr))

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务正在退出...")
	if err := app.Shutdown(); err != nil {
		logger.Error("HTTP服务关闭失败", zap.Error(err))
	}
	recorder.StopSweeper()
	if err := database.Close(); err != nil {
		logger.Error("数据库关闭失败", zap.Error(err))
	}
	logger.Info("服务已退出")
}
