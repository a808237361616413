package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/database"
	"github.com/stw-baltyk/baltyk-manager/internal/handler"
	"github.com/stw-baltyk/baltyk-manager/internal/middleware"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/router"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
	"github.com/stw-baltyk/baltyk-manager/internal/telemetry"
)

func main() {
	cfg := config.Load()
	tcfg := config.LoadTelemetryConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Printf("migrate: schema up to date")
	}

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb != nil {
		defer rdb.Close()
	}

	pub := queue.NewPublisher(config.LoadBrokerConfig()) // logs only when disabled

	finance := config.LoadFinanceConfig()
	clock := service.NewClock(cfg.Location)

	members := service.NewMembers(db, clock)
	ledger := service.NewLedger(db, pub, clock)
	recon := service.NewReconciliation(db, finance.Matching, pub, clock)
	reservations := service.NewReservations(db, pub, clock)
	registration := service.NewRegistration(db, pub, clock)
	dashboard := &service.Dashboard{
		Members:      members,
		Ledger:       ledger,
		Finance:      recon,
		Reservations: reservations,
		Registration: registration,
		Alerts:       finance.Alerts,
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	memberRepo := repository.NewMemberRepo(db)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Tracing(tcfg.ServiceName))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				log.Printf("%s %s %d %s id=%s err=%v", v.Method, v.URI, v.Status, v.Latency, v.RequestID, v.Error)
				return nil
			}
			log.Printf("%s %s %d %s id=%s", v.Method, v.URI, v.Status, v.Latency, v.RequestID)
			return nil
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, "Accept-Language"},
		ExposeHeaders:    []string{echo.HeaderContentDisposition, echo.HeaderRetryAfter},
	}))
	// Multipart overhead on top of the statement itself.
	e.Use(echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{Limit: bodyLimit(cfg.MaxUploadBytes + 64<<10)}))

	guards := router.Guards{
		JWTSecret:   cfg.JWTSecret,
		LoginLimit:  middleware.NewTokenBucket(config.LoadRateLimitConfig("login", 5, time.Minute), rdb),
		ImportLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig("import", 10, time.Minute), rdb),
		Cache:       middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db})
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, memberRepo), guards)
	router.RegisterMembers(e, &handler.MemberHandler{Members: members, Ledger: ledger, Registration: registration}, guards)
	router.RegisterFees(e, &handler.FeeHandler{Ledger: ledger, Finance: finance}, guards)
	router.RegisterFinance(e, &handler.FinanceHandler{Recon: recon, Finance: finance, MaxUploadBytes: cfg.MaxUploadBytes}, guards)
	router.RegisterEquipment(e, &handler.EquipmentHandler{Reservations: reservations, Loc: cfg.Location}, guards)
	router.RegisterEvents(e, &handler.EventHandler{Registration: registration, Users: users, Loc: cfg.Location}, guards)
	router.RegisterReports(e, &handler.ReportHandler{Dashboard: dashboard, Clock: clock}, guards)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}

// bodyLimit renders a byte count in the form BodyLimit expects.
func bodyLimit(n int64) string {
	return strconv.FormatInt(n/1024+1, 10) + "K"
}
