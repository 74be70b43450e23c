package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // Echo's bundled middleware
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/flash"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/service"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.Env)
	slog.SetDefault(log)

	db, err := database.Open(cfg)
	if err != nil {
		log.Error("mysql: connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = database.EnsureSchema(ctx, db)
	cancel()
	if err != nil {
		log.Error("mysql: apply schema failed", "error", err)
		os.Exit(1)
	}

	// Redis is optional: without it flash messages are dropped and rate
	// limiting is off.
	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBooking(reg)

	var notifier service.Notifier
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer pub.Close()
		notifier = pub
	} else {
		log.Info("rabbitmq: RABBITMQ_URL not set; reservation activity is not published")
	}

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	events := repository.NewEventRepo(db)
	reservations := repository.NewReservationRepo(db)
	flashes := flash.NewStore(rdb, "flash", cfg.FlashTTL)
	booking := service.NewBookingService(reservations, events, notifier, bookingMetrics, log)

	resp := handler.NewResponder(flashes, log)
	authH := handler.NewAuthHandler(cfg, users, sessions, resp)
	flashH := handler.NewFlashHandler(flashes, resp)
	eventH := handler.NewEventHandler(events, resp)
	businessH := handler.NewBusinessHandler(users, events, reservations, resp)
	reservationH := handler.NewReservationHandler(booking, reservations, resp)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "ip", v.RemoteIP}
			if v.Error != nil {
				log.Error("request", append(attrs, "error", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(""), rdb, log))
	reserveLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig("RESERVE"), rdb, log)

	router.RegisterRoutes(e, db, reg)
	router.RegisterAuth(e, authH, flashH, cfg.JWTSecret)
	router.RegisterPublic(e, eventH, cfg.JWTSecret)
	router.RegisterReservations(e, reservationH, cfg.JWTSecret, reserveLimit)
	router.RegisterBusiness(e, businessH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
