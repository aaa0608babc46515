package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.ApiService/controllers"
	"gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.ApiService/middleware"
	container "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Container"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Info("Starting locker service")

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ctr.InitializeStore(initCtx); err != nil {
		logger.FatalWithError(err, "Failed to initialize store")
	}
	if err := ctr.StartTransport(); err != nil {
		logger.FatalWithError(err, "Failed to start MQTT transport")
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.WithComponent("http")))

	// Configure CORS from config
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.CORS.AllowedOrigins,
		AllowMethods:     config.CORS.AllowedMethods,
		AllowHeaders:     config.CORS.AllowedHeaders,
		ExposeHeaders:    config.CORS.ExposedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
	}))

	lockerController := controllers.NewLockerController(ctr.GetQueryService(), ctr.GetDispatcher(), config.Locker.DefaultUnlockMs, logger)
	healthController := controllers.NewHealthController(ctr.GetHealthChecker(), ctr.GetMetrics().Handler(), logger)
	lockerController.RegisterRoutes(router)
	healthController.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + config.Server.Port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// The ingest loop owns the subscriber channel. Sessions are stopped by
	// ctr.Shutdown only after Run has drained it, so drained messages are
	// still acked.
	ingestor := ctr.GetIngestor()
	subscriber := ctr.GetSubscriber()
	g.Go(func() error {
		return ingestor.Run(gctx, subscriber.Messages())
	})

	g.Go(func() error {
		logger.Info("HTTP server starting on port " + config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("Locker service running... press Ctrl+C to stop")
	if err := g.Wait(); err != nil {
		logger.ErrorWithError(err, "Locker service stopped with error")
		ctr.Shutdown(context.Background())
		os.Exit(1)
	}
}
