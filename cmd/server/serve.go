package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-flowbot/internal/api"
	"whatsapp-flowbot/internal/automation"
	"whatsapp-flowbot/internal/config"
	"whatsapp-flowbot/internal/database"
	"whatsapp-flowbot/internal/locker"
	"whatsapp-flowbot/internal/logger"
	"whatsapp-flowbot/internal/responder"
	"whatsapp-flowbot/internal/webhook"
	"whatsapp-flowbot/internal/whatsapp"
	"whatsapp-flowbot/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver and admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if err := database.Migrate(db); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, database.NewRepository(db))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, repo *database.Repository) error {
	hub := ws.NewHub()
	go hub.Run(ctx)
	repo.OnMessage = hub.NotifyMessage
	repo.OnConversation = hub.NotifyConversation

	lock, closeLock, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLock()

	whatsappClient := whatsapp.NewClient(cfg)

	deps := automation.Deps{
		Store:       repo,
		Channel:     whatsappClient,
		Locker:      lock,
		Graphs:      automation.NewGraphCache(cfg.GraphCacheTTL),
		FlowTimeout: cfg.FlowTimeout,
		Location:    cfg.Location(),
	}
	if cfg.AIResponderURL != "" {
		deps.Responder = responder.NewHTTP(cfg.AIResponderURL, cfg.HTTPCallTimeout)
	}
	engine := automation.New(deps)
	webhookHandler := webhook.NewHandler(cfg, engine)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})
	api.Register(r.Group("/api"), repo, whatsappClient)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down server", zap.Error(err))
	}
	webhookHandler.Wait()
	return nil
}

func newLocker(ctx context.Context, cfg *config.Config) (automation.Locker, func(), error) {
	if cfg.LockBackend != "redis" {
		return locker.NewMemory(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Info("using redis conversation locks", zap.String("addr", cfg.RedisAddr))
	return locker.NewRedis(client, "flowbot:lock:", cfg.LockTTL), func() { _ = client.Close() }, nil
}
