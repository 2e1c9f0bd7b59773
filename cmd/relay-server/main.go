package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jasonhq/relay/internal/config"
	"github.com/jasonhq/relay/internal/database"
	"github.com/jasonhq/relay/internal/logger"
	postgresrepo "github.com/jasonhq/relay/internal/repository/postgres"
	"github.com/jasonhq/relay/internal/service"
	"github.com/jasonhq/relay/internal/storage"
	"github.com/jasonhq/relay/internal/transport/http/handlers"
	"github.com/jasonhq/relay/internal/transport/http/middleware"
	"github.com/jasonhq/relay/internal/transport/ws"
)

func main() {
	log := logger.New("server")
	defer log.Sync()

	cfg, err := config.Load(os.Getenv("RELAY_CONFIG"))
	if err != nil {
		log.Fatalw("loading config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalw("connecting to database", "error", err)
	}
	defer pool.Close()
	log.Infow("connected to database", "host", cfg.Database.Host)

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	channelRepo := postgresrepo.NewChannelRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)
	dmRepo := postgresrepo.NewDMRepo(pool)
	requestRepo := postgresrepo.NewJoinRequestRepo(pool)
	uploadRepo := postgresrepo.NewUploadRepo(pool)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	channelService := service.NewChannelService(channelRepo, requestRepo, userRepo)
	messageService := service.NewMessageService(messageRepo, channelService)
	dmService := service.NewDMService(dmRepo, userRepo)
	presenceService := service.NewPresenceService(userRepo)

	files, err := storage.NewLocalStore(cfg.Uploads.Dir, cfg.Uploads.BaseURL)
	if err != nil {
		log.Fatalw("preparing upload storage", "error", err)
	}
	uploadService := service.NewUploadService(uploadRepo, files, nil, log)

	// Real-time hub and notifier
	hub := ws.NewHub(presenceService, logger.New("ws"))
	notifier := ws.NewHubNotifier(hub, logger.New("ws"))
	messageService.SetNotifier(notifier)
	dmService.SetNotifier(notifier)
	uploadService.SetNotifier(notifier)
	channelService.SetSubscriptions(hub)

	gateway := service.NewGateway(cfg.JWTSecret, channelService, messageService, dmService)

	// Handlers
	httpLog := logger.New("http")
	authHandler := handlers.NewAuthHandler(authService, httpLog)
	channelHandler := handlers.NewChannelHandler(channelService, httpLog)
	messageHandler := handlers.NewMessageHandler(messageService, httpLog)
	dmHandler := handlers.NewDMHandler(dmService, httpLog)
	uploadHandler := handlers.NewUploadHandler(uploadService, httpLog)
	presenceHandler := handlers.NewPresenceHandler(presenceService, httpLog)

	auth := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// Real-time; identity comes from the first-frame handshake.
	mux.Handle("GET /ws", ws.ServeWS(hub, gateway, logger.New("ws")))

	// Uploaded files
	mux.Handle("GET "+cfg.Uploads.BaseURL+"/", http.StripPrefix(cfg.Uploads.BaseURL+"/", http.FileServer(http.Dir(cfg.Uploads.Dir))))

	// Protected - Users
	mux.Handle("GET /api/v1/me", auth(http.HandlerFunc(authHandler.Me)))

	// Protected - Channels
	mux.Handle("POST /api/v1/channels", auth(http.HandlerFunc(channelHandler.Create)))
	mux.Handle("GET /api/v1/channels", auth(http.HandlerFunc(channelHandler.List)))
	mux.Handle("POST /api/v1/channels/{id}/join", auth(http.HandlerFunc(channelHandler.Join)))
	mux.Handle("POST /api/v1/channels/{id}/leave", auth(http.HandlerFunc(channelHandler.Leave)))
	mux.Handle("GET /api/v1/channels/{id}/members", auth(http.HandlerFunc(channelHandler.ListMembers)))
	mux.Handle("POST /api/v1/channels/{id}/archive", auth(http.HandlerFunc(channelHandler.Archive)))
	mux.Handle("GET /api/v1/channels/{id}/requests", auth(http.HandlerFunc(channelHandler.PendingRequests)))
	mux.Handle("POST /api/v1/requests/{rid}", auth(http.HandlerFunc(channelHandler.ResolveRequest)))

	// Protected - Messages
	mux.Handle("GET /api/v1/channels/{id}/messages", auth(http.HandlerFunc(messageHandler.List)))

	// Protected - Direct messages
	mux.Handle("GET /api/v1/dms", auth(http.HandlerFunc(dmHandler.Conversations)))
	mux.Handle("GET /api/v1/dms/unread", auth(http.HandlerFunc(dmHandler.UnreadCounts)))
	mux.Handle("GET /api/v1/dms/{uid}", auth(http.HandlerFunc(dmHandler.Thread)))
	mux.Handle("POST /api/v1/dms/{uid}/read", auth(http.HandlerFunc(dmHandler.MarkRead)))

	// Protected - Uploads
	mux.Handle("POST /api/v1/uploads", auth(http.HandlerFunc(uploadHandler.Upload)))
	mux.Handle("GET /api/v1/uploads", auth(http.HandlerFunc(uploadHandler.List)))
	mux.Handle("GET /api/v1/uploads/{id}", auth(http.HandlerFunc(uploadHandler.Get)))

	// Protected - Presence
	mux.Handle("GET /api/v1/presence", auth(http.HandlerFunc(presenceHandler.List)))

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: middleware.CORS(mux),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Infow("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
	log.Infow("server stopped")
}
