package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/db"
	"github.com/userhub/apiserver/internal/events"
	"github.com/userhub/apiserver/internal/handlers"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/storage"
	"github.com/userhub/apiserver/internal/store"
)

// Server wraps the HTTP server and its owned resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  events.Publisher
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx, dbConn); err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	avatars, err := newAvatarStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	publisher, err := newEventPublisher(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	userService := services.NewUserService(userRepo, publisher, avatars)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/health", handlers.Health)
	router.Route("/users", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(handlers.RequireAPIKey(cfg.APIKey))
		}
		handlers.UserRouter(r, userService)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	logrus.WithField("addr", s.httpServer.Addr).Info("starting server")
	return s.httpServer.ListenAndServe()
}

// Shutdown closes owned resources and stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

func newAvatarStorage(ctx context.Context, cfg config.Config) (storage.ObjectStorage, error) {
	var backend storage.ObjectStorage
	var err error

	switch cfg.AvatarStorage {
	case config.StorageBackendMinio:
		backend, err = storage.NewMinioClient(cfg.Minio)
	case config.StorageBackendGCS:
		backend, err = storage.NewGCSClient(ctx, cfg.GCS)
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown avatar storage backend %q", cfg.AvatarStorage)
	}
	if err != nil {
		return nil, err
	}

	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func newEventPublisher(ctx context.Context, cfg config.Config) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case config.EventsBackendRabbitMQ:
		return events.NewRabbitMQPublisher(cfg.RabbitMQ)
	case config.EventsBackendPubSub:
		return events.NewPubSubPublisher(ctx, cfg.PubSub)
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
	}
}
