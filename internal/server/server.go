package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/biblio-hub/apiserver/config"
	"github.com/biblio-hub/apiserver/internal/db"
	"github.com/biblio-hub/apiserver/internal/handlers"
	"github.com/biblio-hub/apiserver/internal/mq"
	"github.com/biblio-hub/apiserver/internal/services"
	"github.com/biblio-hub/apiserver/internal/stats"
	"github.com/biblio-hub/apiserver/internal/storage"
	"github.com/biblio-hub/apiserver/internal/store"
	"github.com/biblio-hub/apiserver/internal/upstream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server wraps the HTTP server, router and background workers.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	log        *zap.Logger
	cancel     context.CancelFunc
}

// New constructs a fully wired Server.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	bookRepo := store.NewBookRepository(dbConn)
	loanRepo := store.NewLoanRepository(dbConn)

	objectStore, err := buildStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	broker, err := buildBroker(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	var loanEvents *mq.LoanEvents
	if broker != nil {
		loanEvents = mq.NewLoanEvents(broker)
	}

	userService := services.NewUserService(userRepo)
	bookService := services.NewBookService(bookRepo, objectStore)
	loanService := services.NewLoanService(loanRepo, bookRepo, loanEvents, log)

	statsService := stats.NewService(BuildSources(cfg, userRepo, bookRepo, loanRepo), log)

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	authMiddleware := handlers.RequireAuth(jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, authMiddleware)
	})
	router.Route("/books", func(r chi.Router) {
		handlers.BookRouter(r, bookService, userService, authMiddleware)
	})
	router.Route("/loans", func(r chi.Router) {
		handlers.LoanRouter(r, loanService, userService, authMiddleware)
	})
	router.Route("/stats", func(r chi.Router) {
		handlers.StatsRouter(r, statsService, userService, authMiddleware)
	})
	router.Route("/exports", func(r chi.Router) {
		handlers.ExportRouter(r, userService, bookService, authMiddleware)
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

	workerCtx, cancel := context.WithCancel(context.Background())
	if cfg.Stats.RefreshInterval > 0 {
		go statsService.Run(workerCtx, cfg.Stats.RefreshInterval)
	}
	if loanEvents != nil {
		go func() {
			err := loanEvents.Subscribe(workerCtx, func(ctx context.Context, _ mq.LoanEvent) {
				if _, err := statsService.Refresh(ctx); err != nil {
					log.Warn("snapshot refresh after loan event failed", zap.Error(err))
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("loan event subscription ended", zap.Error(err))
			}
		}()
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		log:        log,
		cancel:     cancel,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops background workers and closes all resources.
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	_ = s.log.Sync()
	return s.httpServer.Close()
}

// buildStorage selects the object-storage backend for cover images.
// Returns nil when no backend is configured.
func buildStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	var backend storage.ObjectStorage

	switch cfg.Storage.Backend {
	case "":
		return nil, nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Storage.Minio)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to gcs: %w", err)
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	wrapped := storage.NewStorage(backend)
	if err := wrapped.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return wrapped, nil
}

// buildBroker selects the message broker for loan events. Returns nil when
// no backend is configured.
func buildBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.MQ.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.MQ.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		return mq.New(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.MQ.PubSub)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to pubsub: %w", err)
		}
		return mq.New(client), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
}

// BuildSources assembles the statistics sources. Each collection defaults
// to the local store; a configured upstream URL replaces it with an HTTP
// fetcher for that collection.
func BuildSources(
	cfg config.Config,
	userRepo *store.UserRepository,
	bookRepo *store.BookRepository,
	loanRepo *store.LoanRepository,
) stats.Sources {
	sources := services.StoreSources(userRepo, bookRepo, loanRepo)

	if url := cfg.Upstream.AdminDirectoryURL; url != "" {
		sources.Admins = upstream.NewClient(url).Source("")
	}
	if url := cfg.Upstream.LibrarianDirectoryURL; url != "" {
		sources.Librarians = upstream.NewClient(url).Source("")
	}
	if url := cfg.Upstream.ReaderDirectoryURL; url != "" {
		sources.Readers = upstream.NewClient(url).Source("")
	}
	if url := cfg.Upstream.CatalogURL; url != "" {
		sources.Books = upstream.NewClient(url).Source("")
	}
	if url := cfg.Upstream.LoanServiceURL; url != "" {
		client := upstream.NewClient(url)
		sources.Loans = client.Source("loans")
		sources.Requests = client.Source("requests")
	}

	return sources
}
