package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campustrack/internal/analytics"
	"campustrack/internal/audit"
	"campustrack/internal/auth"
	"campustrack/internal/config"
	"campustrack/internal/cv"
	"campustrack/internal/handler"
	"campustrack/internal/httpmiddleware"
	"campustrack/internal/identity"
	"campustrack/internal/intake"
	"campustrack/internal/logging"
	"campustrack/internal/memstore"
	"campustrack/internal/metrics"
	"campustrack/internal/notify"
	"campustrack/internal/queue"
	"campustrack/internal/scoring"
	"campustrack/internal/storage"
	"campustrack/internal/store"
	"campustrack/internal/submission"
	"campustrack/internal/verification"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env)
	slog.SetDefault(log)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

// repositories is the persistence the services need, either Postgres or the
// in-process store used for local runs (DATABASE_URL=memory).
type repositories struct {
	identity interface {
		identity.Store
		analytics.Profiles
		cv.Profiles
	}
	submissions interface {
		verification.Store
		intake.Store
		analytics.Submissions
	}
	audit interface {
		audit.Appender
		handler.AuditQuerier
	}
}

func openRepositories(ctx context.Context, cfg config.App, log *slog.Logger) (repositories, *store.DB, error) {
	if cfg.DatabaseURL == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		mem := memstore.New()
		return repositories{identity: mem, submissions: mem, audit: mem}, nil, nil
	}
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return repositories{}, db, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return repositories{}, db, err
		}
	}
	return repositories{
		identity:    identity.NewRepository(db.Client),
		submissions: submission.NewRepository(db.Client),
		audit:       audit.NewRepository(db.Client),
	}, db, nil
}

func openArena(ctx context.Context, cfg config.App, log *slog.Logger) (cv.Arena, *store.Mongo, error) {
	if cfg.MongoURI == "" {
		log.Warn("MONGO_URI not set, keeping CV versions in memory")
		return cv.NewMemoryArena(), nil, nil
	}
	m, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, err
	}
	arena := cv.NewMongoArena(m.Database)
	if err := arena.EnsureIndexes(ctx); err != nil {
		return nil, m, err
	}
	return arena, m, nil
}

func openStorage(ctx context.Context, cfg config.App, log *slog.Logger) (storage.Uploader, error) {
	local := storage.NewLocal(cfg.UploadDir, "/uploads")
	switch cfg.StorageBackend {
	case "s3":
		s3, err := storage.NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return storage.Fallback{Primary: s3, Secondary: local, Log: log}, nil
	case "cloudinary":
		cdn, err := storage.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			return nil, err
		}
		return storage.Fallback{Primary: cdn, Secondary: local, Log: log}, nil
	}
	return local, nil
}

func runHTTP(cfg config.App, log *slog.Logger) error {
	ctx := context.Background()

	repos, db, err := openRepositories(ctx, cfg, log)
	defer func() { _ = db.Close() }()
	if err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	arena, mongo, err := openArena(ctx, cfg, log)
	defer func() { _ = mongo.Close(context.Background()) }()
	if err != nil {
		return err
	}

	q, err := queue.Open(queue.Options{
		Backend:      cfg.QueueBackend,
		Key:          cfg.QueueKey,
		AMQPURL:      cfg.AMQPURL,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaGroup:   cfg.KafkaGroup,
	}, redisClient.Client)
	if err != nil {
		return err
	}
	defer func() { _ = queue.Close(q) }()

	files, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info("storage configured", "backend", files.Name())

	scorer := scoring.Select(cfg.Scorer,
		scoring.NewExternal(cfg.ScorerURL, cfg.ScorerAPIKey, cfg.ScorerModel, cfg.ScorerTimeout), log)

	rec := audit.NewRecorder(repos.audit, log)
	agg := analytics.NewAggregator(repos.submissions, repos.identity, q, log)
	h := handler.New(handler.Deps{
		Verification:   verification.NewEngine(repos.submissions, agg, notify.NewPublisher(q, log), log),
		Analytics:      agg,
		Identity:       identity.NewService(repos.identity, rec, log),
		Intake:         intake.NewService(repos.submissions, files, agg, rec, log),
		CV:             cv.NewService(arena, files, repos.identity, scorer, rec, log),
		Audit:          repos.audit,
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	var limiter httpmiddleware.Limiter = httpmiddleware.NewMemoryLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisLimiter(redisClient.Client, cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(metrics.GinMiddleware())
	r.Use(httpmiddleware.RateLimit(limiter, log))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		rctx := c.Request.Context()
		dbHealthy := db == nil || db.Healthy(rctx)
		redisHealthy := redisClient.Healthy(rctx)
		mongoHealthy := mongo == nil || mongo.Healthy(rctx)
		status := http.StatusOK
		if !dbHealthy || !mongoHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy, "mongo": mongoHealthy})
	})

	if cfg.StorageBackend != "s3" && cfg.StorageBackend != "cloudinary" {
		r.Static("/uploads", cfg.UploadDir)
	}

	h.Register(r, auth.Authenticate(cfg.JWTSigningKey, cfg.JWTIssuer))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced shutdown", "err", err)
	}

	log.Info("server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
