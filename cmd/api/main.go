// main.go - The entry point and router setup.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosocmputer/invoice_labeler/configs"
	"github.com/bosocmputer/invoice_labeler/internal/ai"
	"github.com/bosocmputer/invoice_labeler/internal/api"
	"github.com/bosocmputer/invoice_labeler/internal/common"
	"github.com/bosocmputer/invoice_labeler/internal/ratelimit"
	"github.com/bosocmputer/invoice_labeler/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()
	logger := common.InitLogger(configs.LOG_LEVEL, configs.LOG_FORMAT)

	if err := configs.ValidateServerConfig(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if configs.GIN_MODE == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Create working directories
	for _, dir := range []string{configs.UPLOAD_DIR, configs.DATASET_DIR} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}

	ratelimit.Configure(configs.GEMINI_REQUESTS_PER_MINUTE)

	ctx := context.Background()

	// Step 2: AI providers
	providers, err := ai.CreateProviders(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create AI providers")
	}
	defer providers.Close()

	// Step 3: MongoDB and the optional GridFS object store
	if err := storage.InitMongoDB(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer storage.CloseMongoDB()

	db := storage.GetMongoDB()
	var objects api.ObjectStore
	if configs.ENABLE_OBJECT_STORE {
		store, err := storage.NewObjectStore(db, configs.OBJECT_BUCKET)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open object store")
		}
		objects = store
		log.Info().Str("bucket", configs.OBJECT_BUCKET).Msg("object store enabled")
	}

	handler := api.NewHandler(
		providers.OCR,
		providers.Structurer,
		storage.NewMongoStore(db),
		objects,
		storage.NewDatasetStore(configs.DATASET_DIR),
		storage.NewSessionCache(time.Duration(configs.SESSION_TTL_MINUTES)*time.Minute),
		api.ConfigFromEnv(),
	)

	// Step 4: Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger(logger))
	router.Use(api.CORSMiddleware(configs.ALLOWED_ORIGINS))
	router.MaxMultipartMemory = int64(configs.MAX_UPLOAD_MB) << 20

	// Root endpoint for SSL verification
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	handler.RegisterRoutes(router)

	// Step 5: HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + configs.PORT,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      5 * time.Minute, // OCR plus structuring can take minutes
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().
			Str("port", configs.PORT).
			Str("ocr_provider", providers.OCR.GetProviderName()).
			Str("dataset_dir", configs.DATASET_DIR).
			Msg("starting server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server exited")
}
