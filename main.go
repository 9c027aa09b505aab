package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"datanorm-bridge/config"
	"datanorm-bridge/datanorm"
	"datanorm-bridge/models"
	"datanorm-bridge/repository"
	"datanorm-bridge/services"
	"datanorm-bridge/transfer"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	runsStartedCounter  prometheus.Counter
	runsFinishedCounter *prometheus.CounterVec
)

func init() {
	runsStartedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conversion_runs_started_total",
			Help: "Total number of conversion runs started.",
		},
	)
	runsFinishedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_runs_finished_total",
			Help: "Total number of finished conversion runs by outcome.",
		},
		[]string{"outcome"},
	)
	prometheus.MustRegister(runsStartedCounter, runsFinishedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Supplier{}, &models.Manufacturer{}, &models.Brand{}, &models.ConversionRun{})

	store := repository.NewStore(db)

	// Spaltenschema laden und gegen die Pflichtfelder prüfen.
	schema := datanorm.DefaultSchema()
	if cfg.ColumnSchemaFile != "" {
		schema, err = datanorm.LoadSchemaFile(cfg.ColumnSchemaFile)
		if err != nil {
			logging.Fatal("Column schema load error", zap.Error(err))
		}
		logging.Info("Column schema loaded", zap.String("file", cfg.ColumnSchemaFile))
	}

	// Setup Transfer-Clients
	sourceClient := transfer.NewFTPClient(transfer.Endpoint{
		Host:     cfg.SourceFTPHost,
		Port:     cfg.SourceFTPPort,
		User:     cfg.SourceFTPUser,
		Password: cfg.SourceFTPPassword,
	})

	var destClient transfer.Client
	switch cfg.DestProtocol {
	case "s3":
		destClient, err = transfer.NewS3Client(context.Background(), transfer.S3Endpoint{
			Key:    cfg.DestS3Key,
			Secret: cfg.DestS3Secret,
			URL:    cfg.DestS3URL,
			Region: cfg.DestS3Region,
			Bucket: cfg.DestS3Bucket,
		})
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
	default:
		destClient = transfer.NewFTPClient(transfer.Endpoint{
			Host:     cfg.DestFTPHost,
			Port:     cfg.DestFTPPort,
			User:     cfg.DestFTPUser,
			Password: cfg.DestFTPPassword,
		})
	}

	// Setup Pipeline
	orchestrator := &services.PipelineOrchestrator{
		Store:  store,
		Schema: schema,
		Source: &services.SourceFetcher{
			Client:     sourceClient,
			SourceDir:  cfg.SourceFTPDir,
			FilePrefix: cfg.SourceFilePrefix,
			Retries:    cfg.TransferRetries,
			Backoff:    cfg.TransferBackoff(),
			Log:        logging,
		},
		Publisher: &services.DestinationPublisher{
			Client:  destClient,
			BaseDir: cfg.DestBaseDir,
			Retries: cfg.TransferRetries,
			Backoff: cfg.TransferBackoff(),
			Log:     logging,
		},
		Notifier: &services.ImportNotifier{
			TriggerURL: cfg.ImportTriggerURL,
			Log:        logging,
		},
		Images:      services.NewImageFetcher(cfg.ImageConcurrency, cfg.ImageTimeout(), logging),
		Formatter:   services.NewTargetFormatter(cfg.TargetDelimiter, cfg.TargetUseCRLF),
		Summary:     &services.SummaryBuilder{},
		StagingRoot: cfg.StagingDir,
		Metrics: &services.RunMetrics{
			Started:  runsStartedCounter,
			Finished: runsFinishedCounter,
		},
		Log: logging,
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Setup Routes
	setupSupplierRoutes(router, store, logging)
	setupConversionRoutes(router, store, orchestrator, logging)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupSupplierRoutes(router *gin.Engine, store *repository.Store, log *zap.Logger) {
	rg := router.Group("/suppliers")

	rg.GET("/", func(c *gin.Context) {
		suppliers, err := store.Suppliers.All()
		if err != nil {
			log.Error("Database query for suppliers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, suppliers)
	})

	rg.POST("/", func(c *gin.Context) {
		var supplier models.Supplier
		if err := c.ShouldBindJSON(&supplier); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		supplier.ExternalID = models.NormalizeExternalID(supplier.ExternalID)
		if supplier.ExternalID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "external_id required"})
			return
		}
		if err := store.Suppliers.Create(&supplier); err != nil {
			log.Error("DB error creating supplier", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create supplier"})
			return
		}
		c.JSON(http.StatusCreated, supplier)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		supplier, err := store.Suppliers.ByID(uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "supplier not found"})
				return
			}
			log.Error("DB error loading supplier", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, supplier)
	})

	rg.PUT("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		supplier, err := store.Suppliers.ByID(uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "supplier not found"})
				return
			}
			log.Error("DB error checking supplier on PUT", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		// Nur die veränderlichen Felder übernehmen; die Identität
		// eines Lieferanten wird nie verändert.
		var update struct {
			Name      *string `json:"name"`
			ShortName *string `json:"short_name"`
			GLN       *string `json:"gln"`
			Active    *bool   `json:"active"`
		}
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if update.Name != nil {
			supplier.Name = *update.Name
		}
		if update.ShortName != nil {
			supplier.ShortName = *update.ShortName
		}
		if update.GLN != nil {
			supplier.GLN = update.GLN
		}
		if update.Active != nil {
			supplier.Active = *update.Active
		}
		if err := store.Suppliers.Save(supplier); err != nil {
			log.Error("DB error updating supplier", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update supplier"})
			return
		}
		c.JSON(http.StatusOK, supplier)
	})
}

func setupConversionRoutes(router *gin.Engine, store *repository.Store, orchestrator *services.PipelineOrchestrator, log *zap.Logger) {
	rg := router.Group("/conversions")

	// Konvertierung für einen Lieferanten asynchron anstoßen.
	rg.POST("/supplier/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		supplier, err := store.Suppliers.ByID(uint(id))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "supplier not found"})
			return
		}

		go func() {
			run, err := orchestrator.Run(context.Background(), supplier.ID)
			if err != nil && run == nil {
				log.Error("Async conversion failed", zap.String("supplier", supplier.ExternalID), zap.Error(err))
				return
			}
			if err != nil {
				log.Warn("Async conversion finished with error",
					zap.String("supplier", supplier.ExternalID),
					zap.String("outcome", run.Outcome),
					zap.Error(err))
			} else {
				log.Info("Async conversion completed",
					zap.String("supplier", supplier.ExternalID),
					zap.String("outcome", run.Outcome))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": fmt.Sprintf("Conversion for supplier %s triggered.", supplier.ExternalID)})
	})

	// Konvertierung für alle aktiven Lieferanten anstoßen.
	rg.POST("/all", func(c *gin.Context) {
		go func() {
			orchestrator.RunAll(context.Background())
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Conversion for all active suppliers triggered."})
	})

	// Einzelnen Lauf abfragen.
	rg.GET("/runs/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		run, err := store.Runs.ByID(uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			log.Error("DB error loading run", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, run)
	})

	// Läufe eines Lieferanten, neueste zuerst.
	rg.GET("/supplier/:id/runs", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			if parsed, perr := strconv.Atoi(raw); perr == nil && parsed > 0 {
				limit = parsed
			}
		}
		runs, err := store.Runs.BySupplier(uint(id), limit)
		if err != nil {
			log.Error("DB error loading runs", zap.Uint64("supplier_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})
}
