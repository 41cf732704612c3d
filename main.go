package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-trawl/config"
	"paper-trawl/models"
	"paper-trawl/pdftext"
	"paper-trawl/providers"
	"paper-trawl/providers/arxiv"
	"paper-trawl/providers/pubmed"
	"paper-trawl/providers/scopus"
	"paper-trawl/providers/zenodo"
	"paper-trawl/services"
	"paper-trawl/storage"
)

var (
	searchesRunTotal        prometheus.Counter
	publicationsStoredTotal *prometheus.CounterVec
	sourceResultsTotal      *prometheus.CounterVec
)

func init() {
	searchesRunTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searches_run_total",
			Help: "Total number of search runs executed.",
		},
	)
	publicationsStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publications_stored_total",
			Help: "Total number of publications written, by action.",
		},
		[]string{"action"},
	)
	sourceResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_results_total",
			Help: "Total number of raw records fetched, by source.",
		},
		[]string{"source"},
	)
	prometheus.MustRegister(searchesRunTotal, publicationsStoredTotal, sourceResultsTotal)
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

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to publications database.")

	logging.Info("Running database auto-migration...")
	if err := models.Migrate(db); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	seedDefaultPortals(db, logging)

	// S3 wird nur gebraucht, wenn geladene PDFs gespiegelt werden sollen.
	var s3Client *s3.Client
	if cfg.MirrorPDFs() {
		s3Client, err = storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		logging.Info("PDF mirroring to S3 enabled", zap.String("bucket", cfg.S3Bucket))
	}
	pdfFetcher := pdftext.NewFetcher(cfg, logging, s3Client)

	portals := services.NewPortalResolver(db, logging)

	var enabledSources []providers.Provider
	for _, name := range cfg.Sources() {
		switch name {
		case "pubmed":
			enabledSources = append(enabledSources, pubmed.NewFetcher(cfg, logging, portals, pdfFetcher))
		case "arxiv":
			enabledSources = append(enabledSources, arxiv.NewFetcher(cfg, logging, portals, pdfFetcher))
		case "zenodo":
			enabledSources = append(enabledSources, zenodo.NewFetcher(cfg, logging, portals, pdfFetcher))
		case "scopus":
			fetcher, err := scopus.NewFetcher(cfg, logging, portals)
			if err != nil {
				logging.Fatal("Scopus fetcher creation failed", zap.Error(err))
			}
			enabledSources = append(enabledSources, fetcher)
		default:
			logging.Warn("Unknown source in config", zap.String("source_name", name))
		}
	}
	if len(enabledSources) == 0 {
		logging.Fatal("No valid sources enabled. Check ENABLED_SOURCES in .env")
	}
	logging.Info("Active sources loaded", zap.Strings("sources", cfg.Sources()))

	enricher := services.NewCategoryEnricher(logging)
	if err := enricher.LoadDir(cfg.JournalRankingsDir); err != nil {
		logging.Warn("Journal rankings not loaded", zap.String("dir", cfg.JournalRankingsDir), zap.Error(err))
	}
	logging.Info("Journal rankings indexed", zap.Int("journals", enricher.Journals()))

	orchestrator := services.NewOrchestrator(logging, enabledSources)
	searchService := services.NewSearchService(cfg, db, logging, orchestrator, enricher)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupSearchRoutes(router, searchService)
	setupPublicationRoutes(router, db, logging)

	if cfg.CronSchedule != "" {
		cronScheduler := cron.New()
		if _, err := cronScheduler.AddFunc(cfg.CronSchedule, func() {
			rerunStoredSearches(searchService, logging)
		}); err != nil {
			logging.Fatal("Invalid cron schedule", zap.String("schedule", cfg.CronSchedule), zap.Error(err))
		}
		cronScheduler.Start()
		logging.Info("Scheduled re-runs active", zap.String("schedule", cfg.CronSchedule))
	}

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

// runSearch führt einen Suchlauf aus und pflegt die Prometheus-Zähler.
// Sowohl der HTTP-Endpunkt als auch der Cron-Job laufen hier durch.
func runSearch(svc *services.SearchService, query string, minYear, maxRecords int) (*services.RunOutcome, error) {
	outcome, err := svc.Run(context.Background(), query, minYear, maxRecords)
	if err != nil {
		return nil, err
	}
	searchesRunTotal.Inc()
	for _, src := range outcome.Sources {
		sourceResultsTotal.WithLabelValues(src.Source).Add(float64(src.Count))
	}
	publicationsStoredTotal.WithLabelValues("created").Add(float64(outcome.Created))
	publicationsStoredTotal.WithLabelValues("updated").Add(float64(outcome.Updated))
	return outcome, nil
}

func setupSearchRoutes(router *gin.Engine, svc *services.SearchService) {
	rg := router.Group("/searches")

	// Eine Suche anlegen und synchron durch die komplette Pipeline schicken.
	rg.POST("/", func(c *gin.Context) {
		type SearchRequest struct {
			Query      string `json:"query" binding:"required"`
			MinYear    int    `json:"min_year"`
			MaxRecords int    `json:"max_records"`
		}
		var req SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		outcome, err := runSearch(svc, req.Query, req.MinYear, req.MaxRecords)
		if err != nil {
			svc.Logger.Error("Search run failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"search_id":    outcome.SearchID,
			"count":        len(outcome.Publications),
			"created":      outcome.Created,
			"updated":      outcome.Updated,
			"failed":       outcome.Failed,
			"publications": outcome.Publications,
			"log":          outcome.Log,
		})
	})

	rg.GET("/", func(c *gin.Context) {
		var searches []models.Search
		if err := svc.DB.Order("created_at desc").Find(&searches).Error; err != nil {
			svc.Logger.Error("Database query for searches failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, searches)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var search models.Search
		if err := svc.DB.First(&search, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "search not found"})
				return
			}
			svc.Logger.Error("DB error loading search", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		var pubs []models.Publication
		if err := svc.DB.
			Joins("JOIN results ON results.publication_id = publications.id").
			Where("results.search_id = ?", search.ID).
			Preload("Portal").Preload("Authors").Preload("Categories.Category").
			Find(&pubs).Error; err != nil {
			svc.Logger.Error("DB error loading search publications", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"search": search, "publications": pubs})
	})

	// Eine Suche samt ihrer exklusiven Publikationen vergessen.
	rg.DELETE("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		if err := svc.Forget(c.Request.Context(), uint(id)); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "search not found"})
				return
			}
			svc.Logger.Error("Forgetting search failed", zap.Uint64("search_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to forget search"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "search forgotten"})
	})
}

func setupPublicationRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/publications")

	// Einfacher GET-Endpunkt, um alle Publikationen abzurufen (ohne Filter).
	rg.GET("/", func(c *gin.Context) {
		var pubs []models.Publication
		if err := db.Preload("Portal").Find(&pubs).Error; err != nil {
			log.Error("Database query for all publications failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, pubs)
	})

	// Body-gesteuerter Endpunkt für komplexe Abfragen.
	rg.POST("/query", func(c *gin.Context) {
		type PublicationQuery struct {
			DOI      string `json:"doi"`
			Portal   string `json:"portal"`
			Category string `json:"category"`
			YearFrom int    `json:"year_from"`
			YearTo   int    `json:"year_to"`
			Limit    int    `json:"limit"`
		}

		var req PublicationQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Publication{})

		if req.DOI != "" {
			query = query.Where("LOWER(doi) = ?", strings.ToLower(strings.TrimSpace(req.DOI)))
		}
		if req.Portal != "" {
			query = query.
				Joins("JOIN portals ON portals.id = publications.portal_id").
				Where("LOWER(portals.description) = ?", strings.ToLower(req.Portal))
		}
		if req.Category != "" {
			query = query.
				Joins("JOIN publication_categories ON publication_categories.publication_id = publications.id").
				Joins("JOIN categories ON categories.id = publication_categories.category_id").
				Where("LOWER(categories.category_name) = ?", strings.ToLower(req.Category))
		}
		if req.YearFrom > 0 {
			query = query.Where("publication_year >= ?", req.YearFrom)
		}
		if req.YearTo > 0 {
			query = query.Where("publication_year <= ?", req.YearTo)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var pubs []models.Publication
		if err := query.Order("created_at desc").
			Preload("Portal").Preload("Authors").Preload("Categories.Category").
			Find(&pubs).Error; err != nil {
			log.Error("Database query for publications failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		c.JSON(http.StatusOK, pubs)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var pub models.Publication
		if err := db.Preload("Portal").Preload("Authors").Preload("Categories.Category").
			First(&pub, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "publication not found"})
				return
			}
			log.Error("DB error loading publication", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, pub)
	})
}

// rerunStoredSearches wiederholt jede gespeicherte (Query, MinYear)-Kombination,
// um neu erschienene Publikationen einzusammeln. Jeder Durchlauf legt eine
// neue Such-Zeile an, Bestandspublikationen werden dabei nur aktualisiert.
func rerunStoredSearches(svc *services.SearchService, log *zap.Logger) {
	log.Info("Running scheduled search job...")

	type storedSearch struct {
		Query   string
		MinYear *int
	}
	var stored []storedSearch
	if err := svc.DB.Model(&models.Search{}).Distinct("query", "min_year").Find(&stored).Error; err != nil {
		log.Error("Cron job failed to load stored searches", zap.Error(err))
		return
	}

	for _, s := range stored {
		minYear := 0
		if s.MinYear != nil {
			minYear = *s.MinYear
		}
		outcome, err := runSearch(svc, s.Query, minYear, 0)
		if err != nil {
			log.Error("Scheduled search failed", zap.String("query", s.Query), zap.Error(err))
			continue
		}
		log.Info("Scheduled search completed",
			zap.String("query", s.Query),
			zap.Int("publications", len(outcome.Publications)),
			zap.Int("created", outcome.Created),
			zap.Int("updated", outcome.Updated))
	}
}

func seedDefaultPortals(db *gorm.DB, logger *zap.Logger) {
	var count int64
	db.Model(&models.Portal{}).Count(&count)
	if count > 0 {
		return
	}
	portals := []models.Portal{
		{Description: pubmed.PortalName},
		{Description: arxiv.PortalName},
		{Description: zenodo.PortalName},
		{Description: scopus.PortalName},
		{Description: models.UnknownPortalName},
	}
	if err := db.Create(&portals).Error; err != nil {
		logger.Warn("Failed to seed default portals", zap.Error(err))
	} else {
		logger.Info("Default portals seeded.")
	}
}
