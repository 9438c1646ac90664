package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/importer"
	"github.com/auto-dns/dns-record-sync/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Applier runs a change request through the synchronization controller.
type Applier interface {
	Apply(ctx context.Context, req domain.ChangeRequest) domain.SyncOutcome
}

type FileImporter interface {
	ImportFile(ctx context.Context, path string, format importer.Format, owner string, removeAfter bool) (*importer.ImportReport, error)
}

// RecordReader is the read side of the record store.
type RecordReader interface {
	Get(ctx context.Context, id, owner string) (domain.Record, error)
	List(ctx context.Context, owner string, filter store.Filter) ([]domain.Record, error)
	AggregateByField(ctx context.Context, owner, field string) (map[string]int, error)
}

type Server struct {
	router   *gin.Engine
	applier  Applier
	importer FileImporter
	records  RecordReader
	cfg      *config.HTTPConfig
	logger   zerolog.Logger
}

func NewServer(applier Applier, imp FileImporter, records RecordReader, cfg *config.HTTPConfig, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:   gin.New(),
		applier:  applier,
		importer: imp,
		records:  records,
		cfg:      cfg,
		logger:   logger.With().Str("component", "http").Logger(),
	}
	s.router.MaxMultipartMemory = cfg.MaxUploadBytes
	s.router.Use(gin.Recovery(), requestLogger(s.logger))
	s.mountHandlers()
	return s
}

func (s *Server) mountHandlers() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	dns := s.router.Group("/api/dns", ownerAuth([]byte(s.cfg.JWTSecret), s.cfg.OwnerClaim))
	dns.POST("", s.handleCreateRecord)
	dns.GET("", s.handleListRecords)
	dns.GET("/record-type-distribution", s.handleTypeDistribution)
	dns.GET("/domain-distribution", s.handleDomainDistribution)
	dns.POST("/bulk-upload", s.handleBulkUpload)
	dns.GET("/:id", s.handleGetRecord)
	dns.PUT("/:id", s.handleUpdateRecord)
	dns.DELETE("/:id", s.handleDeleteRecord)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Msgf("Listening on %s", s.cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		evt := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = logger.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Handled request")
	}
}
