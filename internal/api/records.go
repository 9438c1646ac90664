package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/importer"
	"github.com/auto-dns/dns-record-sync/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type recordRequest struct {
	Domain string `json:"domain"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	TTL    int    `json:"ttl"`
}

type patchRequest struct {
	Domain *string `json:"domain"`
	Type   *string `json:"type"`
	Value  *string `json:"value"`
	TTL    *int    `json:"ttl"`
}

type outcomeResponse struct {
	Record      domain.Record      `json:"record"`
	Status      domain.SyncStatus  `json:"status"`
	State       domain.RecordState `json:"state"`
	FailedStage domain.Stage       `json:"failed_stage,omitempty"`
	Message     string             `json:"message,omitempty"`
}

func (s *Server) handleCreateRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	rec := domain.Record{
		Domain: req.Domain,
		Type:   domain.RecordKind(req.Type),
		Value:  req.Value,
		TTL:    req.TTL,
		Owner:  ownerOf(c),
	}
	out := s.applier.Apply(c.Request.Context(), domain.ChangeRequest{Action: domain.ActionCreate, Record: rec})
	s.writeOutcome(c, out, http.StatusCreated)
}

func (s *Server) handleGetRecord(c *gin.Context) {
	rec, err := s.records.Get(c.Request.Context(), c.Param("id"), ownerOf(c))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleUpdateRecord(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	patch := domain.RecordPatch{Domain: req.Domain, Value: req.Value, TTL: req.TTL}
	if req.Type != nil {
		kind := domain.RecordKind(*req.Type)
		patch.Type = &kind
	}
	out := s.applier.Apply(c.Request.Context(), domain.ChangeRequest{
		Action: domain.ActionUpsert,
		Record: domain.Record{ID: c.Param("id"), Owner: ownerOf(c)},
		Patch:  &patch,
	})
	s.writeOutcome(c, out, http.StatusOK)
}

func (s *Server) handleDeleteRecord(c *gin.Context) {
	rec := domain.Record{ID: c.Param("id"), Owner: ownerOf(c)}
	out := s.applier.Apply(c.Request.Context(), domain.ChangeRequest{Action: domain.ActionDelete, Record: rec})
	s.writeOutcome(c, out, http.StatusOK)
}

func (s *Server) handleListRecords(c *gin.Context) {
	filter := store.Filter{
		Domain:  c.Query("domain"),
		OrderBy: c.Query("sort"),
		Desc:    strings.EqualFold(c.Query("order"), "desc"),
	}
	switch filter.OrderBy {
	case store.OrderInsertion, store.OrderDomain, store.OrderType, store.OrderTTL:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("unsupported sort %q", filter.OrderBy)})
		return
	}
	if t := c.Query("type"); t != "" {
		kind, err := domain.ParseKind(t)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		filter.Type = kind
	}
	recs, err := s.records.List(c.Request.Context(), ownerOf(c), filter)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

type typeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type domainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

func (s *Server) handleTypeDistribution(c *gin.Context) {
	counts, err := s.records.AggregateByField(c.Request.Context(), ownerOf(c), store.FieldType)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	out := make([]typeCount, 0, len(counts))
	for _, k := range sortedByCount(counts) {
		out = append(out, typeCount{Type: k, Count: counts[k]})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDomainDistribution(c *gin.Context) {
	counts, err := s.records.AggregateByField(c.Request.Context(), ownerOf(c), store.FieldDomainSuffix)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	out := make([]domainCount, 0, len(counts))
	for _, k := range sortedByCount(counts) {
		out = append(out, domainCount{Domain: k, Count: counts[k]})
	}
	c.JSON(http.StatusOK, out)
}

// sortedByCount orders keys by descending count, then name.
func sortedByCount(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (s *Server) handleBulkUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No files were uploaded"})
		return
	}
	if s.cfg.MaxUploadBytes > 0 && header.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes)})
		return
	}
	format, err := importer.FormatFor(header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o750); err != nil {
		s.logger.Error().Err(err).Msg("Could not create upload directory")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"."+string(format))
	if err := c.SaveUploadedFile(header, path); err != nil {
		_ = os.Remove(path)
		s.logger.Error().Err(err).Msg("Could not spool upload")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	report, err := s.importer.ImportFile(c.Request.Context(), path, format, ownerOf(c), true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, report)
}

// writeOutcome maps a sync outcome onto an HTTP status. The body always
// carries the outcome so that partial results are visible to the caller.
func (s *Server) writeOutcome(c *gin.Context, out domain.SyncOutcome, success int) {
	resp := outcomeResponse{
		Record:      out.Record,
		Status:      out.Status,
		State:       out.State,
		FailedStage: out.FailedStage,
	}
	if out.Err != nil {
		resp.Message = out.Err.Error()
	}
	c.JSON(outcomeStatus(out, success), resp)
}

func outcomeStatus(out domain.SyncOutcome, success int) int {
	switch {
	case out.Err == nil:
		return success
	case domain.IsValidation(out.Err):
		return http.StatusBadRequest
	case domain.IsNotFound(out.Err):
		return http.StatusNotFound
	case out.Status == domain.StatusLocalOnly:
		return http.StatusAccepted
	case domain.IsRemoteProvider(out.Err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Record not found"})
		return
	}
	s.logger.Error().Err(err).Msg("Record store read failed")
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

