package importer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/core"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/store"
	"github.com/auto-dns/dns-record-sync/internal/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Publisher runs the remote stage for a record already inserted locally.
type Publisher interface {
	Publish(ctx context.Context, rec domain.Record) domain.SyncOutcome
}

// RowResult is the outcome of one input row.
type RowResult struct {
	Line        int                `json:"line"`
	Record      domain.Record      `json:"record"`
	Status      domain.SyncStatus  `json:"status"`
	State       domain.RecordState `json:"state"`
	FailedStage domain.Stage       `json:"failed_stage,omitempty"`
	Error       string             `json:"error,omitempty"`
	Err         error              `json:"-"`
}

func (r RowResult) Failed() bool {
	return r.Err != nil
}

// ImportReport aggregates a batch. Rows is in input order.
type ImportReport struct {
	Owner           string      `json:"owner"`
	Total           int         `json:"total"`
	LocalSucceeded  int         `json:"local_succeeded"`
	RemoteSucceeded int         `json:"remote_succeeded"`
	Failed          int         `json:"failed"`
	Rows            []RowResult `json:"rows"`
}

// FailedRows returns the rows that did not reach both sides.
func (r *ImportReport) FailedRows() []RowResult {
	return util.Filter(r.Rows, RowResult.Failed)
}

type Importer struct {
	store     store.Store
	publisher Publisher
	cfg       *config.AppConfig
	logger    zerolog.Logger
}

func NewImporter(st store.Store, publisher Publisher, cfg *config.AppConfig, logger zerolog.Logger) *Importer {
	return &Importer{
		store:     st,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "importer").Logger(),
	}
}

// ImportFile decodes a file and imports its rows. With removeAfter set the
// file is deleted as soon as decoding finishes, whether or not it succeeded.
func (im *Importer) ImportFile(ctx context.Context, path string, format Format, owner string, removeAfter bool) (*ImportReport, error) {
	rows, err := im.decodeFile(path, format, removeAfter)
	if err != nil {
		return nil, err
	}
	return im.ImportBatch(ctx, rows, owner), nil
}

func (im *Importer) decodeFile(path string, format Format, removeAfter bool) ([]Row, error) {
	if removeAfter {
		defer func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				im.logger.Warn().Err(err).Msgf("Failed to remove import file %s", path)
			}
		}()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return DecodeRows(f, format)
}

// ImportBatch validates rows, inserts the valid ones locally in a single
// store call, then publishes each to the provider with bounded concurrency.
// Local inserts are never rolled back because of remote failures.
func (im *Importer) ImportBatch(ctx context.Context, rows []Row, owner string) *ImportReport {
	report := &ImportReport{Owner: owner, Total: len(rows), Rows: make([]RowResult, len(rows))}

	candidates, positions := im.validate(ctx, rows, owner, report)

	var inserted []domain.Record
	if len(candidates) > 0 {
		var err error
		inserted, err = im.store.CreateMany(ctx, candidates)
		if err != nil {
			im.logger.Error().Err(err).Int("rows", len(candidates)).Msg("Bulk insert failed")
			lerr := &domain.LocalStoreError{Op: "create_many", Err: err}
			for i, pos := range positions {
				report.Rows[pos] = failedRow(rows[pos].Line, candidates[i], domain.StateAbsent, domain.StageLocal, lerr)
			}
			return im.finish(report)
		}
	}

	limit := im.cfg.ImportConcurrency
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, rec := range inserted {
		pos, rec := positions[i], rec
		if err := ctx.Err(); err != nil {
			report.Rows[pos] = notSubmitted(rows[pos].Line, rec, err)
			continue
		}
		g.Go(func() error {
			// g.Go may have waited for a free worker.
			if err := ctx.Err(); err != nil {
				report.Rows[pos] = notSubmitted(rows[pos].Line, rec, err)
				return nil
			}
			report.Rows[pos] = resultFrom(rows[pos].Line, im.publisher.Publish(ctx, rec))
			return nil
		})
	}
	_ = g.Wait()

	return im.finish(report)
}

// validate decodes rows into records, rejecting malformed rows and rows that
// conflict with stored records or earlier rows of the batch. When the stored
// records cannot be read, every row fails at the local stage.
func (im *Importer) validate(ctx context.Context, rows []Row, owner string, report *ImportReport) ([]domain.Record, []int) {
	existing, listErr := im.store.List(ctx, owner, store.Filter{})
	if listErr != nil {
		im.logger.Error().Err(listErr).Msg("Could not load stored records for conflict checks")
		listErr = &domain.LocalStoreError{Op: "list", Err: listErr}
	}

	var candidates []domain.Record
	var positions []int
	for i, row := range rows {
		ttl := row.TTL
		if strings.TrimSpace(ttl) == "" {
			ttl = strconv.Itoa(im.cfg.DefaultTTL)
		}
		rec, err := domain.NewRecord(owner, row.Domain, row.Type, row.Value, ttl)
		switch {
		case err != nil:
		case listErr != nil:
			err = listErr
		default:
			err = core.CheckConflicts(rec, existing, im.logger)
		}
		if err != nil {
			partial := domain.Record{Owner: owner, Domain: row.Domain, Type: domain.RecordKind(row.Type), Value: row.Value}
			report.Rows[i] = failedRow(row.Line, partial, domain.StateAbsent, domain.StageLocal, err)
			continue
		}
		existing = append(existing, rec)
		candidates = append(candidates, rec)
		positions = append(positions, i)
	}
	return candidates, positions
}

func (im *Importer) finish(report *ImportReport) *ImportReport {
	for _, r := range report.Rows {
		if r.State == domain.StateLocalPending || r.State == domain.StateSynced {
			report.LocalSucceeded++
		}
		if r.Status == domain.StatusBothApplied {
			report.RemoteSucceeded++
		}
		if r.Failed() {
			report.Failed++
		}
	}
	im.logger.Info().
		Str("owner", report.Owner).
		Int("total", report.Total).
		Int("local_succeeded", report.LocalSucceeded).
		Int("remote_succeeded", report.RemoteSucceeded).
		Int("failed", report.Failed).
		Msg("Import finished")
	return report
}

func failedRow(line int, rec domain.Record, state domain.RecordState, stage domain.Stage, err error) RowResult {
	return RowResult{
		Line:        line,
		Record:      rec,
		Status:      domain.StatusBothFailed,
		State:       state,
		FailedStage: stage,
		Error:       err.Error(),
		Err:         err,
	}
}

// notSubmitted reports a row inserted locally but never sent to the provider.
func notSubmitted(line int, rec domain.Record, cause error) RowResult {
	err := fmt.Errorf("not submitted: %w", cause)
	return RowResult{
		Line:        line,
		Record:      rec,
		Status:      domain.StatusLocalOnly,
		State:       domain.StateLocalPending,
		FailedStage: domain.StageRemote,
		Error:       err.Error(),
		Err:         err,
	}
}

func resultFrom(line int, out domain.SyncOutcome) RowResult {
	r := RowResult{
		Line:        line,
		Record:      out.Record,
		Status:      out.Status,
		State:       out.State,
		FailedStage: out.FailedStage,
		Err:         out.Err,
	}
	if out.Err != nil {
		r.Error = out.Err.Error()
	}
	return r
}
