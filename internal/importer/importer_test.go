package importer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/core"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/lock"
	"github.com/auto-dns/dns-record-sync/internal/remote"
	"github.com/auto-dns/dns-record-sync/internal/store"
	"github.com/rs/zerolog"
)

type failingBulkStore struct {
	store.Store
	err error
}

func (s *failingBulkStore) CreateMany(context.Context, []domain.Record) ([]domain.Record, error) {
	return nil, s.err
}

// listFailingStore cannot read stored records and counts bulk inserts.
type listFailingStore struct {
	store.Store
	err     error
	inserts int
}

func (s *listFailingStore) List(context.Context, string, store.Filter) ([]domain.Record, error) {
	return nil, s.err
}

func (s *listFailingStore) CreateMany(ctx context.Context, recs []domain.Record) ([]domain.Record, error) {
	s.inserts++
	return s.Store.CreateMany(ctx, recs)
}

// countingPublisher records every publish and can cancel the import.
type countingPublisher struct {
	mu     sync.Mutex
	calls  int
	onCall func()
}

func (p *countingPublisher) Publish(_ context.Context, rec domain.Record) domain.SyncOutcome {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.onCall != nil {
		p.onCall()
	}
	return domain.SyncOutcome{Action: domain.ActionCreate, Status: domain.StatusBothApplied, State: domain.StateSynced, Record: rec}
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{ZoneID: "zone-1", ImportConcurrency: 3, RemoteTimeout: time.Second, DefaultTTL: 3600}
}

func newTestImporter(st store.Store) (*Importer, *remote.MemoryProvider) {
	logger := zerolog.New(io.Discard)
	provider := remote.NewMemoryProvider("zone-1", logger)
	cfg := testConfig()
	ctrl := core.NewController(st, provider, lock.NewKeyedMutex(), cfg, logger)
	return NewImporter(st, ctrl, cfg, logger), provider
}

func aRows(names ...string) []Row {
	rows := make([]Row, len(names))
	for i, n := range names {
		rows[i] = Row{Line: i + 2, Domain: n, Type: "A", Value: "10.0.0.1"}
	}
	return rows
}

func TestImportBatch_AllRowsSucceed(t *testing.T) {
	st := store.NewMemoryStore()
	im, provider := newTestImporter(st)

	report := im.ImportBatch(context.Background(), aRows("a.example.com", "b.example.com", "c.example.com"), "alice")
	if report.Total != 3 || report.LocalSucceeded != 3 || report.RemoteSucceeded != 3 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	for i, r := range report.Rows {
		if r.Record.ID == "" || r.Record.TTL != 3600 || r.Line != i+2 {
			t.Errorf("row %d = %+v", i, r)
		}
	}
	if provider.Len() != 3 {
		t.Errorf("provider record sets = %d, want 3", provider.Len())
	}
	recs, _ := st.List(context.Background(), "alice", store.Filter{})
	if len(recs) != 3 {
		t.Errorf("stored records = %d, want 3", len(recs))
	}
}

func TestImportBatch_ValidationRejectsRows(t *testing.T) {
	st := store.NewMemoryStore()
	im, provider := newTestImporter(st)

	rows := []Row{
		{Line: 2, Domain: "a.example.com", Type: "A", Value: "10.0.0.1"},
		{Line: 3, Domain: "b.example.com", Type: "BOGUS", Value: "10.0.0.2"},
		{Line: 4, Domain: "", Type: "A", Value: "10.0.0.3"},
		{Line: 5, Domain: "a.example.com", Type: "A", Value: "10.0.0.4"},
		{Line: 6, Domain: "c.example.com", Type: "txt", Value: "hello", TTL: "60"},
	}
	report := im.ImportBatch(context.Background(), rows, "alice")
	if report.LocalSucceeded != 2 || report.RemoteSucceeded != 2 || report.Failed != 3 {
		t.Fatalf("report = %+v", report)
	}
	failed := report.FailedRows()
	wantLines := []int{3, 4, 5}
	for i, r := range failed {
		if r.Line != wantLines[i] || !domain.IsValidation(r.Err) || r.Status != domain.StatusBothFailed {
			t.Errorf("failed row %d = %+v", i, r)
		}
	}

	for _, sub := range provider.Submissions() {
		for _, c := range sub {
			if c.Type == "BOGUS" || c.Value == "10.0.0.4" {
				t.Errorf("rejected row reached the provider: %s", c.Render())
			}
		}
	}
	if report.Rows[4].Record.TTL != 60 || report.Rows[4].Record.Type != domain.RecordTXT {
		t.Errorf("txt row = %+v", report.Rows[4].Record)
	}
}

func TestImportBatch_RemoteFailureOnOneRow(t *testing.T) {
	st := store.NewMemoryStore()
	im, provider := newTestImporter(st)
	provider.FailWhen = func(c remote.Change) error {
		if c.Name == "d.example.com" {
			return errors.New("throttled")
		}
		return nil
	}

	names := []string{"a.example.com", "b.example.com", "c.example.com", "d.example.com", "e.example.com"}
	report := im.ImportBatch(context.Background(), aRows(names...), "alice")
	if report.LocalSucceeded != 5 || report.RemoteSucceeded != 4 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	failed := report.FailedRows()
	if len(failed) != 1 || failed[0].Record.Domain != "d.example.com" {
		t.Fatalf("failed rows = %+v", failed)
	}
	if failed[0].Status != domain.StatusLocalOnly || !domain.IsRemoteProvider(failed[0].Err) {
		t.Errorf("failed row = %+v", failed[0])
	}

	// The failed row stays local and converges on replay.
	ctrl := im.publisher.(*core.Controller)
	provider.FailWhen = nil
	out := ctrl.Apply(context.Background(), domain.ChangeRequest{Action: domain.ActionCreate, Record: failed[0].Record})
	if out.Status != domain.StatusBothApplied {
		t.Errorf("replay = %s", out.Render())
	}
	if provider.Len() != 5 {
		t.Errorf("provider record sets = %d, want 5", provider.Len())
	}
}

func TestImportBatch_BulkInsertFailure(t *testing.T) {
	st := &failingBulkStore{Store: store.NewMemoryStore(), err: errors.New("connection reset")}
	im, provider := newTestImporter(st)

	report := im.ImportBatch(context.Background(), aRows("a.example.com", "b.example.com"), "alice")
	if report.LocalSucceeded != 0 || report.RemoteSucceeded != 0 || report.Failed != 2 {
		t.Fatalf("report = %+v", report)
	}
	for _, r := range report.Rows {
		if r.FailedStage != domain.StageLocal || !domain.IsLocalStore(r.Err) {
			t.Errorf("row = %+v", r)
		}
	}
	if n := len(provider.Submissions()); n != 0 {
		t.Errorf("submissions = %d, want 0", n)
	}
}

func TestImportBatch_StoredRecordsUnreadable(t *testing.T) {
	st := &listFailingStore{Store: store.NewMemoryStore(), err: errors.New("connection reset")}
	im, provider := newTestImporter(st)

	rows := aRows("a.example.com", "b.example.com")
	rows = append(rows, Row{Line: 4, Domain: "c.example.com", Type: "BOGUS", Value: "1"})
	report := im.ImportBatch(context.Background(), rows, "alice")

	if report.LocalSucceeded != 0 || report.RemoteSucceeded != 0 || report.Failed != 3 {
		t.Fatalf("report = %+v", report)
	}
	for _, r := range report.Rows[:2] {
		if r.FailedStage != domain.StageLocal || !domain.IsLocalStore(r.Err) {
			t.Errorf("row %d = %+v", r.Line, r)
		}
	}
	if !domain.IsValidation(report.Rows[2].Err) {
		t.Errorf("invalid row = %+v", report.Rows[2])
	}
	if st.inserts != 0 {
		t.Errorf("bulk inserts = %d, want 0", st.inserts)
	}
	if n := len(provider.Submissions()); n != 0 {
		t.Errorf("submissions = %d, want 0", n)
	}
}

func TestImportBatch_Cancellation(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &countingPublisher{}
	cfg := testConfig()
	cfg.ImportConcurrency = 1
	im := NewImporter(st, pub, cfg, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub.onCall = cancel

	names := []string{"a.example.com", "b.example.com", "c.example.com", "d.example.com", "e.example.com"}
	report := im.ImportBatch(ctx, aRows(names...), "alice")

	if pub.calls != 1 {
		t.Errorf("publish calls = %d, want submission to stop after cancellation", pub.calls)
	}
	if report.LocalSucceeded != 5 {
		t.Errorf("local inserts = %d, want 5 kept", report.LocalSucceeded)
	}
	if report.RemoteSucceeded != pub.calls || report.Failed != 5-pub.calls {
		t.Errorf("report = %+v with %d calls", report, pub.calls)
	}
	for _, r := range report.FailedRows() {
		if r.Status != domain.StatusLocalOnly || !errors.Is(r.Err, context.Canceled) {
			t.Errorf("unsubmitted row = %+v", r)
		}
	}
	recs, _ := st.List(context.Background(), "alice", store.Filter{})
	if len(recs) != 5 {
		t.Errorf("stored records = %d, want 5", len(recs))
	}
}

func TestImportFile_RemovesUpload(t *testing.T) {
	st := store.NewMemoryStore()
	im, _ := newTestImporter(st)

	dir := t.TempDir()
	path := filepath.Join(dir, "records.csv")
	if err := os.WriteFile(path, []byte("domain,type,value,ttl\na.example.com,A,10.0.0.1,300\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	report, err := im.ImportFile(context.Background(), path, FormatCSV, "alice", true)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if report.RemoteSucceeded != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("upload still present: %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := im.ImportFile(context.Background(), bad, FormatJSON, "alice", true); err == nil {
		t.Error("expected a decode error")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Errorf("undecodable upload still present: %v", err)
	}
}
