package app

import (
	"context"
	"io"
	"testing"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

func loadConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestNew_MemoryWiring(t *testing.T) {
	cfg := loadConfig(t, nil)
	a, err := New(cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	rec := domain.Record{Owner: "alice", Domain: "www.example.com", Type: domain.RecordA, Value: "10.0.0.1"}
	out := a.Controller().Apply(context.Background(), domain.ChangeRequest{Action: domain.ActionCreate, Record: rec})
	if out.Status != domain.StatusBothApplied {
		t.Errorf("outcome = %s", out.Render())
	}
}

func TestNew_SQLWiring(t *testing.T) {
	cfg := loadConfig(t, map[string]any{
		"store.backend": "sql",
		"sql.dsn":       "file:appwiring?mode=memory&cache=shared",
	})
	a, err := New(cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	report := a.Importer().ImportBatch(context.Background(), nil, "alice")
	if report.Total != 0 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := loadConfig(t, map[string]any{"provider.name": "bind", "app.zone_id": "z1"})
	if _, err := New(cfg, zerolog.New(io.Discard)); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}
