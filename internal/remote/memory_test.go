package remote

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/rs/zerolog"
)

func change(action domain.ChangeAction, name string, kind domain.RecordKind, value string) Change {
	return Change{Action: action, Name: name, Type: kind, TTL: 300, Value: value}
}

func TestMemoryProvider_ApplyAndDelete(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider("zone-1", zerolog.New(io.Discard))

	if err := p.Apply(ctx, []Change{change(domain.ActionCreate, "www.example.com", domain.RecordA, "10.0.0.1")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if v, ttl, ok := p.Lookup("WWW.example.com.", domain.RecordA); !ok || v != "10.0.0.1" || ttl != 300 {
		t.Errorf("Lookup = %q %d %v", v, ttl, ok)
	}

	if err := p.Apply(ctx, []Change{change(domain.ActionUpsert, "www.example.com", domain.RecordA, "10.0.0.2")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if v, _, _ := p.Lookup("www.example.com", domain.RecordA); v != "10.0.0.2" {
		t.Errorf("value after upsert = %q", v)
	}

	err := p.Apply(ctx, []Change{change(domain.ActionDelete, "www.example.com", domain.RecordA, "10.0.0.1")})
	if err == nil || errors.Is(err, ErrRecordAbsent) {
		t.Errorf("expected value mismatch error, got %v", err)
	}
	if err := p.Apply(ctx, []Change{change(domain.ActionDelete, "www.example.com", domain.RecordA, "10.0.0.2")}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len = %d, want 0", p.Len())
	}
	err = p.Apply(ctx, []Change{change(domain.ActionDelete, "www.example.com", domain.RecordA, "10.0.0.2")})
	if !errors.Is(err, ErrRecordAbsent) {
		t.Errorf("second delete = %v, want ErrRecordAbsent", err)
	}
	if got := len(p.Submissions()); got != 5 {
		t.Errorf("Submissions = %d, want 5", got)
	}
}

func TestMemoryProvider_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider("", zerolog.New(io.Discard))

	err := p.Apply(ctx, []Change{
		change(domain.ActionUpsert, "a.example.com", domain.RecordA, "10.0.0.1"),
		change(domain.ActionDelete, "missing.example.com", domain.RecordA, "10.0.0.9"),
	})
	if !errors.Is(err, ErrRecordAbsent) {
		t.Fatalf("Apply = %v, want ErrRecordAbsent", err)
	}
	if p.Len() != 0 {
		t.Errorf("a rejected batch must leave no trace, Len = %d", p.Len())
	}
}

func TestMemoryProvider_FailWhenAndLatency(t *testing.T) {
	p := NewMemoryProvider("zone", zerolog.New(io.Discard))
	boom := errors.New("throttled")
	p.FailWhen = func(c Change) error {
		if c.Name == "bad.example.com" {
			return boom
		}
		return nil
	}
	err := p.Apply(context.Background(), []Change{change(domain.ActionCreate, "bad.example.com", domain.RecordA, "10.0.0.1")})
	if !errors.Is(err, boom) {
		t.Errorf("Apply = %v, want %v", err, boom)
	}

	p.FailWhen = nil
	p.Latency = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = p.Apply(ctx, []Change{change(domain.ActionCreate, "slow.example.com", domain.RecordA, "10.0.0.1")})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Apply = %v, want deadline exceeded", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len = %d, want 0", p.Len())
	}
}

func TestNewClient(t *testing.T) {
	logger := zerolog.New(io.Discard)

	c, err := NewClient(config.ProviderConfig{Name: "memory", ZoneID: "z1"}, logger)
	if err != nil {
		t.Fatalf("NewClient(memory): %v", err)
	}
	if c.Name() != "memory" || c.Zone() != "z1" {
		t.Errorf("client = %s/%s", c.Name(), c.Zone())
	}

	if _, err := NewClient(config.ProviderConfig{Name: "bind"}, logger); err == nil {
		t.Error("expected an error for an unregistered provider")
	}
	if _, err := NewClient(config.ProviderConfig{Name: "cloudflare", ZoneID: "z1"}, logger); err == nil {
		t.Error("expected an error for cloudflare without credentials")
	}

	names := Registered()
	want := []string{"cloudflare", "memory", "route53"}
	if len(names) != len(want) {
		t.Fatalf("Registered = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Registered[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
