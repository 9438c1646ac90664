package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog"
)

type fakeCloudflare struct {
	records []cloudflare.DNSRecord
	seq     int
	calls   []string
	failOn  string
}

func (f *fakeCloudflare) ListDNSRecords(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error) {
	var out []cloudflare.DNSRecord
	for _, r := range f.records {
		if r.Name == params.Name && r.Type == params.Type {
			out = append(out, r)
		}
	}
	return out, &cloudflare.ResultInfo{}, nil
}

func (f *fakeCloudflare) CreateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error) {
	f.calls = append(f.calls, "create")
	if f.failOn == "create" {
		return cloudflare.DNSRecord{}, errors.New("rate limited")
	}
	f.seq++
	r := cloudflare.DNSRecord{ID: fmt.Sprintf("r%d", f.seq), Name: params.Name, Type: params.Type, Content: params.Content, TTL: params.TTL, Priority: params.Priority}
	f.records = append(f.records, r)
	return r, nil
}

func (f *fakeCloudflare) UpdateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.UpdateDNSRecordParams) (cloudflare.DNSRecord, error) {
	f.calls = append(f.calls, "update")
	for i, r := range f.records {
		if r.ID == params.ID {
			f.records[i].Content = params.Content
			f.records[i].TTL = params.TTL
			return f.records[i], nil
		}
	}
	return cloudflare.DNSRecord{}, errors.New("not found")
}

func (f *fakeCloudflare) DeleteDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, id string) error {
	f.calls = append(f.calls, "delete")
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func TestCloudflareClient_Lifecycle(t *testing.T) {
	ctx := context.Background()
	api := &fakeCloudflare{}
	c := newCloudflareClient(api, "zone-1", zerolog.New(io.Discard))

	create := change(domain.ActionCreate, "www.example.com.", domain.RecordA, "10.0.0.1")
	if err := c.Apply(ctx, []Change{create}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.Apply(ctx, []Change{create}); err != nil {
		t.Fatalf("replayed create: %v", err)
	}
	if len(api.records) != 1 {
		t.Fatalf("records = %d, want 1 after a replayed create", len(api.records))
	}
	if api.records[0].Name != "www.example.com" {
		t.Errorf("name = %q, want trailing dot trimmed", api.records[0].Name)
	}

	if err := c.Apply(ctx, []Change{change(domain.ActionUpsert, "www.example.com", domain.RecordA, "10.0.0.2")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(api.records) != 1 || api.records[0].Content != "10.0.0.2" {
		t.Errorf("records after upsert = %+v", api.records)
	}

	if err := c.Apply(ctx, []Change{change(domain.ActionDelete, "www.example.com", domain.RecordA, "10.0.0.2")}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err := c.Apply(ctx, []Change{change(domain.ActionDelete, "www.example.com", domain.RecordA, "10.0.0.2")})
	if !errors.Is(err, ErrRecordAbsent) {
		t.Errorf("second delete = %v, want ErrRecordAbsent", err)
	}
}

func TestCloudflareClient_MXPriority(t *testing.T) {
	api := &fakeCloudflare{}
	c := newCloudflareClient(api, "zone-1", zerolog.New(io.Discard))

	if err := c.Apply(context.Background(), []Change{change(domain.ActionCreate, "example.com", domain.RecordMX, "10 mail.example.com")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	r := api.records[0]
	if r.Content != "mail.example.com" || r.Priority == nil || *r.Priority != 10 {
		t.Errorf("mx record = %+v", r)
	}
}

func TestCloudflareClient_StopsOnFirstFailure(t *testing.T) {
	api := &fakeCloudflare{failOn: "create"}
	c := newCloudflareClient(api, "zone-1", zerolog.New(io.Discard))

	err := c.Apply(context.Background(), []Change{
		change(domain.ActionCreate, "a.example.com", domain.RecordA, "10.0.0.1"),
		change(domain.ActionCreate, "b.example.com", domain.RecordA, "10.0.0.2"),
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(api.calls) != 1 {
		t.Errorf("calls = %v, want a single create", api.calls)
	}
}
