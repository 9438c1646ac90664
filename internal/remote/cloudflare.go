package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog"
)

func init() {
	Register("cloudflare", func(cfg config.ProviderConfig, logger zerolog.Logger) (Client, error) {
		return NewCloudflareClient(cfg, logger)
	})
}

type cloudflareAPI interface {
	ListDNSRecords(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error)
	CreateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error)
	UpdateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.UpdateDNSRecordParams) (cloudflare.DNSRecord, error)
	DeleteDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, recordID string) error
}

// CloudflareClient applies changes to one Cloudflare zone. Cloudflare has no
// batch endpoint, so changes are applied in order and the first failure
// aborts the rest of the batch.
type CloudflareClient struct {
	api    cloudflareAPI
	zoneID string
	logger zerolog.Logger
}

func NewCloudflareClient(cfg config.ProviderConfig, logger zerolog.Logger) (*CloudflareClient, error) {
	if cfg.ZoneID == "" {
		return nil, fmt.Errorf("cloudflare: zone id is required")
	}
	var (
		api *cloudflare.API
		err error
	)
	switch {
	case cfg.Cloudflare.APIToken != "":
		api, err = cloudflare.NewWithAPIToken(cfg.Cloudflare.APIToken)
	case cfg.Cloudflare.APIKey != "" && cfg.Cloudflare.APIEmail != "":
		api, err = cloudflare.New(cfg.Cloudflare.APIKey, cfg.Cloudflare.APIEmail)
	default:
		return nil, fmt.Errorf("cloudflare: api_token or api_key with api_email is required")
	}
	if err != nil {
		return nil, fmt.Errorf("cloudflare: create client: %w", err)
	}
	return newCloudflareClient(api, cfg.ZoneID, logger), nil
}

func newCloudflareClient(api cloudflareAPI, zoneID string, logger zerolog.Logger) *CloudflareClient {
	return &CloudflareClient{api: api, zoneID: zoneID, logger: logger}
}

func (c *CloudflareClient) Name() string { return "cloudflare" }
func (c *CloudflareClient) Zone() string { return c.zoneID }

func (c *CloudflareClient) Apply(ctx context.Context, changes []Change) error {
	rc := cloudflare.ZoneIdentifier(c.zoneID)
	for i, ch := range changes {
		var err error
		switch ch.Action {
		case domain.ActionCreate:
			err = c.create(ctx, rc, ch)
		case domain.ActionUpsert:
			err = c.upsert(ctx, rc, ch)
		case domain.ActionDelete:
			err = c.delete(ctx, rc, ch)
		default:
			err = fmt.Errorf("cloudflare: unsupported action %q", ch.Action)
		}
		if err != nil {
			if i > 0 {
				c.logger.Warn().Int("applied", i).Int("total", len(changes)).Msg("Cloudflare batch stopped part way")
			}
			return err
		}
	}
	return nil
}

func (c *CloudflareClient) existing(ctx context.Context, rc *cloudflare.ResourceContainer, ch Change) ([]cloudflare.DNSRecord, error) {
	records, _, err := c.api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
		Name: strings.TrimSuffix(ch.Name, "."),
		Type: cloudflareType(ch.Type),
	})
	if err != nil {
		return nil, fmt.Errorf("cloudflare: list %s: %w", ch.Name, err)
	}
	return records, nil
}

// create ensures a record with this name, type and content exists.
func (c *CloudflareClient) create(ctx context.Context, rc *cloudflare.ResourceContainer, ch Change) error {
	records, err := c.existing(ctx, rc, ch)
	if err != nil {
		return err
	}
	content, priority, data := cloudflareContent(ch)
	for _, r := range records {
		if contentMatches(ch, r, content) {
			if r.TTL == ch.TTL {
				return nil
			}
			return c.update(ctx, rc, r.ID, ch)
		}
	}
	proxied := false
	_, err = c.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
		Type:     cloudflareType(ch.Type),
		Name:     strings.TrimSuffix(ch.Name, "."),
		Content:  content,
		Data:     data,
		TTL:      ch.TTL,
		Priority: priority,
		Proxied:  &proxied,
	})
	if err != nil {
		return fmt.Errorf("cloudflare: create %s: %w", ch.Render(), err)
	}
	return nil
}

// upsert rewrites the first record with this name and type, or creates one.
func (c *CloudflareClient) upsert(ctx context.Context, rc *cloudflare.ResourceContainer, ch Change) error {
	records, err := c.existing(ctx, rc, ch)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return c.create(ctx, rc, ch)
	}
	return c.update(ctx, rc, records[0].ID, ch)
}

func (c *CloudflareClient) update(ctx context.Context, rc *cloudflare.ResourceContainer, id string, ch Change) error {
	content, priority, data := cloudflareContent(ch)
	proxied := false
	_, err := c.api.UpdateDNSRecord(ctx, rc, cloudflare.UpdateDNSRecordParams{
		ID:       id,
		Type:     cloudflareType(ch.Type),
		Name:     strings.TrimSuffix(ch.Name, "."),
		Content:  content,
		Data:     data,
		TTL:      ch.TTL,
		Priority: priority,
		Proxied:  &proxied,
	})
	if err != nil {
		return fmt.Errorf("cloudflare: update %s: %w", ch.Render(), err)
	}
	return nil
}

func (c *CloudflareClient) delete(ctx context.Context, rc *cloudflare.ResourceContainer, ch Change) error {
	records, err := c.existing(ctx, rc, ch)
	if err != nil {
		return err
	}
	content, _, _ := cloudflareContent(ch)
	for _, r := range records {
		if !contentMatches(ch, r, content) {
			continue
		}
		if err := c.api.DeleteDNSRecord(ctx, rc, r.ID); err != nil {
			return fmt.Errorf("cloudflare: delete %s: %w", ch.Render(), err)
		}
		return nil
	}
	return ErrRecordAbsent
}

func cloudflareType(kind domain.RecordKind) string {
	if kind == domain.RecordDNSSEC {
		return "DS"
	}
	return string(kind)
}

// cloudflareContent splits provider-specific fields out of the record value:
// MX carries its preference as priority, SRV is sent as structured data.
func cloudflareContent(ch Change) (content string, priority *uint16, data interface{}) {
	fields := strings.Fields(ch.Value)
	switch ch.Type {
	case domain.RecordMX:
		if len(fields) == 2 {
			if pref, err := strconv.ParseUint(fields[0], 10, 16); err == nil {
				p := uint16(pref)
				return fields[1], &p, nil
			}
		}
	case domain.RecordSRV:
		if len(fields) == 4 {
			nums := make([]uint64, 3)
			for i := range nums {
				n, err := strconv.ParseUint(fields[i], 10, 16)
				if err != nil {
					return ch.Value, nil, nil
				}
				nums[i] = n
			}
			p := uint16(nums[0])
			return ch.Value, &p, map[string]interface{}{
				"priority": nums[0],
				"weight":   nums[1],
				"port":     nums[2],
				"target":   fields[3],
			}
		}
	}
	return ch.Value, nil, nil
}

// contentMatches compares provider content against a change. Cloudflare
// reports SRV content without the priority field.
func contentMatches(ch Change, r cloudflare.DNSRecord, content string) bool {
	if r.Content == content {
		return true
	}
	return ch.Type == domain.RecordSRV && r.Content != "" && strings.HasSuffix(ch.Value, " "+r.Content)
}
