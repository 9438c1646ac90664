package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

func init() {
	Register("route53", func(cfg config.ProviderConfig, logger zerolog.Logger) (Client, error) {
		return NewRoute53Client(context.Background(), cfg, logger)
	})
}

type route53API interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Route53Client applies change batches to one hosted zone.
type Route53Client struct {
	api    route53API
	zoneID string
	logger zerolog.Logger
}

func NewRoute53Client(ctx context.Context, cfg config.ProviderConfig, logger zerolog.Logger) (*Route53Client, error) {
	if cfg.ZoneID == "" {
		return nil, fmt.Errorf("route53: hosted zone id is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Route53.Region)}
	if cfg.Route53.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Route53.AccessKeyID, cfg.Route53.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("route53: load aws config: %w", err)
	}
	api := route53.NewFromConfig(awsCfg, func(o *route53.Options) {
		if cfg.Route53.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Route53.Endpoint)
		}
	})
	return newRoute53Client(api, cfg.ZoneID, logger), nil
}

func newRoute53Client(api route53API, zoneID string, logger zerolog.Logger) *Route53Client {
	return &Route53Client{api: api, zoneID: zoneID, logger: logger}
}

func (c *Route53Client) Name() string { return "route53" }
func (c *Route53Client) Zone() string { return c.zoneID }

func (c *Route53Client) Apply(ctx context.Context, changes []Change) error {
	batch := make([]types.Change, 0, len(changes))
	for _, ch := range changes {
		rc, err := route53Change(ch)
		if err != nil {
			return err
		}
		batch = append(batch, rc)
	}

	out, err := c.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(c.zoneID),
		ChangeBatch:  &types.ChangeBatch{Changes: batch},
	})
	if err != nil {
		if isMissingRecordSet(err) {
			return ErrRecordAbsent
		}
		return err
	}
	if out.ChangeInfo != nil {
		c.logger.Debug().
			Str("change_id", aws.ToString(out.ChangeInfo.Id)).
			Str("status", string(out.ChangeInfo.Status)).
			Int("changes", len(batch)).
			Msg("Route53 accepted change batch")
	}
	return nil
}

// route53Change maps a change onto a resource record set. CREATE is sent as
// UPSERT so that replaying an accepted create does not fail.
func route53Change(ch Change) (types.Change, error) {
	var action types.ChangeAction
	switch ch.Action {
	case domain.ActionCreate, domain.ActionUpsert:
		action = types.ChangeActionUpsert
	case domain.ActionDelete:
		action = types.ChangeActionDelete
	default:
		return types.Change{}, fmt.Errorf("route53: unsupported action %q", ch.Action)
	}
	return types.Change{
		Action: action,
		ResourceRecordSet: &types.ResourceRecordSet{
			Name:            aws.String(dns.Fqdn(ch.Name)),
			Type:            route53Type(ch.Type),
			TTL:             aws.Int64(int64(ch.TTL)),
			ResourceRecords: []types.ResourceRecord{{Value: aws.String(route53Value(ch.Type, ch.Value))}},
		},
	}, nil
}

func route53Type(kind domain.RecordKind) types.RRType {
	if kind == domain.RecordDNSSEC {
		return types.RRTypeDs
	}
	return types.RRType(kind)
}

// route53Value quotes TXT payloads, which route53 requires.
func route53Value(kind domain.RecordKind, value string) string {
	if kind == domain.RecordTXT && !strings.HasPrefix(value, `"`) {
		return strconv.Quote(value)
	}
	return value
}

// isMissingRecordSet recognizes the InvalidChangeBatch route53 returns when
// asked to delete a record set that does not exist.
func isMissingRecordSet(err error) bool {
	var icb *types.InvalidChangeBatch
	if !errors.As(err, &icb) {
		return false
	}
	msgs := append([]string{icb.ErrorMessage()}, icb.Messages...)
	for _, m := range msgs {
		if strings.Contains(m, "but it was not found") {
			return true
		}
	}
	return false
}
