package remote

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/rs/zerolog"
)

type fakeRoute53 struct {
	inputs []*route53.ChangeResourceRecordSetsInput
	err    error
}

func (f *fakeRoute53) ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &route53.ChangeResourceRecordSetsOutput{
		ChangeInfo: &types.ChangeInfo{Id: aws.String("C1"), Status: types.ChangeStatusPending},
	}, nil
}

func TestRoute53Client_ApplyBuildsOneBatch(t *testing.T) {
	api := &fakeRoute53{}
	c := newRoute53Client(api, "Z123", zerolog.New(io.Discard))

	err := c.Apply(context.Background(), []Change{
		change(domain.ActionDelete, "old.example.com", domain.RecordA, "10.0.0.1"),
		change(domain.ActionCreate, "txt.example.com", domain.RecordTXT, "v=spf1 -all"),
		change(domain.ActionUpsert, "sec.example.com", domain.RecordDNSSEC, "12345 13 2 ABCDEF"),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(api.inputs) != 1 {
		t.Fatalf("calls = %d, want 1", len(api.inputs))
	}
	in := api.inputs[0]
	if aws.ToString(in.HostedZoneId) != "Z123" {
		t.Errorf("zone = %q", aws.ToString(in.HostedZoneId))
	}
	got := in.ChangeBatch.Changes
	if len(got) != 3 {
		t.Fatalf("changes = %d, want 3", len(got))
	}

	tests := []struct {
		action types.ChangeAction
		name   string
		rrtype types.RRType
		value  string
	}{
		{types.ChangeActionDelete, "old.example.com.", types.RRTypeA, "10.0.0.1"},
		{types.ChangeActionUpsert, "txt.example.com.", types.RRTypeTxt, `"v=spf1 -all"`},
		{types.ChangeActionUpsert, "sec.example.com.", types.RRTypeDs, "12345 13 2 ABCDEF"},
	}
	for i, tt := range tests {
		rr := got[i].ResourceRecordSet
		if got[i].Action != tt.action {
			t.Errorf("[%d] action = %s, want %s", i, got[i].Action, tt.action)
		}
		if aws.ToString(rr.Name) != tt.name {
			t.Errorf("[%d] name = %q, want %q", i, aws.ToString(rr.Name), tt.name)
		}
		if rr.Type != tt.rrtype {
			t.Errorf("[%d] type = %s, want %s", i, rr.Type, tt.rrtype)
		}
		if v := aws.ToString(rr.ResourceRecords[0].Value); v != tt.value {
			t.Errorf("[%d] value = %q, want %q", i, v, tt.value)
		}
		if aws.ToInt64(rr.TTL) != 300 {
			t.Errorf("[%d] ttl = %d", i, aws.ToInt64(rr.TTL))
		}
	}
}

func TestRoute53Client_Errors(t *testing.T) {
	notFound := &types.InvalidChangeBatch{
		Messages: []string{"Tried to delete resource record set [name='x.example.com.', type='A'] but it was not found"},
	}
	tests := []struct {
		name   string
		err    error
		absent bool
	}{
		{"missing record set", notFound, true},
		{"other invalid batch", &types.InvalidChangeBatch{Message: aws.String("RRSet already exists")}, false},
		{"throttled", errors.New("Throttling: rate exceeded"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newRoute53Client(&fakeRoute53{err: tt.err}, "Z1", zerolog.New(io.Discard))
			err := c.Apply(context.Background(), []Change{change(domain.ActionDelete, "x.example.com", domain.RecordA, "10.0.0.1")})
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ErrRecordAbsent) != tt.absent {
				t.Errorf("Apply = %v, absent want %v", err, tt.absent)
			}
		})
	}

	c := newRoute53Client(&fakeRoute53{}, "Z1", zerolog.New(io.Discard))
	if err := c.Apply(context.Background(), []Change{{Action: "PATCH", Name: "x", Type: domain.RecordA}}); err == nil {
		t.Error("expected an error for an unsupported action")
	}
}
