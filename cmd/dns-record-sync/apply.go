package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/auto-dns/dns-record-sync/internal/app"
	"github.com/auto-dns/dns-record-sync/internal/domain"
)

var applyCmd = &cobra.Command{
	Use:   "apply create|upsert|delete",
	Short: "Apply or replay a single record change",
	Long:  "Applies one change through the synchronization controller. Replaying a change that ended local_only or failed is safe.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := domain.ChangeAction(strings.ToUpper(args[0]))
		if !action.IsValid() {
			return domain.NewValidationError("action", "unsupported action %q", args[0])
		}

		flags := cmd.Flags()
		owner, _ := flags.GetString("owner")
		id, _ := flags.GetString("id")
		name, _ := flags.GetString("domain")
		kind, _ := flags.GetString("type")
		value, _ := flags.GetString("value")
		ttl, _ := flags.GetInt("ttl")

		req := domain.ChangeRequest{
			Action: action,
			Record: domain.Record{
				ID:     id,
				Owner:  owner,
				Domain: name,
				Type:   domain.RecordKind(kind),
				Value:  value,
				TTL:    ttl,
			},
		}

		if action == domain.ActionUpsert {
			// Only the flags given on the command line change the stored record.
			var patch domain.RecordPatch
			if flags.Changed("domain") {
				patch.Domain = &name
			}
			if flags.Changed("type") {
				k := domain.RecordKind(kind)
				patch.Type = &k
			}
			if flags.Changed("value") {
				patch.Value = &value
			}
			if flags.Changed("ttl") {
				patch.TTL = &ttl
			}
			req.Patch = &patch
		}

		return withApp(cmd, func(ctx context.Context, application *app.App, log zerolog.Logger) error {
			out := application.Controller().Apply(ctx, req)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{
				"record":       out.Record,
				"status":       out.Status,
				"state":        out.State,
				"failed_stage": out.FailedStage,
			}); err != nil {
				return err
			}
			return out.Err
		})
	},
}

func init() {
	flags := applyCmd.Flags()
	flags.String("owner", "", "record owner")
	flags.String("id", "", "record id (required for upsert and delete)")
	flags.String("domain", "", "record domain name")
	flags.String("type", "", "record type")
	flags.String("value", "", "record value")
	flags.Int("ttl", 0, "record ttl in seconds (default from app.default_ttl)")
	applyCmd.MarkFlagRequired("owner")
}
