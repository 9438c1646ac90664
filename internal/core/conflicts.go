package core

import (
	"strings"

	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/rs/zerolog"
)

// CheckConflicts validates a proposed record against the owner's other records.
//
// Rules enforced:
//  1. A CNAME may not coexist with any other record of the same name.
//  2. Only one record per name and type: providers hold a single record set
//     per name and type, so a second record would overwrite the first.
//  3. CNAMEs may not form resolution cycles.
//
// Records sharing the candidate's id are ignored, so an update does not
// conflict with its own previous version.
func CheckConflicts(candidate domain.Record, existing []domain.Record, logger zerolog.Logger) error {
	name := canonical(candidate.Domain)

	for _, r := range existing {
		if candidate.ID != "" && r.ID == candidate.ID {
			continue
		}
		if canonical(r.Domain) != name {
			continue
		}
		switch {
		case candidate.IsCNAME() && !r.IsCNAME():
			return domain.NewValidationError("type", "%s: cannot add a CNAME when a %s record exists with the same name", candidate.Domain, r.Type)
		case !candidate.IsCNAME() && r.IsCNAME():
			return domain.NewValidationError("type", "%s: cannot add %s when a CNAME exists with the same name", candidate.Domain, candidate.Type)
		case r.Type == candidate.Type:
			return domain.NewValidationError("domain", "%s: a %s record already exists for this name (id %s)", candidate.Domain, r.Type, r.ID)
		}
	}

	if candidate.IsCNAME() {
		forward := map[string]string{}
		for _, r := range existing {
			if !r.IsCNAME() || (candidate.ID != "" && r.ID == candidate.ID) {
				continue
			}
			if _, exists := forward[canonical(r.Domain)]; exists {
				logger.Warn().Msgf("Duplicate CNAME definitions stored for domain %s", r.Domain)
				continue
			}
			forward[canonical(r.Domain)] = canonical(r.Value)
		}
		forward[name] = canonical(candidate.Value)

		seen := map[string]struct{}{}
		cur := name
		for {
			next, ok := forward[cur]
			if !ok {
				break
			}
			if _, s := seen[cur]; s {
				return domain.NewValidationError("value", "CNAME cycle detected starting at %s", candidate.Domain)
			}
			seen[cur] = struct{}{}
			cur = next
		}
	}

	return nil
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
