package normalize

import (
	"strings"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
)

// Synonyms maps lowercase vendor status strings to canonical statuses.
var Synonyms = map[string]domain.Status{
	"pending":   domain.Pending,
	"queued":    domain.Pending,
	"in_queue":  domain.Pending,
	"waiting":   domain.Pending,
	"submitted": domain.Pending,
	"created":   domain.Pending,

	"processing":  domain.Processing,
	"running":     domain.Processing,
	"in_progress": domain.Processing,
	"in-progress": domain.Processing,
	"started":     domain.Processing,
	"generating":  domain.Processing,
	"rendering":   domain.Processing,

	"approved": domain.Approved,

	"completed": domain.Completed,
	"complete":  domain.Completed,
	"done":      domain.Completed,
	"success":   domain.Completed,
	"succeeded": domain.Completed,
	"finished":  domain.Completed,

	"posted":    domain.Posted,
	"published": domain.Posted,

	"failed":    domain.Failed,
	"failure":   domain.Failed,
	"error":     domain.Failed,
	"errored":   domain.Failed,
	"cancelled": domain.Failed,
	"canceled":  domain.Failed,
	"timed_out": domain.Failed,

	"rejected": domain.Rejected,
	"declined": domain.Rejected,
}

// Canonical maps a vendor status to a canonical one.
func Canonical(s string) (domain.Status, bool) {
	st, ok := Synonyms[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}
