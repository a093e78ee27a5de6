package domain

import "time"

// Challenge is a single-use, time-boxed nonce bound to a public key. It
// lives only in process memory: pending until one successful submission
// consumes it, or until the expiry sweep removes it.
type Challenge struct {
	ChallengeID            string
	Challenge              string
	PublicKey              string
	RequireFreshBreadcrumb bool
	AllowedH3Cells         []string
	CreatedAt              time.Time
	ExpiresAt              time.Time
}

// Expired reports whether the challenge is past its deadline at the given
// instant.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AllowsCell reports whether a fresh breadcrumb's H3 cell satisfies the
// geofence. An empty allow-list admits any cell.
func (c Challenge) AllowsCell(cell string) bool {
	if len(c.AllowedH3Cells) == 0 {
		return true
	}
	for _, allowed := range c.AllowedH3Cells {
		if allowed == cell {
			return true
		}
	}
	return false
}
