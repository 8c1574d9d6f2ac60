package bundles

import "time"

type Status string

const (
	StatusDisabled Status = "DISABLED"
	StatusPending  Status = "PENDING"
	StatusLive     Status = "LIVE"
	StatusExpired  Status = "EXPIRED"
)

// ComputeStatus derives the availability status from the enabled flag
// and the post/expiry window. Pure: no stored status, re-evaluated from
// the clock every call. Nil dates mean no constraint on that side.
func ComputeStatus(enabled bool, postDate, expiryDate *time.Time, now time.Time) Status {
	if !enabled {
		return StatusDisabled
	}
	if postDate == nil {
		// Enabled with no post date: live immediately. Defaulting the
		// post date on first enable happens at save time, not here.
		return StatusLive
	}
	if postDate.After(now) {
		return StatusPending
	}
	if expiryDate != nil && !expiryDate.After(now) {
		return StatusExpired
	}
	return StatusLive
}

// StatusAt evaluates the bundle's status at the given instant.
func (b *Bundle) StatusAt(now time.Time) Status {
	return ComputeStatus(b.Enabled, b.PostDate, b.ExpiryDate, now)
}

// IsAvailable reports whether the bundle may be purchased right now.
// Live is the only purchasable status.
func (b *Bundle) IsAvailable(now time.Time) bool {
	return b.StatusAt(now) == StatusLive
}
