package redisx

import "time"

const (
	// Cached availability per bundle: bundle_avail:{bundle_id} ->
	// {"qty": n, "unlimited": bool, "purchasable": bool}
	KeyBundleAvailability = "bundle_avail:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLAvailabilityCache = 5 * time.Minute
	TTLDedup             = 48 * time.Hour
)
