package bundles

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCompleted     = "OrderCompleted"
	EventBundleStockChanged = "BundleStockChanged"
)

// Envelope is the versioned wrapper every event on the wire uses.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type CompletedLine struct {
	BundleID string `json:"bundle_id"`
	Qty      int    `json:"qty"`
}

// OrderCompletedPayload is emitted by the order service the moment an
// order transitions to completed, after payment capture.
type OrderCompletedPayload struct {
	OrderID string          `json:"order_id"`
	Lines   []CompletedLine `json:"lines"`
}

type StockDecrement struct {
	VariantID string `json:"variant_id"`
	Amount    int    `json:"amount"`
	NewStock  int    `json:"new_stock"`
	Error     string `json:"error,omitempty"`
}

// BundleStockChangedPayload tells downstream caches that settlement
// touched the counters behind a bundle.
type BundleStockChangedPayload struct {
	BundleID   string           `json:"bundle_id"`
	OrderID    string           `json:"order_id"`
	Decrements []StockDecrement `json:"decrements"`
}
