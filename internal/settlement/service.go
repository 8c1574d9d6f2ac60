package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/tdevries/commerce-bundles/internal/bundles"
	kafkax "github.com/tdevries/commerce-bundles/internal/kafka"
	"github.com/tdevries/commerce-bundles/internal/redisx"
)

// Service settles completed orders: for every line item referencing a
// bundle it decrements constituent variant stock, drops the cached
// availability, and publishes a stock-changed event.
type Service struct {
	Bundles     *bundles.Repo
	Engine      *bundles.StockEngine
	Redis       *redis.Client
	Producer    *kafkax.Producer // publishes bundle.stock.changed
	ServiceName string
}

// HandleOrderCompleted is wired as the consumer handler for the
// order.completed topic. Settlement must run once per line item, so the
// event id is deduplicated before any counter is touched.
func (s *Service) HandleOrderCompleted(ctx context.Context, m kafkago.Message) error {
	var env bundles.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != bundles.EventOrderCompleted {
		return nil // ignore
	}

	// dedup via redis on event_id: Settle is not safe to re-run
	dkey := fmt.Sprintf(redisx.KeyDedup, "settlement", env.EventID)
	set, err := s.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err == nil && !set {
		return nil
	}

	p, err := kafkax.UnwrapPayload[bundles.OrderCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, line := range p.Lines {
		if err := s.settleLine(ctx, p.OrderID, line, env.TraceID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) settleLine(ctx context.Context, orderID string, line bundles.CompletedLine, trace string) error {
	bundle, err := s.Bundles.Load(ctx, line.BundleID)
	if err != nil {
		if errors.Is(err, bundles.ErrNotFound) {
			// A completed order referencing an unknown bundle is an
			// integrity problem, not a retryable consumer failure.
			log.Error().Str("order_id", orderID).Str("bundle_id", line.BundleID).
				Msg("completed order references unknown bundle")
			return nil
		}
		return err
	}

	result, err := s.Engine.Settle(ctx, bundle, bundles.LineItem{BundleID: bundle.ID, Qty: line.Qty})
	if err != nil {
		return err
	}

	evt := log.Info()
	if result.Failed() {
		evt = log.Error()
	}
	evt.Str("order_id", orderID).Str("bundle_id", bundle.ID).
		Int("qty", line.Qty).Int("variants", len(result.Decrements)).
		Msg("bundle settled")

	// Cached availability is stale the moment a counter moves.
	_ = s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyBundleAvailability, bundle.ID)).Err()

	s.publishStockChanged(orderID, bundle.ID, result, trace)
	return nil
}

func (s *Service) publishStockChanged(orderID, bundleID string, result bundles.SettlementResult, trace string) {
	payload := bundles.BundleStockChangedPayload{
		BundleID: bundleID,
		OrderID:  orderID,
	}
	for _, d := range result.Decrements {
		sd := bundles.StockDecrement{
			VariantID: d.VariantID,
			Amount:    d.Amount,
			NewStock:  d.NewStock,
		}
		if d.Err != nil {
			sd.Error = d.Err.Error()
		}
		payload.Decrements = append(payload.Decrements, sd)
	}

	ev := bundles.Envelope{
		EventID:       uuid.NewString(),
		EventType:     bundles.EventBundleStockChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Producer.Publish(bundles.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(bundles.EventBundleStockChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
