package bundles

const (
	TopicOrderCompleted     = "order.completed"
	TopicBundleStockChanged = "bundle.stock.changed"
)

// Partition key = order_id, so all settlement events for one order keep
// their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
