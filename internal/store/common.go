package store

import (
	"encoding/json"
	"time"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

// WriterConfig controls batching for every writer in this package.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueDepth    int // buffered channel capacity between handler and writer
}

// DefaultWriterConfig returns sensible batching defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
		QueueDepth:    4096,
	}
}

// WriterMetrics holds running counters for one writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64 // messages discarded because the queue was full
}

type priceLevelJSON struct {
	Price    int `json:"price"`
	Quantity int `json:"quantity"`
}

func levelsToJSONB(levels []wire.PriceLevel) []byte {
	out := make([]priceLevelJSON, len(levels))
	for i, l := range levels {
		out[i] = priceLevelJSON{Price: l.Price, Quantity: l.Quantity}
	}
	data, _ := json.Marshal(out)
	return data
}

func sideToBoolean(side string) bool {
	return side == "yes"
}
