package geosample

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geosample_samples_total",
		Help: "The total number of samples by operation and result",
	}, []string{"operation", "result"})
	blocksDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosample_geotiff_blocks_decoded_total",
		Help: "The total number of GeoTIFF blocks decoded",
	})
	blockCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geosample_geotiff_block_cache_hits_total",
		Help: "The total number of hits on the GeoTIFF block cache",
	})
)

const (
	resultOK          = "ok"
	resultOutOfBounds = "out_of_bounds"
	resultNoData      = "no_data"
	resultError       = "error"
)

// resultLabel returns the metric label for err.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrOutOfBounds):
		return resultOutOfBounds
	case errors.Is(err, ErrNoData):
		return resultNoData
	default:
		return resultError
	}
}
