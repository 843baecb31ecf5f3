package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector("sql_select")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordCounter("rows_read", 5)
		}()
	}
	wg.Wait()
	c.RecordGauge("buffer_depth", 3)
	c.RecordGauge("buffer_depth", 1)

	assert.Equal(t, float64(50), c.Value("rows_read"))
	assert.Equal(t, float64(1), c.Value("buffer_depth"))

	all := c.GetAll()
	assert.Equal(t, "sql_select", all["component"])
	assert.Equal(t, float64(50), all["rows_read"])
	assert.Contains(t, all, "uptime")
}

func TestPrometheusVectors(t *testing.T) {
	before := testutil.ToFloat64(RowsWritten.WithLabelValues("metrics_test", "insert"))
	RowsWritten.WithLabelValues("metrics_test", "insert").Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(RowsWritten.WithLabelValues("metrics_test", "insert")))

	BufferDepth.WithLabelValues("metrics_test").Set(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(BufferDepth.WithLabelValues("metrics_test")))
}

func TestThroughputTracker(t *testing.T) {
	tr := NewThroughputTracker("src", "dst")
	tr.Increment(10)
	assert.GreaterOrEqual(t, tr.GetAndReset(), float64(0))
	assert.Equal(t, int64(0), tr.count)
}
