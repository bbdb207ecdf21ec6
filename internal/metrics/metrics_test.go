package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	ObserveRun("m-cal", KindFull, time.Now(), nil)
	ObserveRun("m-cal", KindFull, time.Now(), errors.New("boom"))
	AddWrites("m-cal", 3, 2)
	BatchCommitted("m-cal")
	TokenInvalid("m-cal")
	Webhook("exists")

	assert.Equal(t, 1.0, testutil.ToFloat64(runsTotal.WithLabelValues("m-cal", KindFull, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(runsTotal.WithLabelValues("m-cal", KindFull, "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(writesTotal.WithLabelValues("m-cal", "upsert")))
	assert.Equal(t, 2.0, testutil.ToFloat64(writesTotal.WithLabelValues("m-cal", "delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(batchesTotal.WithLabelValues("m-cal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tokenInvalidTotal.WithLabelValues("m-cal")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(webhooksTotal.WithLabelValues("exists")), 1.0)
}
