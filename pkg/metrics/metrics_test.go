package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sipeed/picopost/pkg/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestReporterCountsOutcomes(t *testing.T) {
	counter := CyclesTotal.WithLabelValues("relay", string(pipeline.StatusTimedOut), "timeout")
	before := testutil.ToFloat64(counter)

	Reporter{}.Report(context.Background(), pipeline.Outcome{
		Mode:     "relay",
		Status:   pipeline.StatusTimedOut,
		Err:      pipeline.TimeoutError("await reply", errors.New("no reply")),
		Duration: 3 * time.Minute,
	})

	assert.InDelta(t, before+1, testutil.ToFloat64(counter), 1e-9)
}
