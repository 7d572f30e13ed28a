package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveProbe(t *testing.T) {
	before := testutil.ToFloat64(ProbeAttempts.WithLabelValues("panel", "success"))
	ObserveProbe("panel", "success", 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(ProbeAttempts.WithLabelValues("panel", "success")))
}

func TestObserveSyncLabels(t *testing.T) {
	okBefore := testutil.ToFloat64(Syncs.WithLabelValues("player", "ok"))
	errBefore := testutil.ToFloat64(Syncs.WithLabelValues("none", "error"))

	ObserveSync("player", nil, time.Second)
	ObserveSync("", errors.New("boom"), time.Second)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(Syncs.WithLabelValues("player", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(Syncs.WithLabelValues("none", "error")))
}
