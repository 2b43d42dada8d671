package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBeforeInitIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		if pipelineRunsTotal == nil {
			ObservePipelineRun(ResultSuccess, time.Second)
			ObservePipelinePhase("tariff", ResultError, time.Second)
			AddStagedRows(3)
			ObserveStagingExport("pdf", ResultSuccess, time.Second)
		}
	})
}

func TestObservePipelineRun(t *testing.T) {
	Init(nil, nil)

	before := testutil.ToFloat64(pipelineRunsTotal.WithLabelValues(ResultRejected))
	ObservePipelineRun(ResultRejected, 0)
	assert.Equal(t, before+1, testutil.ToFloat64(pipelineRunsTotal.WithLabelValues(ResultRejected)))

	beforePhase := testutil.ToFloat64(pipelinePhaseTotal.WithLabelValues("unknown", ResultSuccess))
	ObservePipelinePhase("", "", time.Millisecond)
	assert.Equal(t, beforePhase+1, testutil.ToFloat64(pipelinePhaseTotal.WithLabelValues("unknown", ResultSuccess)))

	beforeRows := testutil.ToFloat64(stagedRowsWritten)
	AddStagedRows(0)
	AddStagedRows(4)
	assert.Equal(t, beforeRows+4, testutil.ToFloat64(stagedRowsWritten))
}
