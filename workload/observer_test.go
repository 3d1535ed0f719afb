package workload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserversFanOut(t *testing.T) {
	a, b := &phaseRecorder{}, &phaseRecorder{}
	obs := Observers{a, b}

	obs.PhaseChanged(PhaseLoad)
	obs.Wrote(10)
	obs.Wrote(5)
	obs.Flushed(0)
	obs.Compacted(CompactResult{Policy: RangeSeek})
	obs.Sampled(Sample{Found: 1})

	for _, r := range []*phaseRecorder{a, b} {
		require.Equal(t, []Phase{PhaseLoad}, r.phases)
		require.Equal(t, int64(15), r.bytes)
		require.Equal(t, []int{0}, r.flushes)
		require.Len(t, r.compact, 1)
		require.Equal(t, 1, r.count())
	}
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "read", PhaseRead.String())
	require.Equal(t, "unknown", Phase(42).String())
}
