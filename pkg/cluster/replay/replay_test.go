package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/sentryd/pkg/cluster"
)

func checkResultMessage(t *testing.T) cluster.Message {
	t.Helper()
	msg, err := cluster.NewMessage(cluster.MethodCheckResult, cluster.CheckResultParams{
		Service: "web01!http",
	})
	require.NoError(t, err)
	return msg
}

func TestAppendAndReplayRoundTrips(t *testing.T) {
	l := NewLog(t.TempDir())
	msg := checkResultMessage(t)

	require.NoError(t, l.Append("peer-a", 1.0, "", msg))
	require.NoError(t, l.Append("peer-a", 2.0, "peer-b", msg))

	var got []Record
	err := l.Replay("peer-a", 0, "", func(r Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Ts)
	assert.Equal(t, 2.0, got[1].Ts)
	assert.Equal(t, "peer-b", got[1].Except)

	decoded, err := got[0].DecodeMessage()
	require.NoError(t, err)
	assert.Equal(t, cluster.MethodCheckResult, decoded.Method)
}

func TestReplayHonorsMinTs(t *testing.T) {
	l := NewLog(t.TempDir())
	msg := checkResultMessage(t)

	require.NoError(t, l.Append("peer-a", 1.0, "", msg))
	require.NoError(t, l.Append("peer-a", 5.0, "", msg))
	require.NoError(t, l.Append("peer-a", 10.0, "", msg))

	var tss []float64
	err := l.Replay("peer-a", 5.0, "", func(r Record) error {
		tss = append(tss, r.Ts)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{5.0, 10.0}, tss)
}

func TestReplayExcludesMatchingExcept(t *testing.T) {
	l := NewLog(t.TempDir())
	msg := checkResultMessage(t)

	require.NoError(t, l.Append("peer-a", 1.0, "peer-b", msg))
	require.NoError(t, l.Append("peer-a", 2.0, "peer-c", msg))

	var tss []float64
	err := l.Replay("peer-a", 0, "peer-b", func(r Record) error {
		tss = append(tss, r.Ts)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.0}, tss)
}

func TestRotateThenAppendReplaysAcrossBothFiles(t *testing.T) {
	l := NewLog(t.TempDir())
	msg := checkResultMessage(t)

	require.NoError(t, l.Append("peer-a", 1.0, "", msg))
	require.NoError(t, l.Rotate("peer-a"))
	require.NoError(t, l.Append("peer-a", 2.0, "", msg))

	var tss []float64
	err := l.Replay("peer-a", 0, "", func(r Record) error {
		tss = append(tss, r.Ts)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 2.0}, tss)
}

func TestReplayOnUnknownPeerIsEmpty(t *testing.T) {
	l := NewLog(t.TempDir())

	var calls int
	err := l.Replay("never-seen", 0, "", func(r Record) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestSizeBytesReflectsWrittenData(t *testing.T) {
	l := NewLog(t.TempDir())
	msg := checkResultMessage(t)

	require.NoError(t, l.Append("peer-a", 1.0, "", msg))

	sizes, err := l.SizeBytes()
	require.NoError(t, err)
	assert.Contains(t, sizes, "peer-a")
	assert.Greater(t, sizes["peer-a"], int64(0))
}

func TestSweepRemovesFullyConsumedRotatedFiles(t *testing.T) {
	l := NewLog(t.TempDir())
	msg := checkResultMessage(t)

	require.NoError(t, l.Append("peer-a", 1.0, "", msg))
	require.NoError(t, l.Rotate("peer-a"))
	require.NoError(t, l.Append("peer-a", 5.0, "", msg))

	require.NoError(t, l.Sweep(2.0))

	var tss []float64
	err := l.Replay("peer-a", 0, "", func(r Record) error {
		tss = append(tss, r.Ts)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{5.0}, tss)
}

func TestCloseFlushesPendingWrites(t *testing.T) {
	l := NewLog(t.TempDir())
	msg := checkResultMessage(t)

	require.NoError(t, l.Append("peer-a", 1.0, "", msg))
	require.NoError(t, l.Close())

	l2 := NewLog(l.baseDir)
	var count int
	err := l2.Replay("peer-a", 0, "", func(r Record) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
