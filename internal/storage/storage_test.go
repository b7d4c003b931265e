package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/mediaopt/internal/media"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "state.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleReport() media.AssetReport {
	asset := media.NewSourceAsset("/site/public/images/hero.jpg", media.KindImage)
	task := func(kind media.TaskKind, variant string) media.DerivationTask {
		return media.DerivationTask{Asset: asset, Kind: kind, Variant: variant, Target: "/out/" + variant}
	}
	return media.AssetReport{
		Asset: asset,
		Outcomes: []media.TaskOutcome{
			{Task: task(media.TaskOptimizeOriginal, "original"), Status: media.StatusSucceeded, OutputSize: 100, Duration: 20 * time.Millisecond},
			{Task: task(media.TaskFormatConvert, "webp"), Status: media.StatusFailed, Err: errors.New("vips: broken")},
			{Task: task(media.TaskResizeVariant, "400w"), Status: media.StatusSkipped, Err: errors.New("нет размеров")},
		},
	}
}

func TestStorage_RunLifecycle(t *testing.T) {
	s := newTestStorage(t)

	id, err := s.StartRun(media.KindImage, "abc", false)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	run, err := s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, "image", run.Kind)

	require.NoError(t, s.RecordReport(id, sampleReport()))
	require.NoError(t, s.FinishRun(id, RunCompleted, RunTotals{Assets: 1, Succeeded: 1, Failed: 1, Skipped: 1}, nil))

	run, err = s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, int64(1), run.Assets)
	assert.Equal(t, int64(1), run.Failed)
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.Error)

	failed, err := s.FailedOutcomes(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"hero.jpg/webp: vips: broken"}, failed)
}

func TestStorage_FinishRun_Aborted(t *testing.T) {
	s := newTestStorage(t)

	id, err := s.StartRun(media.KindVideo, "abc", false)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(id, RunAborted, RunTotals{}, errors.New("ffmpeg не найден")))

	run, err := s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, RunAborted, run.Status)
	assert.Equal(t, "ffmpeg не найден", run.Error)
}

func TestStorage_FinishRun_UnknownID(t *testing.T) {
	s := newTestStorage(t)
	assert.Error(t, s.FinishRun("missing", RunCompleted, RunTotals{}, nil))
}

func TestStorage_MarkInterrupted(t *testing.T) {
	s := newTestStorage(t)

	stale, err := s.StartRun(media.KindImage, "abc", false)
	require.NoError(t, err)
	done, err := s.StartRun(media.KindImage, "abc", false)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(done, RunCompleted, RunTotals{}, nil))

	n, err := s.MarkInterrupted()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	run, err := s.GetRun(stale)
	require.NoError(t, err)
	assert.Equal(t, RunInterrupted, run.Status)

	run, err = s.GetRun(done)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
}

func TestStorage_RecentRunsAndTotals(t *testing.T) {
	s := newTestStorage(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := s.StartRun(media.KindImage, "a", false)
	require.NoError(t, err)
	require.NoError(t, s.RecordReport(first, sampleReport()))
	second, err := s.StartRun(media.KindVideo, "b", true)
	require.NoError(t, err)

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, first, runs[1].ID)

	runs, err = s.RecentRuns(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	totals, err := s.GetTotals()
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Runs)
	assert.Equal(t, int64(1), totals.Succeeded)
	assert.Equal(t, int64(1), totals.Failed)
	assert.Equal(t, int64(1), totals.Skipped)
	assert.Equal(t, int64(100), totals.OutputBytes)
}

func TestStorage_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.sqlite")

	s, err := New(path)
	require.NoError(t, err)
	id, err := s.StartRun(media.KindImage, "a", false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	assert.Equal(t, time.Duration(0), Run{StartedAt: start}.Duration())
	assert.Equal(t, 90*time.Second, Run{StartedAt: start, FinishedAt: &end}.Duration())
}
