package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeland/floodrisk-cli/internal/enrich"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testVectors(n int) []enrich.FeatureVector {
	vecs := make([]enrich.FeatureVector, n)
	for i := range vecs {
		vecs[i] = enrich.FeatureVector{
			Latitude:          9.93 + float64(i)*0.001,
			Longitude:         76.27,
			Flooded:           []int{0, 1, 0},
			FloodHistoryCount: 1,
			KSDMAZone:         5,
			Elevation:         5,
			Known:             true,
		}
	}
	return vecs
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, enrich.SchemaV1, 100, 250)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, 100, got.BatchSize)
	assert.Equal(t, 250, got.TotalCoords)
	assert.Equal(t, 0, got.Batches)
}

func TestGetRunMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, enrich.SchemaV1, 100, 10)
	require.NoError(t, err)

	require.NoError(t, s.CompleteRun(ctx, run.ID))
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)

	require.NoError(t, s.FailRun(ctx, run.ID, "provider down"))
	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "provider down", got.Error)

	assert.Error(t, s.CompleteRun(ctx, "missing-run"))
}

func TestSaveBatchAndVectors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, enrich.SchemaV1, 2, 5)
	require.NoError(t, err)

	require.NoError(t, s.SaveBatch(ctx, run.ID, 0, testVectors(2)))
	require.NoError(t, s.SaveBatch(ctx, run.ID, 1, testVectors(2)))
	require.NoError(t, s.SaveBatch(ctx, run.ID, 2, testVectors(1)))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Batches)
	assert.Equal(t, 5, got.Vectors)

	vecs, err := s.Vectors(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, 1, vecs[0].FloodHistoryCount)
	assert.Equal(t, []int{0, 1, 0}, vecs[0].Flooded)
}

func TestSaveBatchUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, enrich.SchemaV1, 2, 4)
	require.NoError(t, err)

	require.NoError(t, s.SaveBatch(ctx, run.ID, 0, testVectors(2)))
	require.NoError(t, s.SaveBatch(ctx, run.ID, 0, testVectors(1)))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Batches)
	assert.Equal(t, 1, got.Vectors, "re-saving a batch replaces its vectors")
}

func TestCompletedBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, enrich.SchemaV1, 2, 6)
	require.NoError(t, err)

	n, err := s.CompletedBatches(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.SaveBatch(ctx, run.ID, 0, testVectors(2)))
	require.NoError(t, s.SaveBatch(ctx, run.ID, 1, testVectors(2)))

	n, err = s.CompletedBatches(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListRunsAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, enrich.SchemaV1, 100, 10)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := s.CreateRun(ctx, enrich.SchemaV2, 50, 20)
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, first.ID))

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	complete, err := s.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, first.ID, complete[0].ID)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
}

func TestStoreSatisfiesCheckpointer(t *testing.T) {
	var _ enrich.Checkpointer = (*SQLiteStore)(nil)
	var _ Store = (*SQLiteStore)(nil)
}
