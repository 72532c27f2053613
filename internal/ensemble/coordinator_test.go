package ensemble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runvault/runvault/internal/storage"
	"github.com/runvault/runvault/testutil"
)

const testBaseURI = "/ensembles/fraud-model"

func newTestCoordinator(t *testing.T, mode Mode) (*Coordinator, *storage.Store) {
	t.Helper()
	store := testutil.TempStore(t)
	agg, err := NewAggregator(mode)
	require.NoError(t, err)
	coord, err := NewCoordinator(store, agg, testBaseURI)
	require.NoError(t, err)
	return coord, store
}

func TestNewCoordinator_Validation(t *testing.T) {
	store := testutil.TempStore(t)
	agg, err := NewAggregator(ModeBagging)
	require.NoError(t, err)

	_, err = NewCoordinator(nil, agg, testBaseURI)
	require.Error(t, err)
	_, err = NewCoordinator(store, nil, testBaseURI)
	require.Error(t, err)
	_, err = NewCoordinator(store, agg, "relative/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be absolute")
}

func TestCoordinator_AdvanceRoundPersists(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestCoordinator(t, ModeBagging)

	state, err := coord.AdvanceRound(ctx, RoundState{}, [][]byte{
		treeUpdate(t, 0.5),
		treeUpdate(t, 0.7),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, state.Round)

	uri := coord.RoundURI(1)
	assert.Equal(t, testBaseURI+"/round-000001", uri)

	meta, data, err := store.GetDetail(ctx, uri)
	require.NoError(t, err)
	assert.EqualValues(t, 1, meta["round"])
	assert.Equal(t, "bagging", meta["mode"])
	assert.NotEmpty(t, meta["completed_at"])
	assert.NotEmpty(t, data)

	// The round object carries its completion marker, so a listing that
	// excludes completed rounds comes back empty.
	remaining, err := store.ListObjects(ctx, testBaseURI, roundCompleteTag)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	all, err := store.ListObjects(ctx, testBaseURI, "")
	require.NoError(t, err)
	assert.Equal(t, []string{uri}, all)
}

func TestCoordinator_AdvanceRoundNoUpdates(t *testing.T) {
	coord, _ := newTestCoordinator(t, ModeBagging)
	_, err := coord.AdvanceRound(context.Background(), RoundState{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no updates")
}

func TestCoordinator_LoadStateEmpty(t *testing.T) {
	coord, _ := newTestCoordinator(t, ModeBagging)

	state, err := coord.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, state.Round)
	assert.Nil(t, state.Model)
	assert.Nil(t, state.Raw)

	history, err := coord.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCoordinator_ResumeLatestRound(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestCoordinator(t, ModeBagging)

	state, err := coord.AdvanceRound(ctx, RoundState{}, [][]byte{
		treeUpdate(t, 0.5),
		treeUpdate(t, 0.7),
	})
	require.NoError(t, err)
	_, err = coord.AdvanceRound(ctx, state, [][]byte{treeUpdate(t, 0.9)})
	require.NoError(t, err)

	// A fresh coordinator on the same store picks up where training left off.
	agg, err := NewAggregator(ModeBagging)
	require.NoError(t, err)
	resumed, err := NewCoordinator(store, agg, testBaseURI)
	require.NoError(t, err)

	loaded, err := resumed.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Round)
	require.NotNil(t, loaded.Model)

	param, err := modelParam(loaded.Model)
	require.NoError(t, err)
	assert.Equal(t, "3", param["num_trees"])

	history, err := resumed.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{coord.RoundURI(1), coord.RoundURI(2)}, history)
}

func TestCoordinator_CyclicRoundTrip(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestCoordinator(t, ModeCyclic)

	state, err := coord.AdvanceRound(ctx, RoundState{}, [][]byte{[]byte("model-v1")})
	require.NoError(t, err)
	assert.Equal(t, 1, state.Round)

	loaded, err := coord.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Round)
	assert.Equal(t, []byte("model-v1"), loaded.Raw)
	assert.Nil(t, loaded.Model)
}

func TestCoordinator_ModeMismatch(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestCoordinator(t, ModeBagging)

	_, err := coord.AdvanceRound(ctx, RoundState{}, [][]byte{treeUpdate(t, 0.5)})
	require.NoError(t, err)

	cyclicAgg, err := NewAggregator(ModeCyclic)
	require.NoError(t, err)
	cyclicCoord, err := NewCoordinator(store, cyclicAgg, testBaseURI)
	require.NoError(t, err)

	_, err = cyclicCoord.LoadState(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestCoordinator_RerunOverwritesRound(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestCoordinator(t, ModeBagging)

	state, err := coord.AdvanceRound(ctx, RoundState{}, [][]byte{treeUpdate(t, 0.5)})
	require.NoError(t, err)

	// Re-running the same round (same number) replaces the stored object.
	state.Round--
	_, err = coord.AdvanceRound(ctx, state, [][]byte{treeUpdate(t, 0.9)})
	require.NoError(t, err)

	all, err := store.ListObjects(ctx, testBaseURI, "")
	require.NoError(t, err)
	assert.Equal(t, []string{coord.RoundURI(1)}, all)
}
