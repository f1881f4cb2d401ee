package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func profile(id int64, tempo float64, plugins ...string) *ProjectProfile {
	return &ProjectProfile{
		ID:      id,
		Tempo:   &tempo,
		Plugins: plugins,
	}
}

// TestIdenticalProjectsScoreFull: every component of a self-identical
// pair scores 1, so the weighted blend does too.
func TestIdenticalProjectsScoreFull(t *testing.T) {
	a := &ProjectProfile{
		ID:                1,
		Tempo:             ptr(128.0),
		TrackCount:        8,
		AudioTracks:       5,
		MidiTracks:        3,
		ArrangementLength: ptr(64.0),
		Plugins:           []string{"Serum", "Massive"},
		Devices:           []string{"Compressor"},
		FeatureVector:     []float32{1, 2, 3, 4},
	}
	b := *a
	b.ID = 2

	result := NewAnalyzer(DefaultWeights()).ComputeSimilarity(a, &b)

	require.InDelta(t, 1.0, result.PluginSimilarity, 1e-9)
	require.InDelta(t, 1.0, result.DeviceSimilarity, 1e-9)
	require.InDelta(t, 1.0, result.TempoSimilarity, 1e-9)
	require.InDelta(t, 1.0, result.StructuralSimilarity, 1e-9)
	require.InDelta(t, 1.0, result.FeatureSimilarity, 1e-9)
	require.InDelta(t, 1.0, result.OverallSimilarity, 1e-9)
	require.Equal(t, []string{"Serum", "Massive"}, result.SharedPlugins)
}

// TestJaccardComponents covers the set-similarity edge cases through
// the public comparison: both empty counts as identical, disjoint sets
// score zero, partial overlap is intersection over union.
func TestJaccardComponents(t *testing.T) {
	analyzer := NewAnalyzer(DefaultWeights())

	r := analyzer.ComputeSimilarity(
		&ProjectProfile{ID: 1},
		&ProjectProfile{ID: 2},
	)
	require.InDelta(t, 1.0, r.PluginSimilarity, 1e-9)

	r = analyzer.ComputeSimilarity(
		&ProjectProfile{ID: 3, Plugins: []string{"Serum"}},
		&ProjectProfile{ID: 4, Plugins: []string{"Massive"}},
	)
	require.Zero(t, r.PluginSimilarity)
	require.Empty(t, r.SharedPlugins)

	// {Serum, Massive} vs {Serum, Sylenth}: 1 shared of 3 total
	r = analyzer.ComputeSimilarity(
		&ProjectProfile{ID: 5, Plugins: []string{"Serum", "Massive"}},
		&ProjectProfile{ID: 6, Plugins: []string{"Serum", "Sylenth"}},
	)
	require.InDelta(t, 1.0/3.0, r.PluginSimilarity, 1e-9)
	require.Equal(t, []string{"Serum"}, r.SharedPlugins)
}

// TestTempoProximityDecay pins the piecewise curve: full inside 5 BPM,
// zero past 50 BPM, linear in between, neutral when unknown.
func TestTempoProximityDecay(t *testing.T) {
	analyzer := NewAnalyzer(DefaultWeights())

	r := analyzer.ComputeSimilarity(profile(1, 120), profile(2, 123))
	require.InDelta(t, 1.0, r.TempoSimilarity, 1e-9)

	r = analyzer.ComputeSimilarity(profile(3, 120), profile(4, 180))
	require.Zero(t, r.TempoSimilarity)

	// diff 27.5: halfway along the 5..50 decay
	r = analyzer.ComputeSimilarity(profile(5, 120), profile(6, 147.5))
	require.InDelta(t, 0.5, r.TempoSimilarity, 1e-9)

	r = analyzer.ComputeSimilarity(
		&ProjectProfile{ID: 7},
		&ProjectProfile{ID: 8, Tempo: ptr(128.0)},
	)
	require.InDelta(t, 0.5, r.TempoSimilarity, 1e-9)
}

// TestFeatureSimilarityCosine: identical vectors score 1, orthogonal
// vectors land on the rescaled midpoint 0.5, and a missing vector is
// neutral.
func TestFeatureSimilarityCosine(t *testing.T) {
	require.InDelta(t, 1.0, featureSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	require.InDelta(t, 0.5, featureSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, 0.0, featureSimilarity([]float32{1, 2}, []float32{-1, -2}), 1e-9)
	require.InDelta(t, 0.5, featureSimilarity(nil, []float32{1, 2}), 1e-9)
	require.Zero(t, featureSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestStructuralSimilarityNeutralWithoutData(t *testing.T) {
	r := NewAnalyzer(DefaultWeights()).ComputeSimilarity(
		&ProjectProfile{ID: 1, Plugins: []string{"x"}},
		&ProjectProfile{ID: 2, Plugins: []string{"x"}},
	)
	require.InDelta(t, 0.5, r.StructuralSimilarity, 1e-9)
}

// TestComputeSimilarityCachesPairs: the unordered ID pair hits the same
// cache entry regardless of argument order.
func TestComputeSimilarityCachesPairs(t *testing.T) {
	analyzer := NewAnalyzer(DefaultWeights())
	a := profile(1, 120, "Serum")
	b := profile(2, 125, "Serum")

	first := analyzer.ComputeSimilarity(a, b)
	second := analyzer.ComputeSimilarity(b, a)
	require.Same(t, first, second)

	analyzer.ClearCache()
	third := analyzer.ComputeSimilarity(a, b)
	require.NotSame(t, first, third)
}

// TestComputeSimilarityBypassesCacheWithoutIDs: profiles with the zero
// ID are not cached, so successive ID-less pairs score independently
// instead of replaying the first pair's result.
func TestComputeSimilarityBypassesCacheWithoutIDs(t *testing.T) {
	analyzer := NewAnalyzer(Weights{Tempo: 1.0})

	near := analyzer.ComputeSimilarity(
		&ProjectProfile{Tempo: ptr(120.0)},
		&ProjectProfile{Tempo: ptr(120.0)},
	)
	require.InDelta(t, 1.0, near.OverallSimilarity, 1e-9)

	far := analyzer.ComputeSimilarity(
		&ProjectProfile{Tempo: ptr(60.0)},
		&ProjectProfile{Tempo: ptr(200.0)},
	)
	require.Zero(t, far.OverallSimilarity)

	// A single zero ID is enough to skip the cache
	mixed := analyzer.ComputeSimilarity(
		&ProjectProfile{ID: 7, Tempo: ptr(120.0)},
		&ProjectProfile{Tempo: ptr(121.0)},
	)
	again := analyzer.ComputeSimilarity(
		&ProjectProfile{ID: 7, Tempo: ptr(120.0)},
		&ProjectProfile{Tempo: ptr(121.0)},
	)
	require.NotSame(t, mixed, again)
}

func TestUpdateWeightsInvalidatesCache(t *testing.T) {
	analyzer := NewAnalyzer(DefaultWeights())
	a := profile(1, 120, "Serum")
	b := profile(2, 120, "Serum")

	first := analyzer.ComputeSimilarity(a, b)
	analyzer.UpdateWeights(Weights{Tempo: 1.0})
	second := analyzer.ComputeSimilarity(a, b)

	require.NotSame(t, first, second)
	require.InDelta(t, 1.0, second.OverallSimilarity, 1e-9) // tempo-only blend, equal tempos
}

// TestFindSimilarProjects exercises ranking, the minimum score cutoff,
// the top-N cap and self-exclusion.
func TestFindSimilarProjects(t *testing.T) {
	analyzer := NewAnalyzer(Weights{Tempo: 1.0})
	ref := profile(1, 120)

	candidates := []*ProjectProfile{
		profile(1, 120), // self, skipped
		profile(2, 121), // diff 1 -> 1.0
		profile(3, 135), // diff 15 -> ~0.78
		profile(4, 180), // diff 60 -> 0, below cutoff
	}

	found, err := analyzer.FindSimilarProjects(context.Background(), ref, candidates, 10, 0.3)
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, int64(2), found[0].ProjectID)
	require.Equal(t, int64(3), found[1].ProjectID)
	require.Greater(t, found[0].Score, found[1].Score)

	found, err = analyzer.FindSimilarProjects(context.Background(), ref, candidates, 1, 0.3)
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestFindSimilarProjectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyzer := NewAnalyzer(DefaultWeights())
	_, err := analyzer.FindSimilarProjects(ctx, profile(1, 120), []*ProjectProfile{profile(2, 121)}, 10, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSimilarityMatrixSymmetric(t *testing.T) {
	analyzer := NewAnalyzer(DefaultWeights())
	projects := []*ProjectProfile{
		profile(1, 120, "Serum"),
		profile(2, 125, "Serum"),
		profile(3, 170, "Massive"),
	}

	m := analyzer.SimilarityMatrix(projects)
	n, _ := m.Dims()
	require.Equal(t, 3, n)

	for i := 0; i < 3; i++ {
		require.InDelta(t, 1.0, m.At(i, i), 1e-9)
		for j := 0; j < 3; j++ {
			require.InDelta(t, m.At(i, j), m.At(j, i), 1e-12)
		}
	}
}

func TestExplain(t *testing.T) {
	text := Explain(&SimilarityResult{
		OverallSimilarity: 0.85,
		PluginSimilarity:  0.6,
		SharedPlugins:     []string{"Serum", "Massive"},
		TempoSimilarity:   0.9,
	})

	require.Contains(t, text, "very similar")
	require.Contains(t, text, "Serum")
	require.Contains(t, text, "similar tempos")
}

func TestWeightsNormalization(t *testing.T) {
	w := Weights{Feature: 2, Plugin: 2, Device: 2, Tempo: 2, Structural: 2}.normalized()
	require.InDelta(t, 0.2, w.Feature, 1e-9)

	// Degenerate zero weights fall back to the defaults
	w = Weights{}.normalized()
	require.InDelta(t, DefaultWeights().Feature, w.Feature, 1e-9)
}
