package similarity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// clusterFixture builds two well-separated groups of projects: three
// slow, sparse projects near the origin and three fast, dense projects
// far from it.
func clusterFixture() []*ProjectProfile {
	groupA := [][]float32{
		{0.1, 0.2, 0.1},
		{0.2, 0.1, 0.2},
		{0.15, 0.15, 0.1},
	}
	groupB := [][]float32{
		{10.1, 9.8, 10.2},
		{9.9, 10.2, 9.8},
		{10.0, 10.0, 10.1},
	}

	var profiles []*ProjectProfile
	for i, v := range groupA {
		profiles = append(profiles, &ProjectProfile{
			ID:            int64(i + 1),
			Tempo:         ptr(72.0),
			TrackCount:    6,
			Plugins:       []string{"Sylenth", "Valhalla"},
			FeatureVector: v,
		})
	}
	for i, v := range groupB {
		profiles = append(profiles, &ProjectProfile{
			ID:            int64(i + 4),
			Tempo:         ptr(174.0),
			TrackCount:    24,
			Plugins:       []string{"Serum"},
			FeatureVector: v,
		})
	}
	return profiles
}

// TestClusterProjectsSeparatesGroups clusters the two-group fixture
// with k=2 and checks the partition, summaries and labels.
func TestClusterProjectsSeparatesGroups(t *testing.T) {
	config := DefaultClustererConfig()
	config.NumClusters = 2

	result, err := NewClusterer(config).ClusterProjects(clusterFixture())
	require.NoError(t, err)
	require.Equal(t, 2, result.NumClusters)
	require.Len(t, result.Clusters, 2)
	require.True(t, result.Converged)
	require.Greater(t, result.SilhouetteScore, 0.5)

	slow := result.ClusterForProject(1)
	require.NotNil(t, slow)
	require.ElementsMatch(t, []int64{1, 2, 3}, slow.ProjectIDs)
	require.Equal(t, 3, slow.ProjectCount)
	require.InDelta(t, 72.0, slow.AvgTempo, 1e-9)
	require.InDelta(t, 6.0, slow.AvgTrackCount, 1e-9)
	require.InDelta(t, 2.0, slow.AvgPluginCount, 1e-9)
	require.Equal(t, []string{"Sylenth", "Valhalla"}, slow.CommonPlugins)
	require.Equal(t, "slow minimal (Sylenth)", slow.SuggestedLabel)
	require.Greater(t, slow.Cohesion, 0.0)
	require.LessOrEqual(t, slow.Cohesion, 1.0)

	fast := result.ClusterForProject(4)
	require.NotNil(t, fast)
	require.ElementsMatch(t, []int64{4, 5, 6}, fast.ProjectIDs)
	require.Equal(t, "fast complex (Serum)", fast.SuggestedLabel)

	// Members of the same source group share a cluster
	require.Equal(t, slow.ClusterID, result.ClusterForProject(2).ClusterID)
	require.Equal(t, fast.ClusterID, result.ClusterForProject(6).ClusterID)
	require.NotEqual(t, slow.ClusterID, fast.ClusterID)
}

func TestClusterProjectsSkipsMissingVectors(t *testing.T) {
	profiles := clusterFixture()
	profiles = append(profiles, &ProjectProfile{ID: 99}) // no vector

	config := DefaultClustererConfig()
	config.NumClusters = 2

	result, err := NewClusterer(config).ClusterProjects(profiles)
	require.NoError(t, err)
	require.Nil(t, result.ClusterForProject(99))
}

func TestClusterProjectsRequiresTwoVectors(t *testing.T) {
	profiles := []*ProjectProfile{
		{ID: 1, FeatureVector: []float32{1, 2}},
		{ID: 2}, // skipped, leaves only one usable project
	}

	_, err := NewClusterer(nil).ClusterProjects(profiles)
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least 2")
}

// TestClusterProjectsShrinksK: asking for more clusters than projects
// shrinks k to half the project count.
func TestClusterProjectsShrinksK(t *testing.T) {
	profiles := clusterFixture() // 6 projects

	config := DefaultClustererConfig()
	config.NumClusters = 10

	result, err := NewClusterer(config).ClusterProjects(profiles)
	require.NoError(t, err)
	require.Equal(t, 3, result.NumClusters)
}

func TestFindOptimalK(t *testing.T) {
	bestK, scores, err := NewClusterer(nil).FindOptimalK(clusterFixture(), 2, 4)
	require.NoError(t, err)
	require.Equal(t, 2, bestK)
	require.Contains(t, scores, 2)
	require.Greater(t, scores[2], 0.5)
}

// TestFindOptimalKClampsMinK: a non-positive minimum is raised to 1
// instead of seeding a zero-cluster run.
func TestFindOptimalKClampsMinK(t *testing.T) {
	bestK, scores, err := NewClusterer(nil).FindOptimalK(clusterFixture(), 0, 3)
	require.NoError(t, err)
	require.Equal(t, 2, bestK)
	require.NotContains(t, scores, 0)
	// k=1 yields a single label and is skipped from scoring
	require.NotContains(t, scores, 1)
}

func TestDistinctLabels(t *testing.T) {
	require.Equal(t, 2, distinctLabels([]int{0, 1, 0, 1}))
	require.Equal(t, 1, distinctLabels([]int{3, 3, 3}))
	require.Zero(t, distinctLabels(nil))
}

func TestFindOptimalKTooFewProjects(t *testing.T) {
	profiles := []*ProjectProfile{{ID: 1, FeatureVector: []float32{1}}}
	_, _, err := NewClusterer(nil).FindOptimalK(profiles, 2, 5)
	require.Error(t, err)
}

// TestCommonElementsThreshold: an element must appear in at least half
// of the members, and at most five are reported, most frequent first.
func TestCommonElementsThreshold(t *testing.T) {
	members := []*ProjectProfile{
		{Plugins: []string{"Serum", "Massive", "Rare"}},
		{Plugins: []string{"Serum", "Massive"}},
		{Plugins: []string{"Serum"}},
		{Plugins: []string{"Serum"}},
	}

	common := commonElements(members, func(p *ProjectProfile) []string { return p.Plugins })
	// "Rare" appears once out of four, below the half threshold
	require.Equal(t, []string{"Serum", "Massive"}, common)

	require.Nil(t, commonElements(nil, func(p *ProjectProfile) []string { return p.Plugins }))
}

func TestClusterLabelTempoBands(t *testing.T) {
	cases := []struct {
		tempo float64
		want  string
	}{
		{70, "slow minimal"},
		{100, "mid-tempo minimal"},
		{125, "standard minimal"},
		{140, "high-energy minimal"},
		{170, "fast minimal"},
	}
	for _, tc := range cases {
		info := &ClusterInfo{AvgTempo: tc.tempo, AvgTrackCount: 4}
		require.Equal(t, tc.want, clusterLabel(info))
	}

	// Unknown tempo drops the tempo band entirely
	require.Equal(t, "minimal", clusterLabel(&ClusterInfo{AvgTrackCount: 2}))
}

func TestStandardizeConstantColumn(t *testing.T) {
	data := [][]float64{
		{1, 5, 0},
		{3, 5, 10},
	}
	scaled := standardize(data)
	require.Len(t, scaled, 2)

	// The constant middle column stays at zero
	require.Zero(t, scaled[0][1])
	require.Zero(t, scaled[1][1])

	// Varying columns are centered
	require.InDelta(t, 0, scaled[0][0]+scaled[1][0], 1e-9)
	require.Less(t, scaled[0][2], scaled[1][2])
}

func TestSilhouetteScorePerfectSplit(t *testing.T) {
	data := [][]float64{
		{0, 0}, {0.1, 0}, {10, 10}, {10.1, 10},
	}
	labels := []int{0, 0, 1, 1}
	require.Greater(t, silhouetteScore(data, labels, 2), 0.9)
}
