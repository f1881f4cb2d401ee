package similarity

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/setforge/liveset/logging"
)

// ClusterInfo summarizes one cluster of projects
type ClusterInfo struct {
	ClusterID    int     `json:"cluster_id"`
	ProjectIDs   []int64 `json:"project_ids"`
	ProjectCount int     `json:"project_count"`

	AvgTempo       float64 `json:"avg_tempo"`
	AvgTrackCount  float64 `json:"avg_track_count"`
	AvgPluginCount float64 `json:"avg_plugin_count"`

	CommonPlugins []string `json:"common_plugins,omitempty"`
	CommonDevices []string `json:"common_devices,omitempty"`

	// SuggestedLabel is a short description derived from the cluster's
	// average tempo, size and dominant plugin
	SuggestedLabel string `json:"suggested_label"`

	// Cohesion in (0, 1]: 1 / (1 + mean distance from the centroid)
	Cohesion float64 `json:"cohesion"`
}

// ClusteringResult holds the outcome of one clustering run
type ClusteringResult struct {
	Clusters    []ClusterInfo `json:"clusters"`
	NumClusters int           `json:"num_clusters"`

	SilhouetteScore float64 `json:"silhouette_score"`
	Inertia         float64 `json:"inertia"`
	Converged       bool    `json:"converged"`
	Iterations      int     `json:"iterations"`

	ComputedAt time.Time `json:"computed_at"`
}

// ClusterForProject finds the cluster containing the given project, or
// nil when the project was not clustered
func (r *ClusteringResult) ClusterForProject(projectID int64) *ClusterInfo {
	for i := range r.Clusters {
		for _, id := range r.Clusters[i].ProjectIDs {
			if id == projectID {
				return &r.Clusters[i]
			}
		}
	}
	return nil
}

// ClustererConfig holds clustering parameters
type ClustererConfig struct {
	NumClusters   int     `json:"num_clusters"`
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
	RandomSeed    int64   `json:"random_seed"`
}

// DefaultClustererConfig returns default clustering parameters
func DefaultClustererConfig() *ClustererConfig {
	return &ClustererConfig{
		NumClusters:   5,
		MaxIterations: 100,
		Tolerance:     1e-4,
		RandomSeed:    42,
	}
}

// Clusterer groups projects by their feature vectors using k-means
// with k-means++ seeding. Vectors are standardized per dimension
// before clustering so large-magnitude features do not dominate.
type Clusterer struct {
	config *ClustererConfig
	rng    *rand.Rand
	logger logging.Logger
}

// NewClusterer creates a clusterer with the given configuration
func NewClusterer(config *ClustererConfig) *Clusterer {
	if config == nil {
		config = DefaultClustererConfig()
	}
	return &Clusterer{
		config: config,
		rng:    rand.New(rand.NewSource(config.RandomSeed)),
		logger: logging.WithFields(logging.Fields{
			"component": "project_clusterer",
		}),
	}
}

// ClusterProjects runs k-means over the profiles' feature vectors.
// Profiles without a stored vector are skipped. The requested cluster
// count shrinks when there are too few projects.
func (c *Clusterer) ClusterProjects(profiles []*ProjectProfile) (*ClusteringResult, error) {
	data, kept := prepareFeatureMatrix(profiles)
	if len(data) < 2 {
		return nil, fmt.Errorf("need at least 2 projects with feature vectors, have %d", len(data))
	}

	k := c.config.NumClusters
	if k > len(data) {
		k = max(1, len(data)/2)
	}
	if k < 1 {
		k = 1
	}

	scaled := standardize(data)

	labels, centers, inertia, converged, iterations := c.kmeans(scaled, k)

	result := &ClusteringResult{
		NumClusters: k,
		Inertia:     inertia,
		Converged:   converged,
		Iterations:  iterations,
		ComputedAt:  time.Now().UTC(),
	}
	if k > 1 {
		result.SilhouetteScore = silhouetteScore(scaled, labels, k)
	}

	for clusterID := 0; clusterID < k; clusterID++ {
		var members []*ProjectProfile
		var vectors [][]float64
		for i, label := range labels {
			if label == clusterID {
				members = append(members, kept[i])
				vectors = append(vectors, scaled[i])
			}
		}
		if len(members) == 0 {
			continue
		}
		result.Clusters = append(result.Clusters,
			analyzeCluster(clusterID, members, vectors, centers[clusterID]))
	}

	c.logger.Debug("Clustering completed", logging.Fields{
		"projects":   len(data),
		"clusters":   len(result.Clusters),
		"iterations": iterations,
		"converged":  converged,
		"silhouette": result.SilhouetteScore,
	})

	return result, nil
}

// FindOptimalK evaluates cluster counts in [minK, maxK] by silhouette
// score and returns the best one with the per-k scores
func (c *Clusterer) FindOptimalK(profiles []*ProjectProfile, minK, maxK int) (int, map[int]float64, error) {
	minK = max(minK, 1)

	data, _ := prepareFeatureMatrix(profiles)
	if len(data) < minK {
		return 1, nil, fmt.Errorf("need at least %d projects with feature vectors, have %d", minK, len(data))
	}

	scaled := standardize(data)
	if maxK >= len(data) {
		maxK = len(data) - 1
	}

	scores := make(map[int]float64)
	bestK := minK
	bestScore := math.Inf(-1)

	for k := minK; k <= maxK; k++ {
		labels, _, _, _, _ := c.kmeans(scaled, k)
		if distinctLabels(labels) < 2 {
			continue
		}
		score := silhouetteScore(scaled, labels, k)
		scores[k] = score
		if score > bestScore {
			bestScore = score
			bestK = k
		}
	}

	if len(scores) == 0 {
		return 2, scores, nil
	}
	return bestK, scores, nil
}

// prepareFeatureMatrix collects the float64 vectors of profiles that
// have one, index-aligned with the kept profiles
func prepareFeatureMatrix(profiles []*ProjectProfile) ([][]float64, []*ProjectProfile) {
	var data [][]float64
	var kept []*ProjectProfile
	for _, p := range profiles {
		if len(p.FeatureVector) == 0 {
			continue
		}
		row := make([]float64, len(p.FeatureVector))
		for i, v := range p.FeatureVector {
			row[i] = float64(v)
		}
		data = append(data, row)
		kept = append(kept, p)
	}
	return data, kept
}

// standardize z-scores each column. Constant columns are left at 0.
func standardize(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return nil
	}
	dim := len(data[0])

	column := make([]float64, len(data))
	means := make([]float64, dim)
	stds := make([]float64, dim)
	for j := 0; j < dim; j++ {
		for i := range data {
			column[i] = data[i][j]
		}
		means[j] = stat.Mean(column, nil)
		stds[j] = stat.StdDev(column, nil)
	}

	scaled := make([][]float64, len(data))
	for i, row := range data {
		scaled[i] = make([]float64, dim)
		for j, v := range row {
			if stds[j] > 0 {
				scaled[i][j] = (v - means[j]) / stds[j]
			}
		}
	}
	return scaled
}

// kmeans is Lloyd's algorithm with k-means++ seeding
func (c *Clusterer) kmeans(data [][]float64, k int) (labels []int, centers [][]float64, inertia float64, converged bool, iterations int) {
	n := len(data)
	dim := len(data[0])

	centers = c.seedCenters(data, k)
	labels = make([]int, n)

	for iterations < c.config.MaxIterations && !converged {
		// Assignment step
		moved := 0
		for i, point := range data {
			best := 0
			bestDist := math.Inf(1)
			for j, center := range centers {
				if d := euclideanDistance(point, center); d < bestDist {
					bestDist = d
					best = j
				}
			}
			if labels[i] != best {
				moved++
			}
			labels[i] = best
		}

		// Update step
		newCenters := make([][]float64, k)
		sizes := make([]int, k)
		for i := range newCenters {
			newCenters[i] = make([]float64, dim)
		}
		for i, point := range data {
			sizes[labels[i]]++
			floats.Add(newCenters[labels[i]], point)
		}
		for i := range newCenters {
			if sizes[i] > 0 {
				floats.Scale(1.0/float64(sizes[i]), newCenters[i])
			} else {
				copy(newCenters[i], centers[i])
			}
		}
		centers = newCenters

		converged = float64(moved)/float64(n) < c.config.Tolerance
		iterations++
	}

	for i, point := range data {
		d := euclideanDistance(point, centers[labels[i]])
		inertia += d * d
	}
	return labels, centers, inertia, converged, iterations
}

// seedCenters picks initial centers with k-means++: the first at
// random, each next with probability proportional to its squared
// distance from the nearest chosen center
func (c *Clusterer) seedCenters(data [][]float64, k int) [][]float64 {
	n := len(data)
	centers := make([][]float64, k)

	centers[0] = append([]float64(nil), data[c.rng.Intn(n)]...)

	for i := 1; i < k; i++ {
		distances := make([]float64, n)
		total := 0.0
		for j, point := range data {
			minDist := math.Inf(1)
			for l := 0; l < i; l++ {
				if d := euclideanDistance(point, centers[l]); d < minDist {
					minDist = d
				}
			}
			distances[j] = minDist * minDist
			total += distances[j]
		}

		if total > 0 {
			r := c.rng.Float64() * total
			cum := 0.0
			for j, d := range distances {
				cum += d
				if cum >= r {
					centers[i] = append([]float64(nil), data[j]...)
					break
				}
			}
		}
		if centers[i] == nil {
			centers[i] = append([]float64(nil), data[c.rng.Intn(n)]...)
		}
	}
	return centers
}

func euclideanDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// distinctLabels counts the unique values in a label assignment
func distinctLabels(labels []int) int {
	seen := make(map[int]struct{}, len(labels))
	for _, label := range labels {
		seen[label] = struct{}{}
	}
	return len(seen)
}

// silhouetteScore is the mean silhouette coefficient over all points:
// (b - a) / max(a, b), where a is the mean intra-cluster distance and
// b the mean distance to the nearest other cluster
func silhouetteScore(data [][]float64, labels []int, k int) float64 {
	n := len(data)
	if n < 2 || k < 2 {
		return 0
	}

	total := 0.0
	counted := 0
	for i := range data {
		intraSum := 0.0
		intraCount := 0
		interSums := make([]float64, k)
		interCounts := make([]int, k)

		for j := range data {
			if i == j {
				continue
			}
			d := euclideanDistance(data[i], data[j])
			if labels[j] == labels[i] {
				intraSum += d
				intraCount++
			} else {
				interSums[labels[j]] += d
				interCounts[labels[j]]++
			}
		}

		if intraCount == 0 {
			continue
		}
		a := intraSum / float64(intraCount)

		b := math.Inf(1)
		for cluster := 0; cluster < k; cluster++ {
			if cluster == labels[i] || interCounts[cluster] == 0 {
				continue
			}
			if mean := interSums[cluster] / float64(interCounts[cluster]); mean < b {
				b = mean
			}
		}
		if math.IsInf(b, 1) {
			continue
		}

		total += (b - a) / math.Max(a, b)
		counted++
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// analyzeCluster summarizes a cluster's members: averages, elements
// common to at least half of them, cohesion and a suggested label
func analyzeCluster(clusterID int, members []*ProjectProfile, vectors [][]float64, center []float64) ClusterInfo {
	info := ClusterInfo{
		ClusterID:    clusterID,
		ProjectCount: len(members),
	}

	var tempos, trackCounts, pluginCounts []float64
	for _, p := range members {
		info.ProjectIDs = append(info.ProjectIDs, p.ID)
		if p.Tempo != nil {
			tempos = append(tempos, *p.Tempo)
		}
		trackCounts = append(trackCounts, float64(p.TrackCount))
		pluginCounts = append(pluginCounts, float64(len(p.Plugins)))
	}

	if len(tempos) > 0 {
		info.AvgTempo = stat.Mean(tempos, nil)
	}
	info.AvgTrackCount = stat.Mean(trackCounts, nil)
	info.AvgPluginCount = stat.Mean(pluginCounts, nil)

	info.CommonPlugins = commonElements(members, func(p *ProjectProfile) []string { return p.Plugins })
	info.CommonDevices = commonElements(members, func(p *ProjectProfile) []string { return p.Devices })

	if len(vectors) > 1 {
		distSum := 0.0
		for _, v := range vectors {
			distSum += euclideanDistance(v, center)
		}
		info.Cohesion = 1.0 / (1.0 + distSum/float64(len(vectors)))
	} else {
		info.Cohesion = 1.0
	}

	info.SuggestedLabel = clusterLabel(&info)
	return info
}

// commonElements returns the up-to-5 most frequent names that appear
// in at least half of the cluster's projects
func commonElements(members []*ProjectProfile, get func(*ProjectProfile) []string) []string {
	counts := make(map[string]int)
	var order []string
	for _, p := range members {
		for _, name := range get(p) {
			if counts[name] == 0 {
				order = append(order, name)
			}
			counts[name]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	threshold := float64(len(members)) / 2.0
	var common []string
	for _, name := range order {
		if len(common) >= 5 {
			break
		}
		if float64(counts[name]) >= threshold {
			common = append(common, name)
		}
	}
	return common
}

// clusterLabel derives a short descriptive label from the cluster's
// average tempo, track count and dominant plugin
func clusterLabel(info *ClusterInfo) string {
	var parts []string

	if info.AvgTempo > 0 {
		switch {
		case info.AvgTempo < 80:
			parts = append(parts, "slow")
		case info.AvgTempo < 110:
			parts = append(parts, "mid-tempo")
		case info.AvgTempo < 130:
			parts = append(parts, "standard")
		case info.AvgTempo < 150:
			parts = append(parts, "high-energy")
		default:
			parts = append(parts, "fast")
		}
	}

	switch {
	case info.AvgTrackCount > 20:
		parts = append(parts, "complex")
	case info.AvgTrackCount > 10:
		parts = append(parts, "standard")
	default:
		parts = append(parts, "minimal")
	}

	if len(info.CommonPlugins) > 0 {
		parts = append(parts, fmt.Sprintf("(%s)", info.CommonPlugins[0]))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("Cluster %d", info.ClusterID)
	}

	label := parts[0]
	for _, p := range parts[1:] {
		label += " " + p
	}
	return label
}
