// Package similarity compares and groups projects by their extracted
// metadata and feature vectors.
//
// Comparison blends several signals: cosine similarity over the
// fixed-length feature vectors, Jaccard similarity over plugin and
// device name sets, tempo proximity, and structural similarity over
// track layout. The weighted blend is configurable; component scores
// are always reported alongside the overall score so callers can
// explain a match.
package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/setforge/liveset/logging"
)

// Tempo proximity bounds, in BPM. Differences at or under the
// threshold score 1.0; at or over the max they score 0.
const (
	tempoThreshold = 5.0
	tempoMaxDiff   = 50.0
)

// ProjectProfile is the comparable view of one project: identity,
// headline metadata and the stored feature vector
type ProjectProfile struct {
	ID   int64  `json:"id"`
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`

	Tempo             *float64 `json:"tempo,omitempty"`
	TrackCount        int      `json:"track_count"`
	AudioTracks       int      `json:"audio_tracks"`
	MidiTracks        int      `json:"midi_tracks"`
	ArrangementLength *float64 `json:"arrangement_length,omitempty"`

	Plugins []string `json:"plugins,omitempty"`
	Devices []string `json:"devices,omitempty"`

	FeatureVector []float32 `json:"feature_vector,omitempty"`
}

// SimilarityResult holds the overall score and every component score
// for one project pair
type SimilarityResult struct {
	ProjectAID int64 `json:"project_a_id"`
	ProjectBID int64 `json:"project_b_id"`

	// OverallSimilarity is the weighted blend, in [0, 1]
	OverallSimilarity float64 `json:"overall_similarity"`

	StructuralSimilarity float64 `json:"structural_similarity"`
	PluginSimilarity     float64 `json:"plugin_similarity"`
	DeviceSimilarity     float64 `json:"device_similarity"`
	TempoSimilarity      float64 `json:"tempo_similarity"`
	FeatureSimilarity    float64 `json:"feature_similarity"`

	SharedPlugins []string `json:"shared_plugins,omitempty"`
	SharedDevices []string `json:"shared_devices,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// SimilarProject pairs a candidate with its score against a reference
// project
type SimilarProject struct {
	ProjectID   int64             `json:"project_id"`
	ProjectPath string            `json:"project_path,omitempty"`
	ProjectName string            `json:"project_name,omitempty"`
	Score       float64           `json:"score"`
	Result      *SimilarityResult `json:"result,omitempty"`
}

// Weights blends the component similarities into the overall score.
// They are normalized to sum to 1 when the analyzer is built.
type Weights struct {
	Feature    float64 `json:"feature"`
	Plugin     float64 `json:"plugin"`
	Device     float64 `json:"device"`
	Tempo      float64 `json:"tempo"`
	Structural float64 `json:"structural"`
}

// DefaultWeights returns the default component blend
func DefaultWeights() Weights {
	return Weights{
		Feature:    0.35,
		Plugin:     0.20,
		Device:     0.15,
		Tempo:      0.15,
		Structural: 0.15,
	}
}

func (w Weights) normalized() Weights {
	total := w.Feature + w.Plugin + w.Device + w.Tempo + w.Structural
	if total <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Feature:    w.Feature / total,
		Plugin:     w.Plugin / total,
		Device:     w.Device / total,
		Tempo:      w.Tempo / total,
		Structural: w.Structural / total,
	}
}

type pairKey struct {
	a, b int64
}

func makePairKey(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Analyzer computes pairwise project similarity. Results are cached by
// unordered ID pair; the cache is safe for concurrent use.
type Analyzer struct {
	logger logging.Logger

	mu      sync.RWMutex
	weights Weights
	cache   map[pairKey]*SimilarityResult
}

// NewAnalyzer creates a similarity analyzer with the given weights.
// Zero-value weights fall back to DefaultWeights.
func NewAnalyzer(weights Weights) *Analyzer {
	return &Analyzer{
		weights: weights.normalized(),
		cache:   make(map[pairKey]*SimilarityResult),
		logger: logging.WithFields(logging.Fields{
			"component": "similarity_analyzer",
		}),
	}
}

// ComputeSimilarity scores one project pair. Cached results are reused
// when both IDs are set.
func (a *Analyzer) ComputeSimilarity(pa, pb *ProjectProfile) *SimilarityResult {
	// Unpersisted profiles carry the zero ID; caching them would
	// collide every such pair on one key.
	cacheable := pa.ID != 0 && pb.ID != 0
	key := makePairKey(pa.ID, pb.ID)

	a.mu.RLock()
	cached, ok := a.cache[key]
	weights := a.weights
	a.mu.RUnlock()
	if cacheable && ok {
		return cached
	}

	result := &SimilarityResult{
		ProjectAID: pa.ID,
		ProjectBID: pb.ID,
		ComputedAt: time.Now().UTC(),
	}

	result.PluginSimilarity = jaccardSimilarity(pa.Plugins, pb.Plugins)
	result.DeviceSimilarity = jaccardSimilarity(pa.Devices, pb.Devices)
	result.TempoSimilarity = tempoSimilarity(pa.Tempo, pb.Tempo)
	result.StructuralSimilarity = structuralSimilarity(pa, pb)
	result.FeatureSimilarity = featureSimilarity(pa.FeatureVector, pb.FeatureVector)

	result.SharedPlugins = sharedStrings(pa.Plugins, pb.Plugins)
	result.SharedDevices = sharedStrings(pa.Devices, pb.Devices)

	result.OverallSimilarity = weights.Feature*result.FeatureSimilarity +
		weights.Plugin*result.PluginSimilarity +
		weights.Device*result.DeviceSimilarity +
		weights.Tempo*result.TempoSimilarity +
		weights.Structural*result.StructuralSimilarity

	if cacheable {
		a.mu.Lock()
		a.cache[key] = result
		a.mu.Unlock()
	}

	return result
}

// jaccardSimilarity is |A ∩ B| / |A ∪ B| over name sets. Two empty
// sets count as identical.
func jaccardSimilarity(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for name := range setA {
		if _, ok := setB[name]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// tempoSimilarity decays linearly from 1.0 inside the threshold to 0
// at the max difference. Unknown tempos score a neutral 0.5.
func tempoSimilarity(a, b *float64) float64 {
	if a == nil || b == nil {
		return 0.5
	}

	diff := math.Abs(*a - *b)
	switch {
	case diff <= tempoThreshold:
		return 1.0
	case diff >= tempoMaxDiff:
		return 0.0
	default:
		return 1.0 - (diff-tempoThreshold)/(tempoMaxDiff-tempoThreshold)
	}
}

// structuralSimilarity averages whichever layout comparisons have data
// on both sides: track count, audio/MIDI ratio and arrangement length.
// With no data at all it scores a neutral 0.5.
func structuralSimilarity(a, b *ProjectProfile) float64 {
	var scores []float64

	if a.TrackCount > 0 || b.TrackCount > 0 {
		maxTracks := math.Max(float64(a.TrackCount), float64(b.TrackCount))
		scores = append(scores, 1.0-math.Abs(float64(a.TrackCount-b.TrackCount))/maxTracks)
	}

	totalA := a.AudioTracks + a.MidiTracks
	totalB := b.AudioTracks + b.MidiTracks
	if totalA > 0 && totalB > 0 {
		ratioA := float64(a.AudioTracks) / float64(totalA)
		ratioB := float64(b.AudioTracks) / float64(totalB)
		scores = append(scores, 1.0-math.Abs(ratioA-ratioB))
	}

	if a.ArrangementLength != nil && b.ArrangementLength != nil &&
		*a.ArrangementLength > 0 && *b.ArrangementLength > 0 {
		maxLength := math.Max(*a.ArrangementLength, *b.ArrangementLength)
		scores = append(scores, 1.0-math.Abs(*a.ArrangementLength-*b.ArrangementLength)/maxLength)
	}

	if len(scores) == 0 {
		return 0.5
	}
	return stat.Mean(scores, nil)
}

// featureSimilarity is cosine similarity over the stored vectors,
// rescaled from [-1, 1] to [0, 1]. A project without a stored vector
// scores a neutral 0.5; a zero-norm vector scores 0.
func featureSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.5
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	va := make([]float64, n)
	vb := make([]float64, n)
	for i := 0; i < n; i++ {
		va[i] = float64(a[i])
		vb[i] = float64(b[i])
	}

	normA := floats.Norm(va, 2)
	normB := floats.Norm(vb, 2)
	if normA == 0 || normB == 0 {
		return 0.0
	}

	cosine := floats.Dot(va, vb) / (normA * normB)
	return (cosine + 1.0) / 2.0
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// sharedStrings returns the intersection of two name lists, preserving
// the first list's order
func sharedStrings(a, b []string) []string {
	setB := toSet(b)
	seen := make(map[string]struct{})
	var shared []string
	for _, name := range a {
		if _, ok := setB[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		shared = append(shared, name)
	}
	return shared
}

// FindSimilarProjects scores every candidate against the reference and
// returns up to topN matches at or above minSimilarity, best first.
// The reference itself is skipped by ID. Cancellation is checked
// between candidates.
func (a *Analyzer) FindSimilarProjects(ctx context.Context, reference *ProjectProfile, candidates []*ProjectProfile, topN int, minSimilarity float64) ([]SimilarProject, error) {
	var similar []SimilarProject

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if candidate.ID == reference.ID {
			continue
		}

		result := a.ComputeSimilarity(reference, candidate)
		if result.OverallSimilarity < minSimilarity {
			continue
		}

		similar = append(similar, SimilarProject{
			ProjectID:   candidate.ID,
			ProjectPath: candidate.Path,
			ProjectName: candidate.Name,
			Score:       result.OverallSimilarity,
			Result:      result,
		})
	}

	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].Score > similar[j].Score
	})
	if topN > 0 && len(similar) > topN {
		similar = similar[:topN]
	}

	a.logger.Debug("Similar project search completed", logging.Fields{
		"reference_id": reference.ID,
		"candidates":   len(candidates),
		"matches":      len(similar),
	})

	return similar, nil
}

// SimilarityMatrix computes the symmetric pairwise similarity matrix
// for a set of projects. The diagonal is 1.
func (a *Analyzer) SimilarityMatrix(projects []*ProjectProfile) *mat.SymDense {
	n := len(projects)
	matrix := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		matrix.SetSym(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			result := a.ComputeSimilarity(projects[i], projects[j])
			matrix.SetSym(i, j, result.OverallSimilarity)
		}
	}

	return matrix
}

// Explain renders a human-readable summary of one similarity result
func Explain(result *SimilarityResult) string {
	var parts []string

	switch {
	case result.OverallSimilarity >= 0.8:
		parts = append(parts, "These projects are very similar.")
	case result.OverallSimilarity >= 0.6:
		parts = append(parts, "These projects share many characteristics.")
	case result.OverallSimilarity >= 0.4:
		parts = append(parts, "These projects have some similarities.")
	default:
		parts = append(parts, "These projects are fairly different.")
	}

	if result.PluginSimilarity >= 0.5 && len(result.SharedPlugins) > 0 {
		shown := result.SharedPlugins
		if len(shown) > 5 {
			shown = shown[:5]
		}
		parts = append(parts, fmt.Sprintf("They share %d plugin(s): %s",
			len(result.SharedPlugins), strings.Join(shown, ", ")))
	}

	if result.DeviceSimilarity >= 0.5 && len(result.SharedDevices) > 0 {
		shown := result.SharedDevices
		if len(shown) > 5 {
			shown = shown[:5]
		}
		parts = append(parts, fmt.Sprintf("They use similar devices: %s",
			strings.Join(shown, ", ")))
	}

	if result.TempoSimilarity >= 0.8 {
		parts = append(parts, "They have very similar tempos.")
	}
	if result.StructuralSimilarity >= 0.7 {
		parts = append(parts, "They have similar project structures.")
	}

	return strings.Join(parts, " ")
}

// UpdateWeights replaces the component blend and clears the cache,
// since cached overall scores depend on the old weights
func (a *Analyzer) UpdateWeights(weights Weights) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weights = weights.normalized()
	a.cache = make(map[pairKey]*SimilarityResult)
}

// ClearCache drops all cached pair results
func (a *Analyzer) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[pairKey]*SimilarityResult)
}
