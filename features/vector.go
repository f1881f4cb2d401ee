// Package features turns parsed project and clip metadata into
// fixed-length numeric vectors for similarity and clustering.
//
// The combined vector layout is invariant: every sub-source contributes
// a fixed-width segment whether or not its data was available, with
// missing segments zero-filled. Consumers batch vectors from
// heterogeneous projects into one matrix, so the length and the
// index-aligned name list never change for a given configuration.
package features

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/setforge/liveset/als"
	"github.com/setforge/liveset/asd"
	"github.com/setforge/liveset/logging"
)

// Segment widths. These are part of the vector contract and never vary
// at runtime.
const (
	structuralWidth = 10
	extendedWidth   = 15
	alsWidth        = structuralWidth + extendedWidth
	asdWidth        = 9
	audioWidth      = audioScalarCount + mfccCount
)

// ExtractorConfig holds configuration for feature extraction
type ExtractorConfig struct {
	// UseExtendedALS enables the deep project walk feeding the extended
	// segment. Off means that segment is zero-filled.
	UseExtendedALS bool

	// Analyzer is the audio-content capability. Nil leaves the audio
	// segment zero-filled; the vector length does not change.
	Analyzer AudioAnalyzer

	// MaxSidecarFiles caps how many sidecar files are aggregated per
	// project
	MaxSidecarFiles int

	// MaxAudioFiles caps how many audio files are analyzed per project
	MaxAudioFiles int
}

// DefaultExtractorConfig returns the default extraction configuration:
// extended metadata on, no audio capability
func DefaultExtractorConfig() *ExtractorConfig {
	return &ExtractorConfig{
		UseExtendedALS:  true,
		Analyzer:        nil,
		MaxSidecarFiles: 50,
		MaxAudioFiles:   10,
	}
}

// ProjectFeatureVector is the complete numeric description of one
// project: the three raw sub-vectors plus the combined, sanitized,
// fixed-length vector with its index-aligned name list.
type ProjectFeatureVector struct {
	ProjectID   *int64 `json:"project_id,omitempty"`
	ProjectPath string `json:"project_path"`

	ALSFeatures   []float64 `json:"als_features"`
	ASDFeatures   []float64 `json:"asd_features"`
	AudioFeatures []float64 `json:"audio_features"`

	Combined     []float32 `json:"combined"`
	FeatureNames []string  `json:"feature_names"`

	ExtractedAt time.Time `json:"extracted_at"`
}

type cacheEntry struct {
	modTime time.Time
	vector  *ProjectFeatureVector
}

// Extractor builds ProjectFeatureVectors from project files, sidecar
// files and optional audio content. Results are memoized by
// (path, mtime); the cache is safe for concurrent use.
type Extractor struct {
	config    *ExtractorConfig
	alsParser *als.Parser
	asdParser *asd.Parser
	logger    logging.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewExtractor creates a feature extractor with the given configuration
func NewExtractor(config *ExtractorConfig) *Extractor {
	if config == nil {
		config = DefaultExtractorConfig()
	}

	return &Extractor{
		config: config,
		alsParser: als.NewParser(&als.ParserConfig{
			ExtractExtended: config.UseExtendedALS,
		}),
		asdParser: asd.NewParser(),
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
		cache: make(map[string]cacheEntry),
	}
}

// StructuralVector flattens project metadata into the fixed-width ALS
// segment: 10 headline values followed by 15 extended values,
// zero-filled when extended metadata is absent.
func StructuralVector(metadata *als.ProjectMetadata) []float64 {
	v := make([]float64, 0, alsWidth)

	tempo := 120.0
	if metadata.Tempo != nil {
		tempo = *metadata.Tempo
	}
	arrangementLength := 0.0
	if metadata.ArrangementLength != nil {
		arrangementLength = *metadata.ArrangementLength
	}
	automation := 0.0
	if metadata.HasAutomation {
		automation = 1.0
	}

	v = append(v,
		tempo,
		float64(metadata.TrackCount),
		float64(metadata.AudioTracks),
		float64(metadata.MidiTracks),
		float64(metadata.ReturnTracks),
		arrangementLength,
		float64(len(metadata.Plugins)),
		float64(len(metadata.Devices)),
		float64(len(metadata.SampleReferences)),
		automation,
	)

	if ext := metadata.Extended; ext != nil {
		hasSends := 0.0
		if ext.HasSends {
			hasSends = 1.0
		}
		hasSidechain := 0.0
		if ext.HasSidechain {
			hasSidechain = 1.0
		}
		v = append(v,
			float64(ext.TotalDeviceCount),
			float64(ext.UniqueDeviceTypes),
			ext.AvgDevicesPerTrack,
			float64(ext.AudioClipCount),
			float64(ext.MidiClipCount),
			float64(ext.TotalClipCount),
			ext.AvgClipDuration,
			hasSends,
			float64(ext.SendCount),
			hasSidechain,
			float64(ext.AutomationLaneCount),
			float64(ext.AutomationPointCount),
			float64(ext.GroovePoolSize),
			float64(ext.SceneCount),
			float64(ext.PluginParameterCount),
		)
	} else {
		v = append(v, make([]float64, extendedWidth)...)
	}

	return v
}

// StructuralFeatureNames returns the names for StructuralVector entries,
// in order
func StructuralFeatureNames() []string {
	return []string{
		"tempo",
		"track_count",
		"audio_tracks",
		"midi_tracks",
		"return_tracks",
		"arrangement_length",
		"plugin_count",
		"device_count",
		"sample_count",
		"has_automation",
		"total_device_count",
		"unique_device_types",
		"avg_devices_per_track",
		"audio_clip_count",
		"midi_clip_count",
		"total_clip_count",
		"avg_clip_duration",
		"has_sends",
		"send_count",
		"has_sidechain",
		"automation_lane_count",
		"automation_point_count",
		"groove_pool_size",
		"scene_count",
		"plugin_parameter_count",
	}
}

// CombinedFeatureNames returns the full name list for the combined
// vector, index-aligned and invariant across calls
func CombinedFeatureNames() []string {
	names := make([]string, 0, alsWidth+asdWidth+audioWidth)
	for _, n := range StructuralFeatureNames() {
		names = append(names, "als_"+n)
	}
	for _, n := range asd.FeatureNames() {
		names = append(names, "asd_"+n)
	}
	names = append(names, audioFeatureNames()...)
	return names
}

// VectorLength is the invariant combined vector length
func VectorLength() int {
	return alsWidth + asdWidth + audioWidth
}

// ExtractProjectFeatures builds the full feature vector for one project.
// sidecarPaths names the candidate clip-analysis files for the sidecar
// segment; nil means discover them under the project file's directory.
// audioPaths are optional audio files for the content segment and are
// ignored when no analyzer capability is configured.
//
// A project file that cannot be decoded leaves the ALS segment
// zero-filled rather than failing the extraction; only a missing file is
// an error.
func (e *Extractor) ExtractProjectFeatures(alsPath string, projectID *int64, sidecarPaths, audioPaths []string) (*ProjectFeatureVector, error) {
	info, err := os.Stat(alsPath)
	if err != nil {
		return nil, fmt.Errorf("stat project %s: %w", alsPath, err)
	}

	e.mu.RLock()
	entry, ok := e.cache[alsPath]
	e.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.vector, nil
	}

	result := &ProjectFeatureVector{
		ProjectID:   projectID,
		ProjectPath: alsPath,
		ExtractedAt: time.Now(),
	}

	metadata, err := e.alsParser.Parse(alsPath)
	if err != nil {
		e.logger.Warn("Project decode failed, structural segment zero-filled", logging.Fields{
			"path":  alsPath,
			"error": err.Error(),
		})
	} else {
		result.ALSFeatures = StructuralVector(metadata)
	}

	sidecars := sidecarPaths
	if sidecars == nil {
		sidecars = asd.FindSidecarFiles(filepath.Dir(alsPath))
	}
	if len(sidecars) > 0 {
		result.ASDFeatures = e.aggregateSidecarFeatures(sidecars)
	}

	if e.config.Analyzer != nil && len(audioPaths) > 0 {
		result.AudioFeatures = e.aggregateAudioFeatures(audioPaths)
	}

	result.Combined = e.combine(result)
	result.FeatureNames = CombinedFeatureNames()

	e.mu.Lock()
	e.cache[alsPath] = cacheEntry{modTime: info.ModTime(), vector: result}
	e.mu.Unlock()

	return result, nil
}

// aggregateSidecarFeatures parses up to MaxSidecarFiles sidecars and
// mean-aggregates their per-clip vectors into one project-level segment
func (e *Extractor) aggregateSidecarFeatures(paths []string) []float64 {
	limit := e.config.MaxSidecarFiles
	if limit <= 0 {
		limit = 50
	}
	if len(paths) > limit {
		paths = paths[:limit]
	}

	var clipVectors [][]float64
	for _, path := range paths {
		analysis, err := e.asdParser.Parse(path)
		if err != nil {
			continue
		}
		clipVectors = append(clipVectors, analysis.FeatureVector())
	}

	if len(clipVectors) == 0 {
		return nil
	}
	return columnMeans(clipVectors, asdWidth)
}

// aggregateAudioFeatures analyzes up to MaxAudioFiles audio files and
// mean-aggregates the resulting content vectors
func (e *Extractor) aggregateAudioFeatures(paths []string) []float64 {
	limit := e.config.MaxAudioFiles
	if limit <= 0 {
		limit = 10
	}
	if len(paths) > limit {
		paths = paths[:limit]
	}

	var vectors [][]float64
	for _, path := range paths {
		features, err := e.config.Analyzer.Analyze(path)
		if err != nil {
			e.logger.Warn("Audio analysis failed", logging.Fields{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		if features != nil {
			vectors = append(vectors, features.Vector())
		}
	}

	if len(vectors) == 0 {
		return nil
	}
	return columnMeans(vectors, audioWidth)
}

// columnMeans computes the per-column mean of a row-major matrix,
// padding or truncating rows to width
func columnMeans(rows [][]float64, width int) []float64 {
	means := make([]float64, width)
	column := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if j < len(row) {
				column[i] = row[j]
			} else {
				column[i] = 0
			}
		}
		means[j] = stat.Mean(column, nil)
	}
	return means
}

// combine concatenates the sub-vectors into the fixed layout,
// zero-filling missing segments, then sanitizes the result
func (e *Extractor) combine(pf *ProjectFeatureVector) []float32 {
	all := make([]float64, 0, VectorLength())

	all = appendSegment(all, pf.ALSFeatures, alsWidth)
	all = appendSegment(all, pf.ASDFeatures, asdWidth)
	all = appendSegment(all, pf.AudioFeatures, audioWidth)

	sanitized, changed := sanitize(all)
	if changed {
		e.logger.Warn("Sanitized feature vector: NaN/Inf/overflow values replaced", logging.Fields{
			"path": pf.ProjectPath,
		})
	}
	return sanitized
}

func appendSegment(dst, segment []float64, width int) []float64 {
	for i := 0; i < width; i++ {
		if i < len(segment) {
			dst = append(dst, segment[i])
		} else {
			dst = append(dst, 0)
		}
	}
	return dst
}

// sanitize replaces NaN and infinities with 0 and clamps every value to
// the representable float32 range before narrowing. One corrupt record
// must not poison downstream distance calculations.
func sanitize(values []float64) ([]float32, bool) {
	out := make([]float32, len(values))
	changed := false
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
			changed = true
		}
		if v > math.MaxFloat32 {
			v = math.MaxFloat32
			changed = true
		} else if v < -math.MaxFloat32 {
			v = -math.MaxFloat32
			changed = true
		}
		out[i] = float32(v)
	}
	return out, changed
}

// ClearCache clears the extractor's memo along with both parser caches
func (e *Extractor) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]cacheEntry)
	e.mu.Unlock()
	e.alsParser.ClearCache()
	e.asdParser.ClearCache()
}
