// Package asd parses Ableton .asd clip analysis sidecar files.
//
// An .asd file stores per-audio-clip warp and timing analysis in an
// undocumented binary layout. Parsing is best-effort reverse engineering:
// each field is recovered by an independent probe strategy with its own
// plausibility gate, and any probe that fails simply leaves its field
// empty. Nothing in this package raises for malformed input.
package asd

// WarpMode names for the known warp algorithm indices
var WarpModes = map[int]string{
	0: "beats",
	1: "tones",
	2: "texture",
	3: "repitch",
	4: "complex",
	5: "complex_pro",
}

// WarpMarker is a time-alignment anchor mapping a musical beat position
// to a raw sample position
type WarpMarker struct {
	BeatTime   float64 `json:"beat_time"`
	SampleTime float64 `json:"sample_time"`
}

// StretchRatio is the time-stretch factor implied by this marker
func (m WarpMarker) StretchRatio() float64 {
	if m.SampleTime > 0 {
		return m.BeatTime / m.SampleTime
	}
	return 1.0
}

// LoopInfo holds a clip's loop region
type LoopInfo struct {
	LoopStart float64 `json:"loop_start"`
	LoopEnd   float64 `json:"loop_end"`
	LoopOn    bool    `json:"loop_on"`
}

// LoopLength is the loop region length in beats
func (l LoopInfo) LoopLength() float64 {
	return l.LoopEnd - l.LoopStart
}

// ClipAnalysisData is the extracted analysis for one sidecar file. Every
// field is independent and best-effort; a zero value means the probe for
// that field found nothing.
type ClipAnalysisData struct {
	FilePath   string  `json:"file_path,omitempty"`
	SampleRate float64 `json:"sample_rate"`

	WarpMarkers []WarpMarker `json:"warp_markers"`
	WarpMode    string       `json:"warp_mode"`

	LoopInfo *LoopInfo `json:"loop_info,omitempty"`

	OriginalBPM *float64 `json:"original_bpm,omitempty"`
	DetectedBPM *float64 `json:"detected_bpm,omitempty"`
	StartMarker float64  `json:"start_marker"`
	EndMarker   float64  `json:"end_marker"`

	Transients []float64 `json:"transients"`

	IsWarped        bool `json:"is_warped"`
	HideWarpMarkers bool `json:"hide_warp_markers"`
}

func newClipAnalysisData() *ClipAnalysisData {
	return &ClipAnalysisData{
		SampleRate:  44100.0,
		WarpMarkers: []WarpMarker{},
		WarpMode:    "beats",
		Transients:  []float64{},
	}
}

// WarpMarkerCount returns the number of warp markers
func (c *ClipAnalysisData) WarpMarkerCount() int {
	return len(c.WarpMarkers)
}

// AvgStretchRatio is the mean stretch ratio across markers with a
// positive ratio; 1.0 when no markers qualify
func (c *ClipAnalysisData) AvgStretchRatio() float64 {
	sum := 0.0
	n := 0
	for _, m := range c.WarpMarkers {
		if r := m.StretchRatio(); r > 0 {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// ClipDuration is the length of the clip region between start and end
// markers
func (c *ClipAnalysisData) ClipDuration() float64 {
	return c.EndMarker - c.StartMarker
}

// FeatureVector flattens the analysis into its fixed 9-value numeric
// form, index-aligned with FeatureNames
func (c *ClipAnalysisData) FeatureVector() []float64 {
	detectedBPM := 0.0
	if c.DetectedBPM != nil {
		detectedBPM = *c.DetectedBPM
	}
	isWarped := 0.0
	if c.IsWarped {
		isWarped = 1.0
	}
	isLooping := 0.0
	loopLength := 0.0
	if c.LoopInfo != nil {
		if c.LoopInfo.LoopOn {
			isLooping = 1.0
		}
		loopLength = c.LoopInfo.LoopLength()
	}

	return []float64{
		c.SampleRate,
		float64(c.WarpMarkerCount()),
		c.AvgStretchRatio(),
		detectedBPM,
		float64(len(c.Transients)),
		c.ClipDuration(),
		isWarped,
		isLooping,
		loopLength,
	}
}

// FeatureNames returns the names for FeatureVector entries, in order
func FeatureNames() []string {
	return []string{
		"sample_rate",
		"warp_marker_count",
		"avg_stretch_ratio",
		"detected_bpm",
		"transient_count",
		"clip_duration",
		"is_warped",
		"is_looping",
		"loop_length",
	}
}
