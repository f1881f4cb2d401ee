package asd

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// putFloat64 writes v as a little-endian double at offset
func putFloat64(data []byte, offset int, v float64) {
	binary.LittleEndian.PutUint64(data[offset:offset+8], math.Float64bits(v))
}

func writeSidecar(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.asd")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// TestParseBPMProbe checks the header scan: a double in the plausible
// BPM range within the scan window is adopted, rounded to 2 decimals.
func TestParseBPMProbe(t *testing.T) {
	data := make([]byte, 64)
	putFloat64(data, 16, 128.504)
	putFloat64(data, 24, 44100.0)

	result := parseData(data)

	require.NotNil(t, result.DetectedBPM)
	require.Equal(t, 128.5, *result.DetectedBPM)
	require.NotNil(t, result.OriginalBPM)
	require.Equal(t, 128.5, *result.OriginalBPM)
	require.Equal(t, 44100.0, result.SampleRate)
}

func TestParseSampleRateProbeRequiresExactMatch(t *testing.T) {
	data := make([]byte, 64)
	putFloat64(data, 16, 44101.0) // close but not a standard rate

	result := parseData(data)
	require.Equal(t, 44100.0, result.SampleRate) // default retained
}

// TestParseWarpMarkerProbe checks table recovery at a known candidate
// offset: consecutive 16-byte records are read until a value falls out
// of the plausibility bounds.
func TestParseWarpMarkerProbe(t *testing.T) {
	data := make([]byte, 0x40+32)
	putFloat64(data, 0x40, 1.0)
	putFloat64(data, 0x48, 22050.0)
	putFloat64(data, 0x50, 2.0)
	putFloat64(data, 0x58, 44100.0)

	result := parseData(data)

	require.True(t, result.IsWarped)
	require.Equal(t, 2, result.WarpMarkerCount())
	require.Equal(t, WarpMarker{BeatTime: 1.0, SampleTime: 22050.0}, result.WarpMarkers[0])
	require.Equal(t, WarpMarker{BeatTime: 2.0, SampleTime: 44100.0}, result.WarpMarkers[1])
}

// TestParseWarpMarkerProbeRejectsImplausible: a negative or absurdly
// large candidate fails the gate, leaving the clip unwarped.
func TestParseWarpMarkerProbeRejectsImplausible(t *testing.T) {
	data := make([]byte, 0x40+16)
	putFloat64(data, 0x40, -5.0)
	putFloat64(data, 0x48, 22050.0)

	result := parseData(data)
	require.False(t, result.IsWarped)
	require.Empty(t, result.WarpMarkers)

	data = make([]byte, 0x40+16)
	putFloat64(data, 0x40, 1.0)
	putFloat64(data, 0x48, 2e9) // beyond the sample-time bound

	result = parseData(data)
	require.Empty(t, result.WarpMarkers)
}

// TestParseShortDataIsEmptyButValid: content too short for any probe
// degrades to defaults, never an error.
func TestParseShortDataIsEmptyButValid(t *testing.T) {
	result := parseData([]byte{0x01, 0x02, 0x03})

	require.Equal(t, 44100.0, result.SampleRate)
	require.Equal(t, "beats", result.WarpMode)
	require.Empty(t, result.WarpMarkers)
	require.Nil(t, result.DetectedBPM)
	require.NotNil(t, result.Transients)
	require.Empty(t, result.Transients)
	require.False(t, result.IsWarped)
}

func TestParseMissingFileErrors(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(filepath.Join(t.TempDir(), "missing.asd"))
	require.Error(t, err)
}

// TestParseCacheByModTime mirrors the project parser memoization:
// unchanged files return the cached result, touched files re-parse.
func TestParseCacheByModTime(t *testing.T) {
	data := make([]byte, 64)
	putFloat64(data, 16, 120.0)
	path := writeSidecar(t, data)

	p := NewParser()
	first, err := p.Parse(path)
	require.NoError(t, err)
	second, err := p.Parse(path)
	require.NoError(t, err)
	require.Same(t, first, second)

	putFloat64(data, 16, 90.0)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	third, err := p.Parse(path)
	require.NoError(t, err)
	require.NotSame(t, first, third)
	require.NotNil(t, third.DetectedBPM)
	require.Equal(t, 90.0, *third.DetectedBPM)
}

func TestStretchRatioAndAggregates(t *testing.T) {
	m := WarpMarker{BeatTime: 4.0, SampleTime: 2.0}
	require.Equal(t, 2.0, m.StretchRatio())

	zeroSample := WarpMarker{BeatTime: 4.0, SampleTime: 0}
	require.Equal(t, 1.0, zeroSample.StretchRatio())

	c := newClipAnalysisData()
	require.Equal(t, 1.0, c.AvgStretchRatio())

	c.WarpMarkers = []WarpMarker{
		{BeatTime: 4.0, SampleTime: 2.0},
		{BeatTime: 2.0, SampleTime: 2.0},
	}
	require.InDelta(t, 1.5, c.AvgStretchRatio(), 1e-9)
}

// TestFeatureVectorShape: the 9-value layout is index-aligned with
// FeatureNames and encodes booleans as 0/1.
func TestFeatureVectorShape(t *testing.T) {
	names := FeatureNames()
	require.Len(t, names, 9)

	bpm := 174.0
	c := newClipAnalysisData()
	c.DetectedBPM = &bpm
	c.IsWarped = true
	c.StartMarker = 1.0
	c.EndMarker = 9.0
	c.LoopInfo = &LoopInfo{LoopStart: 0, LoopEnd: 4, LoopOn: true}

	v := c.FeatureVector()
	require.Len(t, v, len(names))
	require.Equal(t, 44100.0, v[0])
	require.Equal(t, 174.0, v[3])
	require.Equal(t, 8.0, v[5])  // clip duration
	require.Equal(t, 1.0, v[6])  // is_warped
	require.Equal(t, 1.0, v[7])  // is_looping
	require.Equal(t, 4.0, v[8])  // loop_length
}

func TestFindSidecarFiles(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "Samples", "Processed")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "kick.wav.asd"), []byte{0}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "snare.wav.ASD"), []byte{0}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "snare.wav"), []byte{0}, 0o644))

	found := FindSidecarFiles(dir)
	require.Len(t, found, 2)
	for _, path := range found {
		require.Contains(t, []string{".asd", ".ASD"}, filepath.Ext(path))
	}
}
