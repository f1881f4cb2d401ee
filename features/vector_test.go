package features

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/setforge/liveset/als"
)

// writeProjectFixture gzips XML into a .als file at dir/Set.als
func writeProjectFixture(t *testing.T, dir, xml string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(xml))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(dir, "Set.als")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// writeSidecarFixture writes a minimal .asd file whose BPM probe finds
// the given tempo
func writeSidecarFixture(t *testing.T, dir string, bpm float64) {
	t.Helper()
	data := make([]byte, 64)
	binary.LittleEndian.PutUint64(data[16:24], math.Float64bits(bpm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.wav.asd"), data, 0o644))
}

func TestStructuralVectorDefaults(t *testing.T) {
	v := StructuralVector(&als.ProjectMetadata{})

	require.Len(t, v, alsWidth)
	require.Equal(t, 120.0, v[0]) // tempo default
	for i := 1; i < len(v); i++ {
		require.Zero(t, v[i])
	}
}

func TestStructuralVectorValues(t *testing.T) {
	tempo := 140.0
	length := 32.0
	m := &als.ProjectMetadata{
		Tempo:             &tempo,
		TrackCount:        8,
		AudioTracks:       5,
		MidiTracks:        3,
		ReturnTracks:      2,
		ArrangementLength: &length,
		Plugins:           []string{"Serum"},
		Devices:           []string{"Compressor", "Reverb"},
		HasAutomation:     true,
		Extended: &als.ExtendedMetadata{
			TotalDeviceCount: 12,
			HasSends:         true,
			SendCount:        2,
			SceneCount:       6,
		},
	}

	v := StructuralVector(m)
	require.Len(t, v, alsWidth)
	require.Equal(t, 140.0, v[0])
	require.Equal(t, 8.0, v[1])
	require.Equal(t, 5.0, v[2])
	require.Equal(t, 32.0, v[5])
	require.Equal(t, 1.0, v[6]) // plugin count
	require.Equal(t, 2.0, v[7]) // device count
	require.Equal(t, 1.0, v[9]) // has_automation
	require.Equal(t, 12.0, v[10])
	require.Equal(t, 1.0, v[17]) // has_sends
	require.Equal(t, 2.0, v[18]) // send_count
	require.Equal(t, 6.0, v[23]) // scene_count
}

// TestCombinedFeatureNamesLayout pins the fixed vector contract: total
// length, segment boundaries and source prefixes.
func TestCombinedFeatureNamesLayout(t *testing.T) {
	names := CombinedFeatureNames()

	require.Len(t, names, VectorLength())
	require.Equal(t, alsWidth+asdWidth+audioWidth, VectorLength())

	require.Equal(t, "als_tempo", names[0])
	require.Equal(t, "asd_sample_rate", names[alsWidth])
	require.Equal(t, "audio_tempo", names[alsWidth+asdWidth])
	require.Equal(t, "audio_mfcc_12", names[len(names)-1])

	for i, name := range names {
		switch {
		case i < alsWidth:
			require.Contains(t, name, "als_")
		case i < alsWidth+asdWidth:
			require.Contains(t, name, "asd_")
		default:
			require.Contains(t, name, "audio_")
		}
	}
}

// TestSanitize checks the vector hygiene rules: NaN and infinities
// become 0, finite overflow clamps to the float32 range.
func TestSanitize(t *testing.T) {
	out, changed := sanitize([]float64{
		math.NaN(),
		math.Inf(1),
		math.Inf(-1),
		math.MaxFloat64,
		-math.MaxFloat64,
		1.5,
	})

	require.True(t, changed)
	require.Equal(t, float32(0), out[0])
	require.Equal(t, float32(0), out[1])
	require.Equal(t, float32(0), out[2])
	require.Equal(t, float32(math.MaxFloat32), out[3])
	require.Equal(t, float32(-math.MaxFloat32), out[4])
	require.Equal(t, float32(1.5), out[5])

	out, changed = sanitize([]float64{1, 2, 3})
	require.False(t, changed)
	require.Equal(t, []float32{1, 2, 3}, out)
}

func TestExtractProjectFeatures(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFixture(t, dir, `<Ableton>
  <LiveSet>
    <Tempo><Manual Value="128"/></Tempo>
    <Tracks>
      <AudioTrack Id="1"/>
      <MidiTrack Id="2"/>
    </Tracks>
  </LiveSet>
</Ableton>`)
	writeSidecarFixture(t, dir, 120.0)

	e := NewExtractor(nil)
	pf, err := e.ExtractProjectFeatures(path, nil, nil, nil)
	require.NoError(t, err)

	require.Len(t, pf.Combined, VectorLength())
	require.Len(t, pf.FeatureNames, VectorLength())
	require.Equal(t, path, pf.ProjectPath)

	require.Equal(t, float32(128), pf.Combined[0]) // als_tempo
	require.Equal(t, float32(2), pf.Combined[1])   // als_track_count

	// Sidecar segment: detected BPM sits at offset 3 within it
	require.Equal(t, float32(120), pf.Combined[alsWidth+3])

	// No analyzer configured: audio segment zero-filled
	for i := alsWidth + asdWidth; i < VectorLength(); i++ {
		require.Zero(t, pf.Combined[i])
	}
}

// TestExtractProjectFeaturesExplicitSidecars: explicit candidate paths
// replace directory discovery entirely, including an empty candidate
// list suppressing it.
func TestExtractProjectFeaturesExplicitSidecars(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFixture(t, dir, `<Ableton><LiveSet/></Ableton>`)
	writeSidecarFixture(t, dir, 120.0) // adjacent, must be ignored

	clipDir := t.TempDir()
	writeSidecarFixture(t, clipDir, 90.0)

	e := NewExtractor(nil)
	pf, err := e.ExtractProjectFeatures(path, nil,
		[]string{filepath.Join(clipDir, "clip.wav.asd")}, nil)
	require.NoError(t, err)
	require.Equal(t, float32(90), pf.Combined[alsWidth+3])

	e.ClearCache()
	pf, err = e.ExtractProjectFeatures(path, nil, []string{}, nil)
	require.NoError(t, err)
	for i := alsWidth; i < alsWidth+asdWidth; i++ {
		require.Zero(t, pf.Combined[i])
	}
}

func TestExtractProjectFeaturesMissingFile(t *testing.T) {
	e := NewExtractor(nil)
	_, err := e.ExtractProjectFeatures(filepath.Join(t.TempDir(), "gone.als"), nil, nil, nil)
	require.Error(t, err)
}

// TestExtractProjectFeaturesUndecodableProject: a present but
// undecodable project file keeps the vector contract, zero-filling the
// structural segment instead of failing.
func TestExtractProjectFeaturesUndecodableProject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Broken.als")
	require.NoError(t, os.WriteFile(path, []byte("not a gzip container"), 0o644))

	e := NewExtractor(nil)
	pf, err := e.ExtractProjectFeatures(path, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, pf.Combined, VectorLength())
	for _, v := range pf.Combined {
		require.Zero(t, v)
	}
}

func TestExtractorCacheByModTime(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFixture(t, dir, `<Ableton><LiveSet><Tracks/></LiveSet></Ableton>`)

	e := NewExtractor(nil)
	first, err := e.ExtractProjectFeatures(path, nil, nil, nil)
	require.NoError(t, err)
	second, err := e.ExtractProjectFeatures(path, nil, nil, nil)
	require.NoError(t, err)
	require.Same(t, first, second)

	e.ClearCache()
	third, err := e.ExtractProjectFeatures(path, nil, nil, nil)
	require.NoError(t, err)
	require.NotSame(t, first, third)
}

type stubAnalyzer struct {
	features *AudioFeatures
	err      error
}

func (s *stubAnalyzer) Analyze(string) (*AudioFeatures, error) {
	return s.features, s.err
}

// TestExtractProjectFeaturesWithAnalyzer: a configured analyzer fills
// the audio segment with the per-file vector means.
func TestExtractProjectFeaturesWithAnalyzer(t *testing.T) {
	dir := t.TempDir()
	path := writeProjectFixture(t, dir, `<Ableton><LiveSet><Tracks/></LiveSet></Ableton>`)

	config := DefaultExtractorConfig()
	config.Analyzer = &stubAnalyzer{features: &AudioFeatures{
		Tempo:     98.0,
		RMSMean:   0.4,
		Duration:  30.0,
		MFCCMeans: []float64{1, 2, 3},
	}}

	e := NewExtractor(config)
	pf, err := e.ExtractProjectFeatures(path, nil, nil, []string{"mix.wav"})
	require.NoError(t, err)

	audioStart := alsWidth + asdWidth
	require.Equal(t, float32(98), pf.Combined[audioStart])    // audio_tempo
	require.Equal(t, float32(0.4), pf.Combined[audioStart+8]) // audio_rms_mean
	require.Equal(t, float32(30), pf.Combined[audioStart+11]) // audio_duration
	require.Equal(t, float32(1), pf.Combined[audioStart+12])  // audio_mfcc_0
	require.Zero(t, pf.Combined[audioStart+15])               // padded mfcc_3
}

func TestExtractBatchFeatures(t *testing.T) {
	dirA := t.TempDir()
	pathA := writeProjectFixture(t, dirA, `<Ableton><LiveSet><Tempo><Manual Value="100"/></Tempo><Tracks/></LiveSet></Ableton>`)
	dirB := t.TempDir()
	pathB := writeProjectFixture(t, dirB, `<Ableton><LiveSet><Tempo><Manual Value="150"/></Tempo><Tracks/></LiveSet></Ableton>`)
	missing := filepath.Join(t.TempDir(), "gone.als")

	e := NewExtractor(nil)
	results, err := e.ExtractBatchFeatures(context.Background(), []string{pathA, missing, pathB}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, pathA, results[0].ProjectPath)
	require.NoError(t, results[0].Err)
	require.Equal(t, float32(100), results[0].Features.Combined[0])

	require.Equal(t, missing, results[1].ProjectPath)
	require.Error(t, results[1].Err)
	require.Nil(t, results[1].Features)

	require.NoError(t, results[2].Err)
	require.Equal(t, float32(150), results[2].Features.Combined[0])
}
