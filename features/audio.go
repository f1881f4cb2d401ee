package features

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"

	"github.com/setforge/liveset/logging"
)

const (
	audioScalarCount = 12
	mfccCount        = 13
	melFilterCount   = 26

	defaultWindowSize = 2048
	defaultHopSize    = 512
)

// pitchClasses for chroma-based key estimation
var pitchClasses = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// AudioFeatures holds content features extracted from one audio file
type AudioFeatures struct {
	// Tempo and rhythm
	Tempo        float64 `json:"tempo"`
	BeatStrength float64 `json:"beat_strength"`

	// Spectral shape
	SpectralCentroid  float64 `json:"spectral_centroid"`
	SpectralBandwidth float64 `json:"spectral_bandwidth"`
	SpectralRolloff   float64 `json:"spectral_rolloff"`
	SpectralContrast  float64 `json:"spectral_contrast"`

	// Tonal content
	ChromaMean    float64 `json:"chroma_mean"`
	EstimatedKey  string  `json:"estimated_key,omitempty"`
	KeyConfidence float64 `json:"key_confidence"`

	// Energy and dynamics
	RMSMean          float64 `json:"rms_mean"`
	RMSStd           float64 `json:"rms_std"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`

	// MFCC coefficient means
	MFCCMeans []float64 `json:"mfcc_means"`

	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
}

// Vector flattens the features into the fixed 25-value audio segment:
// 12 scalars followed by 13 MFCC means, padded with zeros when fewer
// coefficients were computed
func (f *AudioFeatures) Vector() []float64 {
	v := []float64{
		f.Tempo,
		f.BeatStrength,
		f.SpectralCentroid,
		f.SpectralBandwidth,
		f.SpectralRolloff,
		f.SpectralContrast,
		f.ChromaMean,
		f.KeyConfidence,
		f.RMSMean,
		f.RMSStd,
		f.ZeroCrossingRate,
		f.Duration,
	}

	for i := 0; i < mfccCount; i++ {
		if i < len(f.MFCCMeans) {
			v = append(v, f.MFCCMeans[i])
		} else {
			v = append(v, 0.0)
		}
	}

	return v
}

func audioFeatureNames() []string {
	names := []string{
		"audio_tempo",
		"audio_beat_strength",
		"audio_spectral_centroid",
		"audio_spectral_bandwidth",
		"audio_spectral_rolloff",
		"audio_spectral_contrast",
		"audio_chroma_mean",
		"audio_key_confidence",
		"audio_rms_mean",
		"audio_rms_std",
		"audio_zcr",
		"audio_duration",
	}
	for i := 0; i < mfccCount; i++ {
		names = append(names, fmt.Sprintf("audio_mfcc_%d", i))
	}
	return names
}

// AudioAnalyzer is the audio-content capability. Implementations return
// features for the audio file at path, or an error the extractor absorbs
// by skipping that file. A nil analyzer in ExtractorConfig disables the
// capability without changing the vector layout.
type AudioAnalyzer interface {
	Analyze(path string) (*AudioFeatures, error)
}

// ContentAnalyzer computes AudioFeatures from decoded PCM using FFT
// analysis. It needs a PCMDecoder to turn audio files into samples.
type ContentAnalyzer struct {
	decoder    PCMDecoder
	windowSize int
	hopSize    int
	logger     logging.Logger
}

// NewContentAnalyzer creates an audio content analyzer backed by the
// given decoder
func NewContentAnalyzer(decoder PCMDecoder) *ContentAnalyzer {
	return &ContentAnalyzer{
		decoder:    decoder,
		windowSize: defaultWindowSize,
		hopSize:    defaultHopSize,
		logger: logging.WithFields(logging.Fields{
			"component": "content_analyzer",
		}),
	}
}

// Analyze decodes the audio file at path and extracts content features
func (a *ContentAnalyzer) Analyze(path string) (*AudioFeatures, error) {
	pcm, sampleRate, err := a.decoder.DecodePCM(path)
	if err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", path, err)
	}
	return a.AnalyzePCM(pcm, sampleRate)
}

// AnalyzePCM extracts content features from mono PCM samples
func (a *ContentAnalyzer) AnalyzePCM(pcm []float64, sampleRate int) (*AudioFeatures, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	features := &AudioFeatures{
		SampleRate: sampleRate,
		Duration:   float64(len(pcm)) / float64(sampleRate),
	}

	frames := a.frameSignal(pcm)
	if len(frames) == 0 {
		// Signal shorter than one window: analyze it as a single frame
		frames = [][]float64{pcm}
	}

	window := hannWindow(a.windowSize)
	freqPerBin := float64(sampleRate) / float64(a.windowSize)

	var centroids, bandwidths, rolloffs, contrasts, fluxes, rmsValues []float64
	chromaSum := make([]float64, 12)
	mfccSums := make([]float64, mfccCount)
	mfccFrames := 0

	melBank := melFilterBank(melFilterCount, a.windowSize/2+1, sampleRate)

	var prevMagnitude []float64
	for _, frame := range frames {
		magnitude := magnitudeSpectrum(frame, window)

		centroid, bandwidth := spectralCentroidBandwidth(magnitude, freqPerBin)
		centroids = append(centroids, centroid)
		bandwidths = append(bandwidths, bandwidth)
		rolloffs = append(rolloffs, spectralRolloff(magnitude, freqPerBin, 0.85))
		contrasts = append(contrasts, spectralContrast(magnitude))
		fluxes = append(fluxes, spectralFlux(magnitude, prevMagnitude))
		prevMagnitude = magnitude

		accumulateChroma(chromaSum, magnitude, freqPerBin)

		if coeffs := mfccFromSpectrum(magnitude, melBank); coeffs != nil {
			for i := range mfccSums {
				mfccSums[i] += coeffs[i]
			}
			mfccFrames++
		}

		rmsValues = append(rmsValues, rms(frame))
	}

	features.SpectralCentroid = stat.Mean(centroids, nil)
	features.SpectralBandwidth = stat.Mean(bandwidths, nil)
	features.SpectralRolloff = stat.Mean(rolloffs, nil)
	features.SpectralContrast = stat.Mean(contrasts, nil)

	features.RMSMean = stat.Mean(rmsValues, nil)
	if len(rmsValues) > 1 {
		features.RMSStd = math.Sqrt(stat.Variance(rmsValues, nil))
	}

	features.ZeroCrossingRate = zeroCrossingRate(pcm)

	// Chroma and key estimate
	total := 0.0
	maxIdx := 0
	for i, c := range chromaSum {
		total += c
		if c > chromaSum[maxIdx] {
			maxIdx = i
		}
	}
	if total > 0 {
		features.ChromaMean = total / 12.0 / float64(len(frames))
		features.EstimatedKey = pitchClasses[maxIdx]
		features.KeyConfidence = chromaSum[maxIdx] / (total + 1e-6)
	}

	features.MFCCMeans = make([]float64, mfccCount)
	if mfccFrames > 0 {
		for i := range mfccSums {
			features.MFCCMeans[i] = mfccSums[i] / float64(mfccFrames)
		}
	}

	// Rhythm from the onset (spectral flux) envelope
	features.BeatStrength = stat.Mean(fluxes, nil)
	features.Tempo = estimateTempo(fluxes, sampleRate, a.hopSize)

	return features, nil
}

// frameSignal slices the signal into hop-spaced windows
func (a *ContentAnalyzer) frameSignal(pcm []float64) [][]float64 {
	var frames [][]float64
	for start := 0; start+a.windowSize <= len(pcm); start += a.hopSize {
		frames = append(frames, pcm[start:start+a.windowSize])
	}
	return frames
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}

// magnitudeSpectrum windows the frame and returns the magnitudes of the
// positive-frequency FFT bins
func magnitudeSpectrum(frame, window []float64) []float64 {
	windowed := make([]float64, len(frame))
	for i := range frame {
		if i < len(window) {
			windowed[i] = frame[i] * window[i]
		} else {
			windowed[i] = frame[i]
		}
	}

	spectrum := fft.FFTReal(windowed)
	bins := len(spectrum)/2 + 1
	magnitude := make([]float64, bins)
	for i := 0; i < bins; i++ {
		magnitude[i] = cmplx.Abs(spectrum[i])
	}
	return magnitude
}

func spectralCentroidBandwidth(magnitude []float64, freqPerBin float64) (float64, float64) {
	totalMag := 0.0
	weighted := 0.0
	for i, m := range magnitude {
		totalMag += m
		weighted += float64(i) * freqPerBin * m
	}
	if totalMag == 0 {
		return 0, 0
	}
	centroid := weighted / totalMag

	spread := 0.0
	for i, m := range magnitude {
		diff := float64(i)*freqPerBin - centroid
		spread += diff * diff * m
	}
	return centroid, math.Sqrt(spread / totalMag)
}

func spectralRolloff(magnitude []float64, freqPerBin, threshold float64) float64 {
	totalEnergy := 0.0
	for _, m := range magnitude {
		totalEnergy += m * m
	}
	if totalEnergy == 0 {
		return 0
	}

	target := threshold * totalEnergy
	cumulative := 0.0
	for i, m := range magnitude {
		cumulative += m * m
		if cumulative >= target {
			return float64(i) * freqPerBin
		}
	}
	return float64(len(magnitude)-1) * freqPerBin
}

// spectralContrast approximates per-frame contrast as the peak-to-mean
// ratio of the log-magnitude spectrum
func spectralContrast(magnitude []float64) float64 {
	if len(magnitude) == 0 {
		return 0
	}
	peak := math.Inf(-1)
	sum := 0.0
	for _, m := range magnitude {
		logMag := math.Log(m + 1e-10)
		if logMag > peak {
			peak = logMag
		}
		sum += logMag
	}
	return peak - sum/float64(len(magnitude))
}

// spectralFlux sums the positive magnitude increases since the previous
// frame, a standard onset strength measure
func spectralFlux(magnitude, prev []float64) float64 {
	if prev == nil {
		return 0
	}
	flux := 0.0
	for i, m := range magnitude {
		if i < len(prev) {
			if d := m - prev[i]; d > 0 {
				flux += d
			}
		}
	}
	return flux
}

// accumulateChroma folds FFT bin magnitudes into 12 pitch classes
func accumulateChroma(chroma, magnitude []float64, freqPerBin float64) {
	for i := 1; i < len(magnitude); i++ {
		freq := float64(i) * freqPerBin
		if freq < 27.5 || freq > 8000 {
			continue
		}
		// MIDI note number, folded to pitch class
		note := 69.0 + 12.0*math.Log2(freq/440.0)
		pc := int(math.Round(note)) % 12
		if pc < 0 {
			pc += 12
		}
		chroma[pc] += magnitude[i]
	}
}

func rms(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func zeroCrossingRate(pcm []float64) float64 {
	if len(pcm) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(pcm); i++ {
		if (pcm[i-1] >= 0) != (pcm[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(pcm)-1)
}

// melFilterBank builds triangular mel-spaced filters over the FFT bins
func melFilterBank(filterCount, bins, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 { return 2595.0 * math.Log10(1.0+hz/700.0) }
	melToHz := func(mel float64) float64 { return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0) }

	maxFreq := float64(sampleRate) / 2.0
	maxMel := hzToMel(maxFreq)

	// Filter edge frequencies, mel-spaced
	edges := make([]float64, filterCount+2)
	for i := range edges {
		edges[i] = melToHz(maxMel * float64(i) / float64(filterCount+1))
	}

	freqPerBin := maxFreq / float64(bins-1)
	bank := make([][]float64, filterCount)
	for f := 0; f < filterCount; f++ {
		filter := make([]float64, bins)
		lower, center, upper := edges[f], edges[f+1], edges[f+2]
		for b := 0; b < bins; b++ {
			freq := float64(b) * freqPerBin
			switch {
			case freq >= lower && freq <= center && center > lower:
				filter[b] = (freq - lower) / (center - lower)
			case freq > center && freq <= upper && upper > center:
				filter[b] = (upper - freq) / (upper - center)
			}
		}
		bank[f] = filter
	}
	return bank
}

// mfccFromSpectrum applies the mel filter bank and a DCT-II to produce
// the first mfccCount cepstral coefficients
func mfccFromSpectrum(magnitude []float64, melBank [][]float64) []float64 {
	logEnergies := make([]float64, len(melBank))
	for f, filter := range melBank {
		energy := 0.0
		for b, m := range magnitude {
			if b < len(filter) {
				energy += m * m * filter[b]
			}
		}
		logEnergies[f] = math.Log(energy + 1e-10)
	}

	coeffs := make([]float64, mfccCount)
	n := float64(len(logEnergies))
	for k := 0; k < mfccCount; k++ {
		sum := 0.0
		for i, e := range logEnergies {
			sum += e * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/n)
		}
		coeffs[k] = sum
	}
	return coeffs
}

// estimateTempo autocorrelates the onset envelope and picks the
// strongest lag inside the plausible BPM range
func estimateTempo(flux []float64, sampleRate, hopSize int) float64 {
	if len(flux) < 4 {
		return 0
	}

	mean := stat.Mean(flux, nil)
	centered := make([]float64, len(flux))
	for i, f := range flux {
		centered[i] = f - mean
	}

	framesPerSecond := float64(sampleRate) / float64(hopSize)
	minLag := int(framesPerSecond * 60.0 / 200.0) // 200 BPM
	maxLag := int(framesPerSecond * 60.0 / 40.0)  // 40 BPM
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(centered) {
		maxLag = len(centered) - 1
	}
	if minLag > maxLag {
		return 0
	}

	bestLag := 0
	bestCorr := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		corr := 0.0
		for i := lag; i < len(centered); i++ {
			corr += centered[i] * centered[i-lag]
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return 0
	}
	return 60.0 * framesPerSecond / float64(bestLag)
}
