package asd

import (
	"encoding/binary"
	"math"
)

// Probe strategies. Each field of the sidecar format is recovered by its
// own named probe with an explicit plausibility gate, so individual
// heuristics can be tested in isolation and replaced independently if
// the format is ever documented.

// Plausibility bounds for warp marker candidate values
const (
	maxBeatTime    = 100000.0
	maxSampleTime  = 100000000.0
	maxWarpMarkers = 1000

	bpmScanLimit        = 500
	bpmMin              = 40.0
	bpmMax              = 300.0
	sampleRateScanLimit = 200
)

// warpProbeOffsets are the byte offsets where marker tables have been
// observed to start across Live 9/10/11 files
var warpProbeOffsets = []int{0x40, 0x50, 0x60, 0x80, 0x100}

// readFloat64 interprets 8 bytes at offset as a little-endian IEEE 754
// double
func readFloat64(data []byte, offset int) (float64, bool) {
	if offset < 0 || offset+8 > len(data) {
		return 0, false
	}
	bits := binary.LittleEndian.Uint64(data[offset : offset+8])
	return math.Float64frombits(bits), true
}

// plausibleMarkerPair gates a (beat-time, sample-time) candidate: both
// values inside bounds, with at least one strictly positive
func plausibleMarkerPair(beatTime, sampleTime float64) bool {
	if beatTime < 0 || beatTime >= maxBeatTime {
		return false
	}
	if sampleTime < 0 || sampleTime >= maxSampleTime {
		return false
	}
	return beatTime > 0 || sampleTime > 0
}

// probeWarpMarkers scans the known candidate offsets for the start of a
// warp marker table. Once an offset passes the plausibility gate,
// consecutive 16-byte records are read forward until a value falls out
// of bounds, capped at maxWarpMarkers.
func probeWarpMarkers(data []byte) []WarpMarker {
	markers := []WarpMarker{}

	for _, offset := range warpProbeOffsets {
		beatTime, ok := readFloat64(data, offset)
		if !ok {
			continue
		}
		sampleTime, ok := readFloat64(data, offset+8)
		if !ok {
			continue
		}
		if !plausibleMarkerPair(beatTime, sampleTime) {
			continue
		}

		// Accepted table start: read records forward
		for pos := offset; pos+16 <= len(data); pos += 16 {
			bt, ok1 := readFloat64(data, pos)
			st, ok2 := readFloat64(data, pos+8)
			if !ok1 || !ok2 {
				break
			}
			if bt < 0 || bt >= maxBeatTime || st < 0 || st >= maxSampleTime {
				break
			}
			if bt > 0 || st > 0 {
				markers = append(markers, WarpMarker{BeatTime: bt, SampleTime: st})
			}
			if len(markers) >= maxWarpMarkers {
				break
			}
		}

		if len(markers) > 0 {
			break
		}
	}

	return markers
}

// probeBPM scans the first bpmScanLimit bytes in 4-byte steps for a
// double landing in the plausible BPM range, rounded to 2 decimals
func probeBPM(data []byte) (float64, bool) {
	limit := min(len(data)-8, bpmScanLimit)
	for i := 0; i < limit; i += 4 {
		val, ok := readFloat64(data, i)
		if !ok {
			break
		}
		if val >= bpmMin && val <= bpmMax {
			return math.Round(val*100) / 100, true
		}
	}
	return 0, false
}

// probeSampleRate scans the first sampleRateScanLimit bytes in 4-byte
// steps for a double exactly matching a common sample rate
func probeSampleRate(data []byte) (float64, bool) {
	limit := min(len(data)-8, sampleRateScanLimit)
	for i := 0; i < limit; i += 4 {
		val, ok := readFloat64(data, i)
		if !ok {
			break
		}
		switch val {
		case 44100.0, 48000.0, 88200.0, 96000.0:
			return val, true
		}
	}
	return 0, false
}

// probeTransients would recover detected transient positions. Their
// location in the binary layout is not yet understood; until it is, the
// probe reports no transients rather than guessing.
func probeTransients(data []byte) []float64 {
	return []float64{}
}

// probeLoopInfo would recover the loop region. Its location varies by
// Live version and is not yet mapped; the probe reports no loop info
// rather than guessing.
func probeLoopInfo(data []byte) *LoopInfo {
	return nil
}
