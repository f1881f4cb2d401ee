package asd

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/setforge/liveset/logging"
)

type cacheEntry struct {
	modTime  time.Time
	analysis *ClipAnalysisData
}

// Parser parses .asd sidecar files into ClipAnalysisData.
//
// Results are memoized by (path, mtime), mirroring the project file
// parser; the cache is safe for concurrent use. Each sidecar is
// independent - there are no cross-file invariants.
type Parser struct {
	logger logging.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewParser creates a sidecar parser
func NewParser() *Parser {
	return &Parser{
		logger: logging.WithFields(logging.Fields{
			"component": "asd_parser",
		}),
		cache: make(map[string]cacheEntry),
	}
}

// Parse extracts clip analysis data from the sidecar at path. A missing
// or unreadable file returns an error the caller should treat as "skip";
// short or garbled content degrades to an empty-but-valid result, never
// an error.
func (p *Parser) Parse(path string) (*ClipAnalysisData, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat sidecar %s: %w", path, err)
	}

	p.mu.RLock()
	entry, ok := p.cache[path]
	p.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.analysis, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		p.logger.Error(err, "Failed to read sidecar file", logging.Fields{
			"path": path,
		})
		return nil, fmt.Errorf("read sidecar %s: %w", path, err)
	}

	result := parseData(data)
	result.FilePath = path

	p.mu.Lock()
	p.cache[path] = cacheEntry{modTime: info.ModTime(), analysis: result}
	p.mu.Unlock()

	return result, nil
}

// parseData runs every probe strategy over the raw bytes. Probes are
// independent: one failing leaves only its own field empty.
func parseData(data []byte) *ClipAnalysisData {
	result := newClipAnalysisData()

	if len(data) < 8 {
		return result
	}

	result.WarpMarkers = probeWarpMarkers(data)
	result.IsWarped = len(result.WarpMarkers) > 0

	if bpm, ok := probeBPM(data); ok {
		result.DetectedBPM = &bpm
		original := bpm
		result.OriginalBPM = &original
	}

	result.Transients = probeTransients(data)
	result.LoopInfo = probeLoopInfo(data)

	if rate, ok := probeSampleRate(data); ok {
		result.SampleRate = rate
	}

	return result
}

// ClearCache resets the parse memo unconditionally
func (p *Parser) ClearCache() {
	p.mu.Lock()
	p.cache = make(map[string]cacheEntry)
	p.mu.Unlock()
}
