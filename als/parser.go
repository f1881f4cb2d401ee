package als

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/setforge/liveset/logging"
)

// ParserConfig holds configuration for project file parsing
type ParserConfig struct {
	// ExtractExtended enables the deep walk producing ExtendedMetadata.
	// Off by default: it visits every device and clip in the file.
	ExtractExtended bool

	// MarkerExtractor supplies timeline markers. Nil disables marker
	// extraction; a failing extractor yields an empty marker list.
	MarkerExtractor MarkerExtractor
}

// DefaultParserConfig returns the default parser configuration
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		ExtractExtended: false,
		MarkerExtractor: nil,
	}
}

type cacheEntry struct {
	modTime  time.Time
	metadata *ProjectMetadata
}

// Parser parses .als project files into ProjectMetadata snapshots.
//
// Results are memoized by (path, mtime): repeated calls for an unchanged
// file return the cached snapshot without rereading it. The cache is safe
// for concurrent use; parses of independent paths share no state.
type Parser struct {
	config *ParserConfig
	logger logging.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewParser creates a project file parser with the given configuration
func NewParser(config *ParserConfig) *Parser {
	if config == nil {
		config = DefaultParserConfig()
	}

	return &Parser{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "als_parser",
		}),
		cache: make(map[string]cacheEntry),
	}
}

// Parse extracts metadata from the .als file at path.
//
// Only total inability to open or decode the container returns an error
// (a *DecodeError); every per-field heuristic inside a successful decode
// degrades to a nil/zero field instead. Batch callers must treat an error
// as "skip this file," not retry.
func (p *Parser) Parse(path string) (*ProjectMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	p.mu.RLock()
	entry, ok := p.cache[path]
	p.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.metadata, nil
	}

	root, err := decodeTree(path)
	if err != nil {
		p.logger.Error(err, "Failed to decode project file", logging.Fields{
			"path": path,
		})
		return nil, err
	}

	metadata := &ProjectMetadata{
		SourcePath:  path,
		Fingerprint: fmt.Sprintf("%s_%d", path, info.ModTime().UnixNano()),
		ModTime:     info.ModTime(),
	}

	metadata.Version = extractVersion(root)
	metadata.Tempo = extractTempo(root)
	metadata.TimeSignature = extractTimeSignature(root)

	tracks := extractTracks(root)
	metadata.TrackCount = tracks.total
	metadata.AudioTracks = tracks.audio
	metadata.MidiTracks = tracks.midi
	metadata.ReturnTracks = tracks.returns
	metadata.MasterTrack = tracks.master

	metadata.ArrangementLength = extractArrangementLength(root)

	metadata.Plugins, metadata.Devices = extractPluginsAndDevices(root)
	metadata.SampleReferences = extractSamples(root)
	metadata.HasAutomation = hasAutomation(root)

	export := extractExportInfo(root)
	metadata.ExportFilenames = export.filenames
	metadata.Annotation = export.annotation
	metadata.MasterTrackName = export.masterTrackName

	if p.config.ExtractExtended {
		metadata.Extended = extractExtendedMetadata(root)
	}

	keyInfo := resolveKeyInfo(root)
	metadata.MusicalKey = keyInfo.key
	metadata.ScaleType = keyInfo.scale
	metadata.IsInKey = keyInfo.isInKey

	metadata.TimelineMarkers = p.extractMarkers(path)

	p.mu.Lock()
	p.cache[path] = cacheEntry{modTime: info.ModTime(), metadata: metadata}
	p.mu.Unlock()

	return metadata, nil
}

// extractMarkers invokes the configured marker extractor defensively: a
// nil extractor, an error, or even a panic inside the extractor all
// resolve to an empty marker list.
func (p *Parser) extractMarkers(path string) (markers []TimelineMarker) {
	markers = []TimelineMarker{}
	if p.config.MarkerExtractor == nil {
		return markers
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Marker extractor panicked", logging.Fields{
				"path":  path,
				"panic": r,
			})
			markers = []TimelineMarker{}
		}
	}()

	extracted, err := p.config.MarkerExtractor.ExtractMarkers(path)
	if err != nil {
		p.logger.Warn("Failed to extract timeline markers", logging.Fields{
			"path":  path,
			"error": err.Error(),
		})
		return markers
	}
	if extracted == nil {
		return markers
	}

	p.logger.Debug("Extracted timeline markers", logging.Fields{
		"path":    path,
		"markers": len(extracted),
	})
	return extracted
}

// ClearCache resets the parse memo unconditionally
func (p *Parser) ClearCache() {
	p.mu.Lock()
	p.cache = make(map[string]cacheEntry)
	p.mu.Unlock()
}
