package als

// MarkerExtractor is the boundary to an external timeline-marker
// extraction capability. Implementations return markers ordered by time,
// or an empty list when extraction is unavailable or fails for the file.
// The parser absorbs errors and panics at this boundary; they never
// propagate past a Parse call.
type MarkerExtractor interface {
	ExtractMarkers(path string) ([]TimelineMarker, error)
}
