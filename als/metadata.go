// Package als parses Ableton Live .als project files.
//
// An .als file is a gzip-compressed XML document describing an entire
// session: tracks, devices, clips, tempo, samples, key/scale and export
// state. The format carries no published schema, so every extraction in
// this package is a defensive heuristic walk over the element tree:
// missing or renamed elements yield nil/zero fields, never errors.
package als

import "time"

// TimelineMarker is a text annotation placed on the arrangement timeline
type TimelineMarker struct {
	Time float64 `json:"time"` // position in seconds or beats, as reported by the extractor
	Text string  `json:"text"`
}

// DeviceChainInfo summarizes the device chain of a single track
type DeviceChainInfo struct {
	TrackName   string   `json:"track_name"`
	TrackType   string   `json:"track_type"` // "audio", "midi", "return", "master"
	Devices     []string `json:"devices"`
	DeviceCount int      `json:"device_count"`
	HasPlugins  bool     `json:"has_plugins"`
	PluginCount int      `json:"plugin_count"`
}

// ClipInfo describes a single arrangement or session clip
type ClipInfo struct {
	Name       string  `json:"name"`
	ClipType   string  `json:"clip_type"` // "audio" or "midi"
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Duration   float64 `json:"duration"`
	IsLooping  bool    `json:"is_looping"`
	ColorIndex int     `json:"color_index"`
}

// ExtendedMetadata holds the deep-walk facts used for feature vectors.
// Populated only when ParserConfig.ExtractExtended is set - this walk
// touches every device and clip in the file, not just headline facts.
type ExtendedMetadata struct {
	// Device chain analysis
	DeviceChains       []DeviceChainInfo `json:"device_chains"`
	TotalDeviceCount   int               `json:"total_device_count"`
	UniqueDeviceTypes  int               `json:"unique_device_types"`
	AvgDevicesPerTrack float64           `json:"avg_devices_per_track"`

	// Clip analysis
	Clips           []ClipInfo `json:"clips"`
	AudioClipCount  int        `json:"audio_clip_count"`
	MidiClipCount   int        `json:"midi_clip_count"`
	TotalClipCount  int        `json:"total_clip_count"`
	AvgClipDuration float64    `json:"avg_clip_duration"`

	// Routing information
	HasSends     bool `json:"has_sends"`
	SendCount    int  `json:"send_count"`
	HasSidechain bool `json:"has_sidechain"`

	// Automation density
	AutomationLaneCount  int `json:"automation_lane_count"`
	AutomationPointCount int `json:"automation_point_count"`

	// Groove/swing settings
	GroovePoolSize int `json:"groove_pool_size"`

	// Scene information
	SceneCount int `json:"scene_count"`

	// Key/scale information (if present in project)
	MusicalKey *string `json:"musical_key,omitempty"`
	ScaleType  *string `json:"scale_type,omitempty"`

	// Plugin parameter count (complexity proxy)
	PluginParameterCount int `json:"plugin_parameter_count"`
}

// ProjectMetadata is the immutable snapshot produced by one parse of an
// .als file. Optional fields are pointers: nil means the heuristic found
// nothing, not that the value is zero.
type ProjectMetadata struct {
	// Identity
	SourcePath  string    `json:"source_path"`
	Fingerprint string    `json:"fingerprint"` // path + modification time
	ModTime     time.Time `json:"mod_time"`

	// Inventories (ordered-unique, first-seen order)
	Plugins          []string `json:"plugins"`
	Devices          []string `json:"devices"`
	SampleReferences []string `json:"sample_references"`

	// Musical
	Tempo         *float64 `json:"tempo,omitempty"`          // BPM, open interval (0, 1000)
	TimeSignature *string  `json:"time_signature,omitempty"` // "N/D"
	MusicalKey    *string  `json:"musical_key,omitempty"`    // pitch class, e.g. "C", "D#"
	ScaleType     *string  `json:"scale_type,omitempty"`     // e.g. "Major", "Dorian"
	IsInKey       *bool    `json:"is_in_key,omitempty"`      // tri-state: nil = unset

	// Structural
	TrackCount        int      `json:"track_count"` // audio + midi + group only
	AudioTracks       int      `json:"audio_tracks"`
	MidiTracks        int      `json:"midi_tracks"`
	ReturnTracks      int      `json:"return_tracks"`
	MasterTrack       bool     `json:"master_track"`
	ArrangementLength *float64 `json:"arrangement_length,omitempty"` // bars
	Version           *string  `json:"version,omitempty"`            // creator string

	// Flags
	HasAutomation bool `json:"has_automation"`

	// Export hints
	ExportFilenames []string `json:"export_filenames"`
	Annotation      *string  `json:"annotation,omitempty"`
	MasterTrackName *string  `json:"master_track_name,omitempty"`

	// Timeline markers, ordered by time
	TimelineMarkers []TimelineMarker `json:"timeline_markers"`

	// Deep-walk metadata, present only when requested
	Extended *ExtendedMetadata `json:"extended,omitempty"`
}
