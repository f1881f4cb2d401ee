package als

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the flat, storage-ready projection of ProjectMetadata.
// List-valued fields are serialized as compact JSON arrays so they fit a
// single text column; Record/FromRecord round-trips reproduce the same
// list contents and order.
type Record struct {
	SourcePath  string    `json:"source_path"`
	Fingerprint string    `json:"fingerprint"`
	ModTime     time.Time `json:"mod_time"`

	Tempo         *float64 `json:"tempo,omitempty"`
	TimeSignature *string  `json:"time_signature,omitempty"`
	MusicalKey    *string  `json:"musical_key,omitempty"`
	ScaleType     *string  `json:"scale_type,omitempty"`
	IsInKey       *bool    `json:"is_in_key,omitempty"`

	TrackCount        int      `json:"track_count"`
	AudioTracks       int      `json:"audio_tracks"`
	MidiTracks        int      `json:"midi_tracks"`
	ReturnTracks      int      `json:"return_tracks"`
	MasterTrack       bool     `json:"master_track"`
	ArrangementLength *float64 `json:"arrangement_length,omitempty"`
	Version           *string  `json:"version,omitempty"`
	HasAutomation     bool     `json:"has_automation"`

	Annotation      *string `json:"annotation,omitempty"`
	MasterTrackName *string `json:"master_track_name,omitempty"`

	// JSON-array text columns
	Plugins          string `json:"plugins"`
	Devices          string `json:"devices"`
	SampleReferences string `json:"sample_references"`
	ExportFilenames  string `json:"export_filenames"`
	TimelineMarkers  string `json:"timeline_markers"`
}

func encodeList(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	return encodeList(list)
}

// Record converts the metadata snapshot into its flat storage form
func (m *ProjectMetadata) Record() (*Record, error) {
	r := &Record{
		SourcePath:        m.SourcePath,
		Fingerprint:       m.Fingerprint,
		ModTime:           m.ModTime,
		Tempo:             m.Tempo,
		TimeSignature:     m.TimeSignature,
		MusicalKey:        m.MusicalKey,
		ScaleType:         m.ScaleType,
		IsInKey:           m.IsInKey,
		TrackCount:        m.TrackCount,
		AudioTracks:       m.AudioTracks,
		MidiTracks:        m.MidiTracks,
		ReturnTracks:      m.ReturnTracks,
		MasterTrack:       m.MasterTrack,
		ArrangementLength: m.ArrangementLength,
		Version:           m.Version,
		HasAutomation:     m.HasAutomation,
		Annotation:        m.Annotation,
		MasterTrackName:   m.MasterTrackName,
	}

	var err error
	if r.Plugins, err = encodeStrings(m.Plugins); err != nil {
		return nil, fmt.Errorf("encode plugins: %w", err)
	}
	if r.Devices, err = encodeStrings(m.Devices); err != nil {
		return nil, fmt.Errorf("encode devices: %w", err)
	}
	if r.SampleReferences, err = encodeStrings(m.SampleReferences); err != nil {
		return nil, fmt.Errorf("encode sample references: %w", err)
	}
	if r.ExportFilenames, err = encodeStrings(m.ExportFilenames); err != nil {
		return nil, fmt.Errorf("encode export filenames: %w", err)
	}

	markers := m.TimelineMarkers
	if markers == nil {
		markers = []TimelineMarker{}
	}
	if r.TimelineMarkers, err = encodeList(markers); err != nil {
		return nil, fmt.Errorf("encode timeline markers: %w", err)
	}

	return r, nil
}

// FromRecord reconstructs a ProjectMetadata from its flat storage form.
// Extended metadata is not persisted and comes back nil.
func FromRecord(r *Record) (*ProjectMetadata, error) {
	m := &ProjectMetadata{
		SourcePath:        r.SourcePath,
		Fingerprint:       r.Fingerprint,
		ModTime:           r.ModTime,
		Tempo:             r.Tempo,
		TimeSignature:     r.TimeSignature,
		MusicalKey:        r.MusicalKey,
		ScaleType:         r.ScaleType,
		IsInKey:           r.IsInKey,
		TrackCount:        r.TrackCount,
		AudioTracks:       r.AudioTracks,
		MidiTracks:        r.MidiTracks,
		ReturnTracks:      r.ReturnTracks,
		MasterTrack:       r.MasterTrack,
		ArrangementLength: r.ArrangementLength,
		Version:           r.Version,
		HasAutomation:     r.HasAutomation,
		Annotation:        r.Annotation,
		MasterTrackName:   r.MasterTrackName,
	}

	if err := json.Unmarshal([]byte(r.Plugins), &m.Plugins); err != nil {
		return nil, fmt.Errorf("decode plugins: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Devices), &m.Devices); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	if err := json.Unmarshal([]byte(r.SampleReferences), &m.SampleReferences); err != nil {
		return nil, fmt.Errorf("decode sample references: %w", err)
	}
	if err := json.Unmarshal([]byte(r.ExportFilenames), &m.ExportFilenames); err != nil {
		return nil, fmt.Errorf("decode export filenames: %w", err)
	}
	if err := json.Unmarshal([]byte(r.TimelineMarkers), &m.TimelineMarkers); err != nil {
		return nil, fmt.Errorf("decode timeline markers: %w", err)
	}

	return m, nil
}
