package als

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Recognized tag patterns. The .als format exposes no schema, so fields
// are located by substring matches against local tag names; keeping the
// patterns in one place makes the implicit contract reviewable.
const (
	tagLiveSet            = "LiveSet"
	tagTracks             = "Tracks"
	tagAudioTrack         = "AudioTrack"
	tagMidiTrack          = "MidiTrack"
	tagReturnTrack        = "ReturnTrack"
	tagMasterTrack        = "MasterTrack"
	tagGroupTrack         = "GroupTrack"
	tagAudioClip          = "AudioClip"
	tagMidiClip           = "MidiClip"
	patTempo              = "Tempo"
	patTimeSignature      = "TimeSignature"
	patPluginDevice       = "PluginDevice"
	patExport             = "Export"
	patRenderSettings     = "RenderSettings"
	patAnnotation         = "Annotation"
	patAutomationEnvelope = "AutomationEnvelope"
	patEnvelope           = "Envelope"
	patSampleRef          = "SampleRef"
	patRelativePath       = "RelativePathElement"
)

func attrFloat(el *etree.Element, key string) (float64, bool) {
	val := el.SelectAttrValue(key, "")
	if val == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// findLiveSet locates the top-level project element. The root is usually
// an "Ableton" wrapper with LiveSet as a child, but older files expose
// LiveSet as the document root.
func findLiveSet(root *etree.Element) *etree.Element {
	if root.Tag == tagLiveSet {
		return root
	}
	var liveset *etree.Element
	walk(root, func(el *etree.Element) bool {
		if el.Tag == tagLiveSet {
			liveset = el
			return false
		}
		return true
	})
	return liveset
}

// extractVersion reads the creator/version string. It lives on the root
// element in current files; legacy files carry it on an
// AbletonLiveProject descendant.
func extractVersion(root *etree.Element) *string {
	if creator := root.SelectAttrValue("Creator", ""); creator != "" {
		return &creator
	}

	var version *string
	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, "AbletonLiveProject") {
			if creator := el.SelectAttrValue("Creator", ""); creator != "" {
				version = &creator
				return false
			}
		}
		return true
	})
	return version
}

// extractTempo finds the first element whose tag matches "Tempo" and
// reads its Manual child's value. Values outside (0, 1000) BPM are
// treated as not found.
func extractTempo(root *etree.Element) *float64 {
	var tempo *float64
	walk(root, func(el *etree.Element) bool {
		if !strings.Contains(el.Tag, patTempo) {
			return true
		}
		manual := el.SelectElement("Manual")
		if manual == nil {
			return true
		}
		if val, ok := attrFloat(manual, "Value"); ok && val > 0 && val < 1000 {
			tempo = &val
			return false
		}
		return true
	})
	return tempo
}

func extractTimeSignature(root *etree.Element) *string {
	var sig *string
	walk(root, func(el *etree.Element) bool {
		if !strings.Contains(el.Tag, patTimeSignature) {
			return true
		}
		numerator := el.SelectAttrValue("Numerator", "")
		denominator := el.SelectAttrValue("Denominator", "")
		if numerator != "" && denominator != "" {
			s := numerator + "/" + denominator
			sig = &s
			return false
		}
		return true
	})
	return sig
}

type trackCounts struct {
	total   int
	audio   int
	midi    int
	returns int
	master  bool
}

// extractTracks classifies the direct children of the LiveSet's Tracks
// container by exact tag name. Nested track containers (group-track
// chains, drum-rack pads) are deliberately not visited. Return and
// master tracks are counted separately and excluded from the total.
func extractTracks(root *etree.Element) trackCounts {
	var counts trackCounts

	liveset := findLiveSet(root)
	if liveset == nil {
		return counts
	}
	tracksElem := liveset.SelectElement(tagTracks)
	if tracksElem == nil {
		return counts
	}

	for _, track := range tracksElem.ChildElements() {
		switch track.Tag {
		case tagAudioTrack:
			counts.audio++
			counts.total++
		case tagMidiTrack:
			counts.midi++
			counts.total++
		case tagReturnTrack:
			counts.returns++
		case tagMasterTrack:
			counts.master = true
		case tagGroupTrack:
			// Group tracks hold MIDI-like content
			counts.midi++
			counts.total++
		}
	}

	return counts
}

// extractArrangementLength derives length in bars from the furthest clip
// end or locator time, whichever is larger. Live stores time in beats;
// beats are converted to bars assuming 4/4.
func extractArrangementLength(root *etree.Element) *float64 {
	maxEnd := 0.0

	walk(root, func(el *etree.Element) bool {
		switch el.Tag {
		case tagAudioClip, tagMidiClip:
			if end := el.SelectElement("CurrentEnd"); end != nil {
				if val, ok := attrFloat(end, "Value"); ok && val > maxEnd {
					maxEnd = val
				}
			}
		case "Locator":
			walk(el, func(sub *etree.Element) bool {
				if sub.Tag == "Time" {
					if val, ok := attrFloat(sub, "Value"); ok && val > maxEnd {
						maxEnd = val
					}
				}
				return true
			})
		}
		return true
	})

	if maxEnd > 0 {
		bars := maxEnd / 4.0
		return &bars
	}
	return nil
}

// extractPluginsAndDevices collects third-party plugin names from
// PluginDevice blocks and built-in device names from the known device
// type allowlist. Both lists are deduplicated in first-seen order.
func extractPluginsAndDevices(root *etree.Element) ([]string, []string) {
	plugins := []string{}
	seenPlugins := map[string]bool{}

	walk(root, func(el *etree.Element) bool {
		if !strings.Contains(el.Tag, patPluginDevice) {
			return true
		}

		if vst := el.FindElement(".//VstPluginInfo"); vst != nil {
			name := vst.SelectAttrValue("PlugName", "")
			if name == "" {
				name = vst.SelectAttrValue("Name", "")
			}
			if name != "" && !seenPlugins[name] {
				plugins = append(plugins, name)
				seenPlugins[name] = true
			}
		}

		if au := el.FindElement(".//AuPluginInfo"); au != nil {
			name := au.SelectAttrValue("Name", "")
			if name == "" {
				name = au.SelectAttrValue("PlugName", "")
			}
			if name != "" && !seenPlugins[name] {
				plugins = append(plugins, name)
				seenPlugins[name] = true
			}
		}

		return true
	})

	devices := []string{}
	seenDevices := map[string]bool{}

	for _, deviceType := range builtinDeviceTypes {
		walk(root, func(el *etree.Element) bool {
			if !strings.Contains(el.Tag, deviceType) {
				return true
			}

			name := deviceType
			// Prefer a user-assigned name over the bare type tag
			if userName := el.FindElement(".//UserName"); userName != nil && userName.Text() != "" {
				name = userName.Text()
			} else if attr := el.SelectAttrValue("Name", ""); attr != "" {
				name = attr
			}

			if name != "" && !seenDevices[name] {
				devices = append(devices, name)
				seenDevices[name] = true
			}
			return true
		})
	}

	return plugins, devices
}

// extractSamples collects sample file references from audio clip sources
// and standalone SampleRef elements, deduplicated by path in discovery
// order.
func extractSamples(root *etree.Element) []string {
	samples := []string{}
	seen := map[string]bool{}

	add := func(path string) {
		if path != "" && !seen[path] {
			samples = append(samples, path)
			seen[path] = true
		}
	}

	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, tagAudioClip) {
			if source := el.FindElement(".//Source"); source != nil {
				walk(source, func(pathEl *etree.Element) bool {
					if strings.Contains(pathEl.Tag, patRelativePath) {
						add(pathEl.SelectAttrValue("Dir", ""))
					} else if strings.Contains(pathEl.Tag, "Path") && pathEl.Text() != "" {
						add(pathEl.Text())
					}
					return true
				})
			}
		}

		if strings.Contains(el.Tag, patSampleRef) {
			path := el.SelectAttrValue("Path", "")
			if path == "" {
				path = el.SelectAttrValue("File", "")
			}
			add(path)
		}

		return true
	})

	return samples
}

func hasAutomation(root *etree.Element) bool {
	found := false
	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, patAutomationEnvelope) || strings.Contains(el.Tag, patEnvelope) {
			found = true
			return false
		}
		return true
	})
	return found
}

type exportInfo struct {
	filenames       []string
	annotation      *string
	masterTrackName *string
}

// stemOf strips directories and the extension from filename-like values,
// keeping bare names untouched.
func stemOf(val string) string {
	if !strings.ContainsAny(val, `/\`) {
		return val
	}
	base := filepath.Base(strings.ReplaceAll(val, `\`, `/`))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// extractExportInfo scans export logs and render settings for candidate
// export filenames, plus the freeform annotation and a customized master
// track display name (default placeholder names are skipped).
func extractExportInfo(root *etree.Element) exportInfo {
	info := exportInfo{filenames: []string{}}
	seen := map[string]bool{}

	addFilename := func(val string) {
		if val == "" || seen[val] {
			return
		}
		name := stemOf(val)
		if name != "" && !seen[name] {
			info.filenames = append(info.filenames, name)
			seen[name] = true
		}
		seen[val] = true
	}

	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, patExport) {
			for _, attr := range []string{"FileName", "Name", "Path", "File"} {
				addFilename(el.SelectAttrValue(attr, ""))
			}
			for _, child := range el.ChildElements() {
				if strings.Contains(child.Tag, "FileName") || strings.Contains(child.Tag, "Name") {
					val := child.SelectAttrValue("Value", "")
					if val == "" {
						val = child.Text()
					}
					addFilename(val)
				}
			}
		}
		return true
	})

	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, patRenderSettings) {
			for _, child := range el.ChildElements() {
				if strings.Contains(child.Tag, "FileName") || strings.Contains(child.Tag, "OutputFileName") {
					val := child.SelectAttrValue("Value", "")
					if val == "" {
						val = child.Text()
					}
					addFilename(val)
				}
			}
		}
		return true
	})

	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, patAnnotation) {
			val := el.SelectAttrValue("Value", "")
			if val == "" {
				val = el.Text()
			}
			if val != "" {
				info.annotation = &val
				return false
			}
		}
		return true
	})

	walk(root, func(el *etree.Element) bool {
		if !strings.Contains(el.Tag, tagMasterTrack) {
			return true
		}
		walk(el, func(nameEl *etree.Element) bool {
			if !strings.Contains(nameEl.Tag, "Name") && !strings.Contains(nameEl.Tag, "UserName") {
				return true
			}
			val := strings.TrimSpace(nameEl.SelectAttrValue("Value", ""))
			lower := strings.ToLower(val)
			if val != "" && lower != "master" && lower != "a-master" {
				info.masterTrackName = &val
				return false
			}
			return true
		})
		return info.masterTrackName == nil
	})

	return info
}
