package als

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// extractExtendedMetadata runs the deep walk behind ParserConfig.
// ExtractExtended. Aggregates (unique types, averages) are computed once
// at the end from the raw per-item lists, with explicit guards against
// empty collections.
func extractExtendedMetadata(root *etree.Element) *ExtendedMetadata {
	extended := &ExtendedMetadata{
		DeviceChains: []DeviceChainInfo{},
		Clips:        []ClipInfo{},
	}

	extended.DeviceChains = extractDeviceChains(root)
	allDevices := map[string]bool{}
	for _, dc := range extended.DeviceChains {
		extended.TotalDeviceCount += dc.DeviceCount
		for _, d := range dc.Devices {
			allDevices[d] = true
		}
	}
	extended.UniqueDeviceTypes = len(allDevices)
	if len(extended.DeviceChains) > 0 {
		extended.AvgDevicesPerTrack = float64(extended.TotalDeviceCount) / float64(len(extended.DeviceChains))
	}

	extended.Clips = extractClips(root)
	totalDuration := 0.0
	for _, c := range extended.Clips {
		switch c.ClipType {
		case "audio":
			extended.AudioClipCount++
		case "midi":
			extended.MidiClipCount++
		}
		if c.Duration > 0 {
			totalDuration += c.Duration
		}
	}
	extended.TotalClipCount = len(extended.Clips)
	if len(extended.Clips) > 0 {
		extended.AvgClipDuration = totalDuration / float64(len(extended.Clips))
	}

	extended.HasSends, extended.SendCount, extended.HasSidechain = extractRoutingInfo(root)
	extended.AutomationLaneCount, extended.AutomationPointCount = extractAutomationInfo(root)
	extended.GroovePoolSize = extractGroovePoolSize(root)
	extended.SceneCount = extractSceneCount(root)

	keyInfo := resolveKeyInfo(root)
	extended.MusicalKey = keyInfo.key
	extended.ScaleType = keyInfo.scale

	extended.PluginParameterCount = countPluginParameters(root)

	return extended
}

// extractDeviceChains enumerates tracks of each of the four track types
// and lists the devices inside each track's device-chain container.
// Tracks without devices are skipped.
func extractDeviceChains(root *etree.Element) []DeviceChainInfo {
	chains := []DeviceChainInfo{}

	trackTypes := []struct {
		tag       string
		trackType string
	}{
		{tagAudioTrack, "audio"},
		{tagMidiTrack, "midi"},
		{tagReturnTrack, "return"},
		{tagMasterTrack, "master"},
	}

	for _, tt := range trackTypes {
		walk(root, func(trackEl *etree.Element) bool {
			if !strings.Contains(trackEl.Tag, tt.tag) {
				return true
			}

			chain := DeviceChainInfo{TrackType: tt.trackType, Devices: []string{}}

			walk(trackEl, func(nameEl *etree.Element) bool {
				if strings.Contains(nameEl.Tag, "UserName") || strings.Contains(nameEl.Tag, "EffectiveName") {
					if val := nameEl.SelectAttrValue("Value", ""); val != "" {
						chain.TrackName = val
						return false
					}
				}
				return true
			})

			walk(trackEl, func(chainEl *etree.Element) bool {
				if !strings.Contains(chainEl.Tag, "DeviceChain") {
					return true
				}
				for _, device := range chainEl.ChildElements() {
					if name := deviceName(device); name != "" {
						chain.Devices = append(chain.Devices, name)
						if strings.Contains(device.Tag, "Plugin") {
							chain.PluginCount++
						}
					}
				}
				return true
			})

			chain.DeviceCount = len(chain.Devices)
			chain.HasPlugins = chain.PluginCount > 0

			if chain.DeviceCount > 0 {
				chains = append(chains, chain)
			}
			return true
		})
	}

	return chains
}

// deviceName resolves a display name for a device element: the
// user-assigned name when present, otherwise the bare type tag (etree
// already strips the namespace prefix into Space).
func deviceName(device *etree.Element) string {
	name := ""
	walk(device, func(nameEl *etree.Element) bool {
		if strings.Contains(nameEl.Tag, "UserName") {
			if val := nameEl.SelectAttrValue("Value", ""); val != "" {
				name = val
				return false
			}
		}
		return true
	})
	if name != "" {
		return name
	}
	return device.Tag
}

// extractClips enumerates all audio and MIDI clips with their timing,
// loop flag and color.
func extractClips(root *etree.Element) []ClipInfo {
	clips := []ClipInfo{}

	clipTypes := []struct {
		tag      string
		clipType string
	}{
		{tagAudioClip, "audio"},
		{tagMidiClip, "midi"},
	}

	for _, ct := range clipTypes {
		walk(root, func(clipEl *etree.Element) bool {
			if clipEl.Tag != ct.tag {
				return true
			}

			clip := ClipInfo{ClipType: ct.clipType, ColorIndex: -1}

			walk(clipEl, func(nameEl *etree.Element) bool {
				if strings.Contains(nameEl.Tag, "Name") {
					if val := nameEl.SelectAttrValue("Value", ""); val != "" {
						clip.Name = val
						return false
					}
				}
				return true
			})

			for _, child := range clipEl.ChildElements() {
				switch child.Tag {
				case "CurrentStart":
					if val, ok := attrFloat(child, "Value"); ok {
						clip.StartTime = val
					}
				case "CurrentEnd":
					if val, ok := attrFloat(child, "Value"); ok {
						clip.EndTime = val
					}
				case "Loop":
					for _, loopChild := range child.ChildElements() {
						if strings.Contains(loopChild.Tag, "LoopOn") {
							clip.IsLooping = loopChild.SelectAttrValue("Value", "") == "true"
						}
					}
				case "ColorIndex":
					if val, err := strconv.Atoi(child.SelectAttrValue("Value", "-1")); err == nil {
						clip.ColorIndex = val
					}
				}
			}

			clip.Duration = clip.EndTime - clip.StartTime
			clips = append(clips, clip)
			return true
		})
	}

	return clips
}

// extractRoutingInfo derives send usage from return-track presence and
// scans for explicitly enabled sidechain routing.
func extractRoutingInfo(root *etree.Element) (hasSends bool, sendCount int, hasSidechain bool) {
	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, tagReturnTrack) {
			sendCount++
		}
		return true
	})
	hasSends = sendCount > 0

	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, "Sidechain") || strings.Contains(el.Tag, "SidechainOn") {
			if el.SelectAttrValue("Value", "") == "true" {
				hasSidechain = true
				return false
			}
		}
		return true
	})

	return hasSends, sendCount, hasSidechain
}

// extractAutomationInfo counts automation envelopes (lanes) and the
// float/bool event children inside each (points).
func extractAutomationInfo(root *etree.Element) (laneCount, pointCount int) {
	walk(root, func(el *etree.Element) bool {
		if !strings.Contains(el.Tag, patAutomationEnvelope) {
			return true
		}
		laneCount++
		walk(el, func(pointEl *etree.Element) bool {
			if strings.Contains(pointEl.Tag, "FloatEvent") || strings.Contains(pointEl.Tag, "BoolEvent") {
				pointCount++
			}
			return true
		})
		return true
	})
	return laneCount, pointCount
}

func extractGroovePoolSize(root *etree.Element) int {
	count := 0
	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, "GroovePool") {
			for _, groove := range el.ChildElements() {
				if strings.Contains(groove.Tag, "Groove") {
					count++
				}
			}
		}
		return true
	})
	return count
}

func extractSceneCount(root *etree.Element) int {
	count := 0
	walk(root, func(el *etree.Element) bool {
		if strings.Contains(el.Tag, "Scenes") {
			for _, scene := range el.ChildElements() {
				if strings.Contains(scene.Tag, "Scene") {
					count++
				}
			}
		}
		return true
	})
	return count
}

// countPluginParameters counts parameter slots nested under plugin
// devices, a cheap complexity proxy.
func countPluginParameters(root *etree.Element) int {
	count := 0
	walk(root, func(el *etree.Element) bool {
		if !strings.Contains(el.Tag, patPluginDevice) {
			return true
		}
		walk(el, func(param *etree.Element) bool {
			if strings.Contains(param.Tag, "ParameterSlot") || strings.Contains(param.Tag, "PluginFloatParameter") {
				count++
			}
			return true
		})
		return true
	})
	return count
}
