package als

import (
	"strconv"

	"github.com/beevik/etree"
)

// pitchClassNames maps root-note indices 0-11 to pitch class names
var pitchClassNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// scaleNames maps scale-name indices 0-24 to named scales
var scaleNames = []string{
	"Major",
	"Minor",
	"Dorian",
	"Mixolydian",
	"Lydian",
	"Phrygian",
	"Locrian",
	"Diminished",
	"Whole Half",
	"Whole Tone",
	"Minor Blues",
	"Minor Pentatonic",
	"Major Pentatonic",
	"Harmonic Minor",
	"Melodic Minor",
	"Super Locrian",
	"Bhairav",
	"Hungarian Minor",
	"Minor Gypsy",
	"Hirojoshi",
	"In-Sen",
	"Iwato",
	"Kumoi",
	"Pelog",
	"Spanish",
}

type keyInfo struct {
	key     *string
	scale   *string
	isInKey *bool
}

// scaleIndices reads the Root/Name value pair from a ScaleInformation
// element.
func scaleIndices(scaleEl *etree.Element) (rootIdx, nameIdx int, ok bool) {
	rootVal, nameVal := "", ""
	for _, sub := range scaleEl.ChildElements() {
		switch sub.Tag {
		case "Root":
			rootVal = sub.SelectAttrValue("Value", "")
		case "Name":
			nameVal = sub.SelectAttrValue("Value", "")
		}
	}
	if rootVal == "" || nameVal == "" {
		return 0, 0, false
	}
	r, err := strconv.Atoi(rootVal)
	if err != nil {
		return 0, 0, false
	}
	n, err := strconv.Atoi(nameVal)
	if err != nil {
		return 0, 0, false
	}
	return r, n, true
}

func decodeScale(rootIdx, nameIdx int) (key, scale *string) {
	if rootIdx >= 0 && rootIdx < len(pitchClassNames) {
		k := pitchClassNames[rootIdx]
		key = &k
	}
	if nameIdx >= 0 && nameIdx < len(scaleNames) {
		s := scaleNames[nameIdx]
		scale = &s
	}
	return key, scale
}

// resolveKeyInfo resolves musical key and scale with a strict priority:
//
//  1. A global ScaleInformation block under LiveSet wins outright. Root=0/
//     Name=0 counts as "set" there only when the companion InKey flag is
//     explicitly true - otherwise 0/0 means unset.
//  2. Otherwise, if every clip that reports a scale agrees on the same
//     (key, scale) pair, that pair is adopted, with in-key reported as
//     not applicable. At clip level 0/0 is always unset, regardless of
//     any flag.
//  3. Anything else (no global scale, clips disagree, no clips report a
//     scale) resolves to nil for all three fields.
//
// The asymmetric treatment of 0/0 between the two levels mirrors the
// project file's observed behavior and is deliberately not normalized.
func resolveKeyInfo(root *etree.Element) keyInfo {
	var info keyInfo

	var globalKey, globalScale *string
	var globalInKey *bool

	if liveset := findLiveSet(root); liveset != nil {
		for _, child := range liveset.ChildElements() {
			if child.Tag == "InKey" {
				val := child.SelectAttrValue("Value", "false") == "true"
				globalInKey = &val
				break
			}
		}

		for _, child := range liveset.ChildElements() {
			if child.Tag != "ScaleInformation" {
				continue
			}
			if rootIdx, nameIdx, ok := scaleIndices(child); ok {
				inKeySet := globalInKey != nil && *globalInKey
				if inKeySet || rootIdx != 0 || nameIdx != 0 {
					globalKey, globalScale = decodeScale(rootIdx, nameIdx)
				}
			}
			break
		}
	}

	if globalKey != nil || globalScale != nil {
		info.key = globalKey
		info.scale = globalScale
		info.isInKey = globalInKey
		return info
	}

	// Collect per-clip scales; only clips with a non-default scale count
	type clipScale struct {
		key   *string
		scale *string
	}
	var clipScales []clipScale

	walk(root, func(el *etree.Element) bool {
		if el.Tag != tagAudioClip && el.Tag != tagMidiClip {
			return true
		}

		var scaleEl *etree.Element
		walk(el, func(sub *etree.Element) bool {
			if sub.Tag == "ScaleInformation" {
				scaleEl = sub
				return false
			}
			return true
		})
		if scaleEl == nil {
			return true
		}

		if rootIdx, nameIdx, ok := scaleIndices(scaleEl); ok {
			if rootIdx != 0 || nameIdx != 0 {
				key, scale := decodeScale(rootIdx, nameIdx)
				if key != nil || scale != nil {
					clipScales = append(clipScales, clipScale{key: key, scale: scale})
				}
			}
		}
		return true
	})

	if len(clipScales) == 0 {
		return info
	}

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}

	first := clipScales[0]
	for _, cs := range clipScales[1:] {
		if deref(cs.key) != deref(first.key) || deref(cs.scale) != deref(first.scale) {
			return info
		}
	}

	// All reporting clips agree; in-key is a clip-level convention here,
	// not a project toggle, so it stays unset.
	info.key = first.key
	info.scale = first.scale
	return info
}
