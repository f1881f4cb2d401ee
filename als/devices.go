package als

// builtinDeviceTypes is the allowlist of known built-in device tag names:
// rack containers, instruments, audio effects and MIDI tools. Device
// detection matches these as substrings against local tag names, in this
// order.
var builtinDeviceTypes = []string{
	"AudioEffectGroupDevice",
	"MidiEffectGroupDevice",
	"InstrumentGroupDevice",
	"DrumGroupDevice",
	"AudioEffectDevice",
	"MidiEffectDevice",
	"InstrumentDevice",
	"Operator",
	"Simpler",
	"Sampler",
	"Impulse",
	"DrumRack",
	"Compressor",
	"Gate",
	"EQ8",
	"EQThree",
	"AutoFilter",
	"AutoPan",
	"Chorus",
	"Flanger",
	"Phaser",
	"Reverb",
	"Delay",
	"BeatRepeat",
	"Looper",
	"Utility",
	"Limiter",
	"MultibandCompressor",
	"GlueCompressor",
	"Saturator",
	"Erosion",
	"Redux",
	"Overdrive",
	"Cabinet",
	"Amp",
	"DynamicTube",
	"FrequencyShifter",
	"GrainDelay",
	"PingPongDelay",
	"SimpleDelay",
	"Spectrum",
	"Tuner",
	"Vocoder",
	"Arpeggiator",
	"Chord",
	"NoteLength",
	"Pitch",
	"Random",
	"Scale",
	"Velocity",
	"MidiArpeggiator",
	"MidiChord",
	"MidiNoteLength",
	"MidiPitcher",
	"MidiRandom",
	"MidiScale",
	"MidiVelocity",
	"Analog",
	"Collision",
	"Electric",
	"Tension",
	"Wavetable",
	"MidiArp",
}
