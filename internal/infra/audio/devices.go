package audio

type InputDevice struct {
	Name              string
	Channels          int
	DefaultSampleRate float64
	IsDefault         bool
}
