package domain

type SessionState int32

const (
	SessionOpen SessionState = iota
	SessionStreaming
	SessionEnded
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionStreaming:
		return "streaming"
	case SessionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// StreamConfig is fixed when a recognition session starts.
type StreamConfig struct {
	LanguageCode string
	SampleRate   int
	Encoding     string
}

const EncodingPCM = "pcm"

func DefaultStreamConfig(language string) StreamConfig {
	return StreamConfig{
		LanguageCode: language,
		SampleRate:   SampleRate,
		Encoding:     EncodingPCM,
	}
}
