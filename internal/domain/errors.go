package domain

import "errors"

var (
	// ErrDevice marks capture device failures. They are absorbed by the audio source.
	ErrDevice = errors.New("audio device error")

	// ErrStreaming marks recognition channel failures. They end the pipeline.
	ErrStreaming = errors.New("streaming error")

	// ErrResponseCall marks a failed response generation for a single turn.
	ErrResponseCall = errors.New("response call error")

	ErrSessionNotStreaming = errors.New("session is not streaming")
	ErrSourceClosed        = errors.New("audio source closed")
)
