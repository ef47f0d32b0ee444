package whisper

import "context"

type TranscriptionRequest struct {
	AudioPath string
	ModelPath string
	Language  string
}

// Segment is one time-aligned chunk of recognized speech. Start and End are
// offsets into the audio in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the full recognition result for one audio file.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

type Engine interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*Transcript, error)
}
