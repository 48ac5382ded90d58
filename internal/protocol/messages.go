package protocol

import "time"

const (
	SubjectGenerateRequest = "dictation.generate.request"
	SubjectPreviewRequest  = "dictation.preview.request"
	SubjectTrackReady      = "dictation.track.ready"
	SubjectTrackFailed     = "dictation.track.failed"

	StreamTracks = "DICTATION_TRACKS"
)

// Voice selects the speaker for a whole request.
type Voice struct {
	Language string `json:"language"`
	Voice    string `json:"voice,omitempty"`
}

type VocabularyOptions struct {
	Words          []string `json:"words"`
	Rate           string   `json:"rate,omitempty"`
	Repeats        int      `json:"repeats,omitempty"`
	SilenceSeconds int      `json:"silence_seconds,omitempty"`
	Shuffle        *bool    `json:"shuffle,omitempty"`
}

type PassageOptions struct {
	Text    string `json:"text"`
	Rate    string `json:"rate,omitempty"`
	Repeats int    `json:"repeats,omitempty"`
}

// GenerateRequest asks for practice tracks. Zero-valued knobs fall back to
// the daemon's practice defaults.
type GenerateRequest struct {
	JobID      string             `json:"job_id,omitempty"`
	Name       string             `json:"name,omitempty"`
	Voice      Voice              `json:"voice"`
	Vocabulary *VocabularyOptions `json:"vocabulary,omitempty"`
	Passage    *PassageOptions    `json:"passage,omitempty"`
	Save       bool               `json:"save,omitempty"`
}

// TrackInfo describes one rendered track.
type TrackInfo struct {
	Part        string  `json:"part"`
	DurationSec float64 `json:"duration_sec"`
	Bytes       int     `json:"bytes"`
	ContentType string  `json:"content_type"`
	SavedAs     string  `json:"saved_as,omitempty"`
}

// UnitFailure names the word or sentence that stopped a track.
type UnitFailure struct {
	Part  string `json:"part"`
	Kind  string `json:"kind,omitempty"`
	Index int    `json:"index"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error"`
}

type GenerateReply struct {
	JobID    string        `json:"job_id"`
	Tracks   []TrackInfo   `json:"tracks"`
	Failures []UnitFailure `json:"failures,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// TrackEvent is broadcast on SubjectTrackReady and SubjectTrackFailed.
type TrackEvent struct {
	JobID     string       `json:"job_id"`
	Track     *TrackInfo   `json:"track,omitempty"`
	Failure   *UnitFailure `json:"failure,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

type PreviewRequest struct {
	Kind  string `json:"kind"`
	Text  string `json:"text"`
	Rate  string `json:"rate,omitempty"`
	Voice Voice  `json:"voice"`
}

type PreviewReply struct {
	Audio       []byte `json:"audio,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Error       string `json:"error,omitempty"`
}
