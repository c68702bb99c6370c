package domain

import (
	"encoding/base64"
	"errors"
)

// Status models the capture/analysis lifecycle shown to the user.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCapturing Status = "capturing"
	StatusAnalyzing Status = "analyzing"
	StatusSpeaking  Status = "speaking"
	StatusError     Status = "error"
)

// StatusReason provides a structured reason for status transitions.
type StatusReason string

const (
	ReasonStartup            StatusReason = "startup"
	ReasonCaptureStarted     StatusReason = "capture_started"
	ReasonCaptureFailed      StatusReason = "capture_failed"
	ReasonCaptureStopped     StatusReason = "capture_stopped"
	ReasonScreenShareEnded   StatusReason = "screen_share_ended"
	ReasonPermissionRevoked  StatusReason = "permission_revoked"
	ReasonMicrophoneEnded    StatusReason = "microphone_ended"
	ReasonAnalysisStarted    StatusReason = "analysis_started"
	ReasonAnalysisCompleted  StatusReason = "analysis_completed"
	ReasonAnalysisFailed     StatusReason = "analysis_failed"
	ReasonNarrationStarted   StatusReason = "narration_started"
	ReasonNarrationCompleted StatusReason = "narration_completed"
	ReasonNarrationFailed    StatusReason = "narration_failed"
)

// ErrorCode identifies user-visible notifications.
type ErrorCode string

const (
	ErrorCodeStartup                    ErrorCode = "startup"
	ErrorCodeCaptureFailed              ErrorCode = "capture_failed"
	ErrorCodeAnalysisFailed             ErrorCode = "analysis_failed"
	ErrorCodeNarrationFailed            ErrorCode = "narration_failed"
	ErrorCodeMicrophonePermissionDenied ErrorCode = "microphone_permission_denied"
	ErrorCodeAudioStream                ErrorCode = "audio_stream"
	ErrorCodeClipboard                  ErrorCode = "clipboard"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrServiceError      = errors.New("service error")
	ErrNoSpeechTimeout   = errors.New("no speech timeout")
	ErrNoFrame           = errors.New("no frame available yet")
	ErrAudioEnded        = errors.New("microphone stream ended")
)

// Notification is a user-facing error message, the equivalent of a toast.
type Notification struct {
	Code   ErrorCode `json:"code"`
	Title  string    `json:"title"`
	Detail string    `json:"detail"`
}

// TerminationReason explains why a transcription session ended.
type TerminationReason string

const (
	TerminationBenign           TerminationReason = "benign"
	TerminationPermissionDenied TerminationReason = "permission_denied"
	TerminationCaptureLost      TerminationReason = "capture_lost"
	TerminationOther            TerminationReason = "other"
)

// TerminationReasonFor classifies a transcription error.
func TerminationReasonFor(err error) TerminationReason {
	switch {
	case err == nil, errors.Is(err, ErrNoSpeechTimeout):
		return TerminationBenign
	case errors.Is(err, ErrPermissionDenied):
		return TerminationPermissionDenied
	case errors.Is(err, ErrAudioEnded), errors.Is(err, ErrDeviceUnavailable):
		return TerminationCaptureLost
	default:
		return TerminationOther
	}
}

// TranscriptKind identifies whether a provider segment is provisional or final.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// TranscriptionEventKind separates snapshots from the terminal event.
type TranscriptionEventKind string

const (
	TranscriptionSnapshot   TranscriptionEventKind = "snapshot"
	TranscriptionTerminated TranscriptionEventKind = "terminated"
)

// TranscriptionEvent is emitted by a transcription session. Snapshot events
// carry the full transcript since the session started. The terminated event
// is always last and carries a reason.
type TranscriptionEvent struct {
	Kind   TranscriptionEventKind
	Text   string
	Reason TerminationReason
	Err    error
}

// Frame is one still image sampled from the screen stream.
type Frame struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// DataURI encodes the frame as data:<mime>;base64,<payload>.
func (f Frame) DataURI() string {
	return "data:" + f.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// AdviceKind selects the prompt used for an advice request.
type AdviceKind string

const (
	AdviceContextualHelp      AdviceKind = "contextual_help"
	AdviceInitialInstructions AdviceKind = "initial_instructions"
	AdviceScreenSummary       AdviceKind = "screen_summary"
)

// AdviceRequest pairs a frame with the transcript it was taken alongside.
type AdviceRequest struct {
	Kind       AdviceKind
	Frame      Frame
	Transcript string
}

// Advice is the model's free-text answer.
type Advice struct {
	Text string `json:"text"`
}

// Audio is an encoded narration payload.
type Audio struct {
	Data     []byte
	MIMEType string
}

// AudioInput is a selectable microphone source.
type AudioInput struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Snapshot summarizes the assistant state for presentation.
type Snapshot struct {
	Status       Status `json:"status"`
	Active       bool   `json:"active"`
	SessionID    string `json:"sessionId,omitempty"`
	Transcript   string `json:"transcript"`
	Instructions string `json:"instructions"`
	HasNarration bool   `json:"hasNarration"`
	Message      string `json:"message,omitempty"`
}
