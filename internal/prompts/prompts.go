// Package prompts renders the text half of an advice request. The screen
// frame travels next to it as an inline image.
package prompts

import (
	"fmt"
	"strings"
	"text/template"

	"screenguide/internal/domain"
)

var templates = template.Must(template.New("prompts").Parse(`
{{- define "contextual_help" -}}
You are an AI assistant that provides real-time instructions to the user based on their screen content and audio input.

Analyze the user's screen content and audio transcription to understand their current task and provide contextually relevant instructions.

Screen Content: the attached screenshot.
Audio Transcription: {{ .Transcript }}

Instructions:
{{- end -}}

{{- define "initial_instructions" -}}
You are an AI assistant designed to guide new users based on their shared screen and audio. Analyze the screen content and the user's spoken input to provide initial instructions on how the application can assist them.

Screen Content: the attached screenshot.
Audio Input: {{ .Transcript }}

Instructions:
{{- end -}}

{{- define "screen_summary" -}}
You are an AI assistant that summarizes screen content for the user.

The user will provide a screen capture and an audio transcription. You must use these to create a short summary of what is on the user's screen.

Screen Content: the attached screenshot.
Audio Transcription: {{ .Transcript }}

Respond in the first person.
I see that...
{{- end -}}
`))

// Render returns the prompt text for kind with the transcript filled in.
func Render(kind domain.AdviceKind, transcript string) (string, error) {
	if templates.Lookup(string(kind)) == nil {
		return "", fmt.Errorf("unknown advice kind %q", kind)
	}

	var b strings.Builder
	data := struct{ Transcript string }{Transcript: strings.TrimSpace(transcript)}
	if err := templates.ExecuteTemplate(&b, string(kind), data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", kind, err)
	}
	return b.String(), nil
}
