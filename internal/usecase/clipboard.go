package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"screenguide/internal/domain"
)

var errClipboardUnavailable = errors.New("clipboard is not available")

// CopyInstructions writes the current instructions to the clipboard and
// returns the copied text. Nothing is copied when instructions are empty.
func (a *Assistant) CopyInstructions(ctx context.Context) (string, error) {
	a.mu.Lock()
	text := strings.TrimSpace(a.instructions)
	a.mu.Unlock()
	if text == "" {
		return "", nil
	}
	if a.clipboard == nil {
		return "", errClipboardUnavailable
	}

	if err := a.clipboard.SetText(ctx, text); err != nil {
		a.mu.Lock()
		a.notifyLocked(domain.Notification{
			Code:   domain.ErrorCodeClipboard,
			Title:  "Copy Failed",
			Detail: "Instructions are ready but the clipboard write failed.",
		})
		a.mu.Unlock()
		return "", fmt.Errorf("copy instructions: %w", err)
	}
	return text, nil
}
