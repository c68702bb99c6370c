package capture

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/samber/lo"

	"screenguide/internal/domain"
)

// DefaultAudioInput is always offered first and maps to the system default.
var DefaultAudioInput = domain.AudioInput{ID: "default", Label: "System default"}

// ListAudioInputs enumerates PulseAudio/PipeWire sources using pactl. Monitor
// sources are listed after real microphones.
func ListAudioInputs(ctx context.Context, command string) ([]domain.AudioInput, error) {
	if command == "" {
		command = "pactl"
	}
	output, err := exec.CommandContext(ctx, command, "list", "short", "sources").Output()
	if err != nil {
		return []domain.AudioInput{DefaultAudioInput}, fmt.Errorf("list audio inputs: %w", err)
	}
	return parseSources(string(output)), nil
}

// parseSources reads `pactl list short sources` output:
// index, name, driver, sample spec, state separated by tabs.
func parseSources(output string) []domain.AudioInput {
	var inputs []domain.AudioInput
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSpace(fields[1])
		if name == "" {
			continue
		}
		inputs = append(inputs, domain.AudioInput{ID: name, Label: sourceLabel(name)})
	}

	inputs = lo.UniqBy(inputs, func(in domain.AudioInput) string { return in.ID })
	inputs = lo.Reject(inputs, func(in domain.AudioInput, _ int) bool { return in.ID == DefaultAudioInput.ID })
	mics, monitors := lo.FilterReject(inputs, func(in domain.AudioInput, _ int) bool {
		return !strings.HasSuffix(in.ID, ".monitor")
	})
	return append(append([]domain.AudioInput{DefaultAudioInput}, mics...), monitors...)
}

func sourceLabel(name string) string {
	label := name
	for _, prefix := range []string{"alsa_input.", "alsa_output.", "bluez_input.", "bluez_source."} {
		label = strings.TrimPrefix(label, prefix)
	}
	if strings.HasSuffix(label, ".monitor") {
		return strings.TrimSuffix(label, ".monitor") + " (monitor)"
	}
	return label
}
