// Package playback plays narration audio on the default output device.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"screenguide/internal/domain"
)

// DefaultSampleRate is used for the speaker when no narration has been played yet.
const DefaultSampleRate = beep.SampleRate(44100)

// Player implements ports.Player with the beep speaker. Playback is serialized.
type Player struct {
	mu       sync.Mutex
	rate     beep.SampleRate
	ready    bool
	initFunc func(beep.SampleRate, int) error
}

func NewPlayer() *Player {
	return &Player{rate: DefaultSampleRate, initFunc: speaker.Init}
}

func (p *Player) Play(ctx context.Context, audio domain.Audio) error {
	if len(audio.Data) == 0 {
		return errors.New("no audio to play")
	}
	if !isMP3(audio.MIMEType) {
		return fmt.Errorf("unsupported audio format %q", audio.MIMEType)
	}

	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(audio.Data)))
	if err != nil {
		return fmt.Errorf("decode narration: %w", err)
	}
	defer streamer.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureSpeaker(format.SampleRate); err != nil {
		return err
	}

	var source beep.Streamer = streamer
	if format.SampleRate != p.rate {
		source = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(source, beep.Callback(func() { close(done) }))}
	speaker.Play(ctrl)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}
}

func (p *Player) ensureSpeaker(rate beep.SampleRate) error {
	if p.ready {
		return nil
	}
	if rate > 0 {
		p.rate = rate
	}
	if err := p.initFunc(p.rate, p.rate.N(time.Second/10)); err != nil {
		return fmt.Errorf("%w: init speaker: %v", domain.ErrDeviceUnavailable, err)
	}
	p.ready = true
	return nil
}

func isMP3(mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "", "audio/mpeg", "audio/mp3":
		return true
	default:
		return false
	}
}
