package speech

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
)

// maxQueuedChunks bounds audio held while no provider stream is attached,
// which is roughly one second at the default chunk size.
const maxQueuedChunks = 8

// audioFeed is the single reader of a microphone session. Transcription
// sessions come and go across restarts; the feed outlives them so that a
// stopped session never steals audio meant for its successor.
type audioFeed struct {
	mu    sync.Mutex
	queue [][]byte
	err   error

	ready chan struct{}
	done  chan struct{}
}

func newAudioFeed() *audioFeed {
	return &audioFeed{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// read copies microphone audio into the queue until the microphone ends. A
// clean EOF still means the capture is gone and is reported as
// domain.ErrAudioEnded.
func (f *audioFeed) read(audio io.Reader, chunkSize int) {
	defer close(f.done)

	for {
		buf := make([]byte, chunkSize)
		n, err := audio.Read(buf)
		if n > 0 {
			f.push(buf[:n])
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			err = domain.ErrAudioEnded
		} else {
			err = fmt.Errorf("audio capture error: %w", err)
		}
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		return
	}
}

func (f *audioFeed) push(chunk []byte) {
	f.mu.Lock()
	if len(f.queue) >= maxQueuedChunks {
		f.queue = f.queue[1:]
	}
	f.queue = append(f.queue, chunk)
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *audioFeed) next() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, false
	}
	chunk := f.queue[0]
	f.queue = f.queue[1:]
	return chunk, true
}

func (f *audioFeed) readErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// errStreamClosed marks a pump that stopped because the provider went away.
var errStreamClosed = errors.New("transcription stream closed")

// pumpAudioChunks forwards queued audio into the provider stream until the
// feed ends, the stream rejects audio, or stop is closed. It returns nil only
// when stop was closed.
func pumpAudioChunks(feed *audioFeed, stream ports.StreamingSession, stop <-chan struct{}) error {
	for {
		if err := flush(feed, stream, stop); err != nil {
			return err
		}
		select {
		case <-stop:
			return nil
		case <-feed.ready:
		case <-feed.done:
			if err := flush(feed, stream, stop); err != nil {
				return err
			}
			return feed.readErr()
		}
	}
}

func flush(feed *audioFeed, stream ports.StreamingSession, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		chunk, ok := feed.next()
		if !ok {
			return nil
		}
		if err := stream.SendAudio(chunk); err != nil {
			return fmt.Errorf("%w: %v", errStreamClosed, err)
		}
	}
}
