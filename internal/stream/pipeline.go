package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"
)

// DefaultMinAudioChunkBytes is the coalescing threshold below which an
// AudioFrame is not flushed, avoiding incomplete codec frames that glitch
// on playback.
const DefaultMinAudioChunkBytes = 1024

// sentenceQueueDepth bounds the number of sentences waiting for synthesis;
// once full, PushToken/Finalize block, applying back-pressure to the LLM
// token consumer rather than growing an unbounded queue.
const sentenceQueueDepth = 8

// Frame is one coalesced chunk of synthesized audio ready to leave the
// pipeline. Final is set on the last Frame when the TTS stream ends or
// reports its final event; a turn whose context is cancelled, or whose TTS
// stream reports an error, ends without a Final frame.
type Frame struct {
	Payload []byte
	Final   bool
}

// Pipeline turns a stream of LLM token deltas into an ordered stream of
// Frames, via a SentenceBuffer feeding a bounded queue of sentences into a
// single TTSProvider stream. A nil provider makes the pipeline a no-op:
// Frames() closes immediately, for text-only deployments.
type Pipeline struct {
	provider      TTSProvider
	voiceID       string
	modelID       string
	settings      TTSSettings
	minChunkBytes int

	ttsStream TTSStream
	sentences *SentenceBuffer
	queue     chan string
	frames    chan Frame
	done      chan struct{}

	closeOnce sync.Once
}

func NewPipeline(provider TTSProvider, voiceID, modelID string, settings TTSSettings) *Pipeline {
	return &Pipeline{
		provider:      provider,
		voiceID:       voiceID,
		modelID:       modelID,
		settings:      settings,
		minChunkBytes: DefaultMinAudioChunkBytes,
		sentences:     NewSentenceBuffer(),
		queue:         make(chan string, sentenceQueueDepth),
		frames:        make(chan Frame, sentenceQueueDepth),
		done:          make(chan struct{}),
	}
}

// Start opens the underlying TTS stream (if any) and launches the worker
// that forwards its audio into coalesced Frames. Call once per turn.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.provider == nil {
		close(p.frames)
		close(p.done)
		return nil
	}
	ttsStream, err := p.provider.StartStream(ctx, p.voiceID, p.modelID, p.settings)
	if err != nil {
		close(p.frames)
		close(p.done)
		return err
	}
	p.ttsStream = ttsStream
	go p.run(ctx)
	return nil
}

// PushToken feeds one LLM token delta into the sentence buffer, enqueuing
// any sentence it completes. It blocks, respecting ctx, when the sentence
// queue is full.
func (p *Pipeline) PushToken(ctx context.Context, token string) error {
	if p.provider == nil {
		return nil
	}
	sentence, ok := p.sentences.Push(token)
	if !ok {
		return nil
	}
	return p.enqueue(ctx, sentence)
}

// Finalize flushes any trailing partial sentence and closes the input side
// of the pipeline. The worker keeps draining audio events until the
// provider reports its final event or closes its event channel.
func (p *Pipeline) Finalize(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	if sentence, ok := p.sentences.Finalize(); ok {
		if err := p.enqueue(ctx, sentence); err != nil {
			return err
		}
	}
	close(p.queue)
	return nil
}

func (p *Pipeline) enqueue(ctx context.Context, sentence string) error {
	select {
	case p.queue <- sentence:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Frames is the ordered output of coalesced audio chunks.
func (p *Pipeline) Frames() <-chan Frame {
	return p.frames
}

// Wait blocks until the worker goroutine has fully unwound, used to
// guarantee ordering around an Interrupted marker.
func (p *Pipeline) Wait() {
	<-p.done
}

// Close releases the underlying TTS stream. Safe to call once, after Wait.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.ttsStream != nil {
			err = p.ttsStream.Close()
		}
	})
	return err
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.frames)

	var coalesced bytes.Buffer
	queue := p.queue
	inputClosed := false

	for {
		if queue == nil && !inputClosed {
			_ = p.ttsStream.CloseInput(ctx)
			inputClosed = true
		}

		select {
		case <-ctx.Done():
			return

		case sentence, ok := <-queue:
			if !ok {
				queue = nil
				continue
			}
			sanitized := SanitizeForSpeech(sentence)
			if sanitized == "" {
				continue
			}
			if err := p.ttsStream.SendText(ctx, sanitized, true); err != nil {
				return
			}

		case evt, ok := <-p.ttsStream.Events():
			if !ok {
				p.flush(ctx, &coalesced, true)
				return
			}
			switch evt.Type {
			case TTSEventAudio:
				raw, err := base64.StdEncoding.DecodeString(evt.AudioBase64)
				if err == nil {
					coalesced.Write(raw)
				}
				if coalesced.Len() >= p.minChunkBytes {
					p.flush(ctx, &coalesced, false)
				}
			case TTSEventFinal:
				p.flush(ctx, &coalesced, true)
				return
			case TTSEventError:
				return
			}
		}
	}
}

func (p *Pipeline) flush(ctx context.Context, buf *bytes.Buffer, final bool) {
	payload := append([]byte(nil), buf.Bytes()...)
	buf.Reset()
	select {
	case p.frames <- Frame{Payload: payload, Final: final}:
	case <-ctx.Done():
	}
}
