package repositories

import "context"

// TextToSpeech abstracts speech synthesis providers. Synthesize returns the
// complete spoken rendition of text as raw interleaved 16-bit little-endian
// PCM at the provider's configured sample rate and channel count. Providers
// do not retry on failure; callers decide whether to ask again.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
