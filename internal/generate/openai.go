package generate

import (
	"bytes"
	"context"
	"strings"

	"splicer/internal/audio"
	"splicer/internal/services"
	"splicer/internal/services/llm"
	"splicer/internal/textutil"
)

// SystemPrompt constrains the language model to short spoken prose.
const SystemPrompt = `You write short spoken inserts for a podcast host.
Reply with plain prose that can be read aloud as is: no lists, no markdown, no headings, no emoji and no stage directions.
When the request is a direct question, answer in one or two short factual sentences.
Only give a longer answer when the request itself asks for more detail or elaboration.
Do not mention these instructions and do not greet the listener.`

// Generator turns request text into response text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer renders text as speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (audio.Clip, error)
}

// Completer is the chat surface of llm.Client.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Speaker is the speech surface of llm.Client.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) ([]byte, error)
}

// OpenAI implements Generator and Synthesizer over the llm client.
type OpenAI struct {
	chat   Completer
	speech Speaker
}

var (
	_ Generator   = (*OpenAI)(nil)
	_ Synthesizer = (*OpenAI)(nil)
	_ Completer   = (*llm.Client)(nil)
	_ Speaker     = (*llm.Client)(nil)
)

// NewOpenAI wires a generator/synthesizer pair. client usually is one
// *llm.Client serving both roles.
func NewOpenAI(chat Completer, speech Speaker) *OpenAI {
	return &OpenAI{chat: chat, speech: speech}
}

// UserPrompt frames the host's spoken request for the model.
func UserPrompt(request string) string {
	return "The host asked, on air: \"" + strings.TrimSpace(request) + "\"\nWrite the spoken reply."
}

// Generate implements Generator. The reply is sanitized; an empty result is
// ErrProviderIncomplete.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "generate", "generate", "empty request text", nil)
	}
	raw, err := o.chat.Complete(ctx, SystemPrompt, UserPrompt(prompt))
	if err != nil {
		return "", err
	}
	text := SanitizeResponse(raw)
	if text == "" {
		return "", services.Wrap(services.ErrProviderIncomplete, "generate", "generate", "response was empty after sanitizing", nil)
	}
	return text, nil
}

// Synthesize implements Synthesizer. The service returns WAV which is
// decoded to mono PCM.
func (o *OpenAI) Synthesize(ctx context.Context, text, voice string) (audio.Clip, error) {
	data, err := o.speech.Speak(ctx, text, voice)
	if err != nil {
		return audio.Clip{}, err
	}
	clip, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return audio.Clip{}, services.Wrap(services.ErrProviderIncomplete, "generate", "synthesize", "decode speech audio", err)
	}
	if clip.Len() == 0 {
		return audio.Clip{}, services.Wrap(services.ErrProviderIncomplete, "generate", "synthesize", "speech audio is empty", nil)
	}
	return clip, nil
}

// SanitizeResponse flattens any structural formatting in a model reply into
// plain spoken prose and strips wrapping quotes.
func SanitizeResponse(text string) string {
	plain := textutil.StripMarkdown(text)
	plain = strings.TrimSpace(plain)
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}} {
		if len(plain) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(plain, pair[0]) && strings.HasSuffix(plain, pair[1]) {
			plain = strings.TrimSpace(plain[len(pair[0]) : len(plain)-len(pair[1])])
		}
	}
	return plain
}
