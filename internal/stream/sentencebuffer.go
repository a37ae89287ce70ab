package stream

import "strings"

// sentenceDelimiters is the exact set of runes that terminate a sentence for
// TTS dispatch purposes: ASCII and full-width terminal punctuation plus
// newline.
const sentenceDelimiters = ".!?。！？\n"

// SentenceBuffer accumulates streamed LLM token deltas and splits them into
// sentences using a naive last-delimiter-wins scan: after every append, it
// looks for the LAST occurrence of any delimiter rune in the buffer and, if
// found, emits everything through that delimiter as one sentence, retaining
// the remainder for the next token. This intentionally does not try to be
// clever about abbreviations or decimal points — see DESIGN.md.
type SentenceBuffer struct {
	buf strings.Builder
}

func NewSentenceBuffer() *SentenceBuffer {
	return &SentenceBuffer{}
}

// Push appends a token delta and returns zero or one completed sentence. The
// naive algorithm only ever yields at most one sentence per call because it
// only scans for the last delimiter, not every delimiter, in the buffer.
func (b *SentenceBuffer) Push(delta string) (sentence string, ok bool) {
	b.buf.WriteString(delta)
	current := b.buf.String()

	idx := lastDelimiterIndex(current)
	if idx < 0 {
		return "", false
	}

	sentence = current[:idx+1]
	rest := current[idx+1:]
	b.buf.Reset()
	b.buf.WriteString(rest)
	return sentence, true
}

// Finalize flushes whatever remains in the buffer, whether or not it ends
// with a delimiter. Call this once at the end of a turn.
func (b *SentenceBuffer) Finalize() (sentence string, ok bool) {
	remaining := strings.TrimSpace(b.buf.String())
	b.buf.Reset()
	if remaining == "" {
		return "", false
	}
	return remaining, true
}

func lastDelimiterIndex(s string) int {
	last := -1
	for i, r := range s {
		if strings.ContainsRune(sentenceDelimiters, r) {
			// Track the byte offset of the end of this rune, since the
			// delimiter set includes multi-byte runes (。！？).
			last = i + len(string(r)) - 1
		}
	}
	return last
}
