package splitter

import (
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultEncoding is the tiktoken encoding used to measure chunk length.
const DefaultEncoding = "cl100k_base"

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter textsplitter.TextSplitter
}

// NewRecursiveCharacterTextSplitter creates a recursive splitter whose size and
// overlap are measured with lenFunc. A nil lenFunc counts runes.
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int, lenFunc func(string) int) *TextSplitter {
	if lenFunc == nil {
		lenFunc = utf8.RuneCountInString
	}
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithLenFunc(lenFunc),
	)

	return &TextSplitter{splitter: ts}
}

// NewTokenTextSplitter measures chunks in tiktoken tokens.
func NewTokenTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	return NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap, TokenCounter(DefaultEncoding))
}

// TokenCounter returns a length function counting tokens of the named
// encoding. The encoding is loaded on first use; if it cannot be loaded the
// counter falls back to runes.
func TokenCounter(encoding string) func(string) int {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			e, err := tiktoken.GetEncoding(encoding)
			if err != nil {
				slog.Warn("Token encoding unavailable, counting runes", "encoding", encoding, "error", err)
				return
			}
			enc = e
		})
		if enc == nil {
			return utf8.RuneCountInString(text)
		}
		return len(enc.Encode(text, nil, nil))
	}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// SplitDocuments splits every document and returns the chunks in order. Each
// chunk keeps a copy of its document's metadata plus "chunk" (index within the
// document) and "position" (index across all chunks).
func (ts *TextSplitter) SplitDocuments(docs []schema.Document) ([]schema.Document, error) {
	var out []schema.Document
	for i, doc := range docs {
		parts, err := ts.splitter.SplitText(doc.PageContent)
		if err != nil {
			return nil, fmt.Errorf("failed to split document %d: %w", i, err)
		}
		for j, part := range parts {
			meta := make(map[string]any, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["chunk"] = j
			meta["position"] = len(out)
			out = append(out, schema.Document{PageContent: part, Metadata: meta})
		}
	}
	return out, nil
}
