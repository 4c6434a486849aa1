package chunker

import (
	"errors"
	"fmt"
	"strings"

	"study-retrieval-engine/internal/types"
)

// ErrBadWindow is returned when the window/overlap pair cannot produce a
// forward-moving sequence of windows.
var ErrBadWindow = errors.New("chunker: window size must be greater than overlap")

// Chunker splits document text into fixed-size overlapping rune windows.
// Splitting is a pure function of (text, window, overlap): the same inputs
// always produce the same boundaries, which the ingestion pipeline relies on.
type Chunker struct {
	windowSize int
	overlap    int
}

// New validates the window configuration. Violations are configuration
// errors, reported rather than clamped.
func New(windowSize, overlap int) (*Chunker, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size %d must be positive: %w", windowSize, ErrBadWindow)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap %d must not be negative: %w", overlap, ErrBadWindow)
	}
	if overlap >= windowSize {
		return nil, fmt.Errorf("overlap %d >= window size %d: %w", overlap, windowSize, ErrBadWindow)
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}, nil
}

// WindowSize reports the configured window size in runes.
func (c *Chunker) WindowSize() int { return c.windowSize }

// Overlap reports the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into ordered overlapping windows. Window k starts at rune
// k*(windowSize-overlap) and spans up to windowSize runes, clipped at the end
// of the document. Whitespace-only windows are dropped but keep their ordinal
// in Seq, so a chunk's CharStart is always Seq*(windowSize-overlap).
func (c *Chunker) Split(docID, text string) []types.Chunk {
	runes := []rune(text)
	stride := c.windowSize - c.overlap

	var chunks []types.Chunk
	for seq, start := 0, 0; start < len(runes); seq, start = seq+1, start+stride {
		end := start + c.windowSize
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, types.Chunk{
				DocID:     docID,
				Seq:       seq,
				Text:      window,
				CharStart: start,
				CharEnd:   end,
			})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
