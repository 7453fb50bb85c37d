package postprocessors

import (
	"strings"
	"unicode/utf8"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// Chunk is a passage of document text indexed by the local knowledge base.
type Chunk struct {
	Content     string
	Page        int // 0 when the source has no page markers
	Position    int
	StartOffset int
	EndOffset   int
}

// ChunkConfig configures the chunker behavior.
type ChunkConfig struct {
	// MaxChunkSize is the maximum bytes per chunk
	MaxChunkSize int

	// Overlap is the byte overlap between chunks
	Overlap int

	// PreserveSentences tries to break at sentence boundaries
	PreserveSentences bool

	// PreserveParagraphs tries to break at paragraph boundaries
	PreserveParagraphs bool
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChunkSize:       1500,
		Overlap:            200,
		PreserveSentences:  true,
		PreserveParagraphs: true,
	}
}

// Chunker splits page text into overlapping chunks. Chunks never cross a
// page boundary so each one keeps a single page citation.
type Chunker struct {
	config ChunkConfig
}

// NewChunker creates a new chunker with the given config.
func NewChunker(config ChunkConfig) *Chunker {
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = DefaultChunkConfig().MaxChunkSize
	}
	if config.Overlap < 0 || config.Overlap >= config.MaxChunkSize {
		config.Overlap = 0
	}
	return &Chunker{config: config}
}

// ChunkDocument chunks each page of pages, or text as a whole when there
// are no pages. Blank chunks are dropped.
func (c *Chunker) ChunkDocument(text string, pages []domain.PageSegment) []Chunk {
	var chunks []Chunk
	position := 0
	if len(pages) == 0 {
		return c.split(text, 0, &position)
	}
	for _, p := range pages {
		chunks = append(chunks, c.split(p.Text, p.Page, &position)...)
	}
	return chunks
}

// split cuts content into overlapping chunks.
func (c *Chunker) split(content string, page int, position *int) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	if len(content) <= c.config.MaxChunkSize {
		chunk := Chunk{
			Content:   content,
			Page:      page,
			Position:  *position,
			EndOffset: len(content),
		}
		*position++
		return []Chunk{chunk}
	}

	var chunks []Chunk
	start := 0

	for start < len(content) {
		end := start + c.config.MaxChunkSize
		if end > len(content) {
			end = len(content)
		}

		// Try to find a good break point
		if end < len(content) {
			if breakPoint := c.findBreakPoint(content, start, end); breakPoint > start {
				end = breakPoint
			}
		}
		end = runeBoundary(content, end)
		if end <= start {
			_, size := utf8.DecodeRuneInString(content[start:])
			end = start + size
		}

		if text := content[start:end]; strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				Content:     text,
				Page:        page,
				Position:    *position,
				StartOffset: start,
				EndOffset:   end,
			})
			*position++
		}

		if end >= len(content) {
			break
		}

		// Move start with overlap, ensuring we always advance
		nextStart := runeBoundary(content, end-c.config.Overlap)
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

// findBreakPoint looks for a paragraph, sentence or word boundary in the
// last 100 bytes before maxEnd.
func (c *Chunker) findBreakPoint(content string, start, maxEnd int) int {
	searchStart := maxEnd - 100
	if searchStart < start {
		searchStart = start
	}
	searchContent := content[searchStart:maxEnd]

	if c.config.PreserveParagraphs {
		if idx := strings.LastIndex(searchContent, "\n\n"); idx != -1 {
			return searchStart + idx + 2
		}
	}

	if c.config.PreserveSentences {
		bestIdx := -1
		for _, ender := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
			if idx := strings.LastIndex(searchContent, ender); idx != -1 && idx+len(ender) > bestIdx {
				bestIdx = idx + len(ender)
			}
		}
		if bestIdx > 0 {
			return searchStart + bestIdx
		}
	}

	if idx := strings.LastIndex(searchContent, " "); idx != -1 {
		return searchStart + idx + 1
	}
	return maxEnd
}

// runeBoundary moves i back to the start of the rune containing it.
func runeBoundary(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	if i < 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
