package chunker

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"mri-organoids/internal/domain"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50

	defaultHeading = "Introduction"
	emptyHeading   = "Document"

	// charsPerLine approximates how many overlap characters make up one line
	// when rolling the next chunk's start line back.
	charsPerLine = 20
)

var headingMarkers = regexp.MustCompile(`^#+\s*`)

// MarkdownChunker splits markdown text into fixed-size character windows
// with overlap, remembering the most recent heading for every chunk.
type MarkdownChunker struct {
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

func NewMarkdownChunker(chunkSize, overlap int) *MarkdownChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &MarkdownChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		logger:    slog.Default(),
	}
}

// WithLogger returns the chunker with the given logger attached.
func (c *MarkdownChunker) WithLogger(logger *slog.Logger) *MarkdownChunker {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// ChunkFile reads a file and splits it. Unreadable or empty files yield no
// chunks; the failure is logged, not returned.
func (c *MarkdownChunker) ChunkFile(path string) []domain.DocChunk {
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("could not read documentation file", "path", path, "error", err)
		return nil
	}
	if len(data) == 0 {
		c.logger.Warn("documentation file is empty", "path", path)
		return nil
	}
	return c.Split(filepath.Base(path), string(data))
}

// Split chunks content line by line. A chunk is emitted as soon as the
// buffer reaches the chunk size; the next buffer starts with the trailing
// overlap characters of the previous one.
func (c *MarkdownChunker) Split(filename, content string) []domain.DocChunk {
	lines := strings.Split(content, "\n")
	var (
		chunks     []domain.DocChunk
		buf        strings.Builder
		bufLen     int
		heading    = defaultHeading
		startLine  = 0
		chunkIndex = 0
	)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			heading = ExtractHeading(line)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		bufLen += utf8.RuneCountInString(line) + 1

		if bufLen < c.chunkSize {
			continue
		}
		text := buf.String()
		chunks = append(chunks, domain.DocChunk{
			Text:       strings.TrimSpace(text),
			Filename:   filename,
			Heading:    heading,
			LineStart:  startLine + 1,
			LineEnd:    i + 1,
			ChunkIndex: chunkIndex,
		})
		chunkIndex++

		tail := overlapTail(text, bufLen, c.overlap)
		buf.Reset()
		buf.WriteString(tail)
		bufLen = utf8.RuneCountInString(tail)
		// Approximate rollback, not a recount of the lines in tail.
		startLine = i - c.overlap/charsPerLine
		if startLine < 0 {
			startLine = 0
		}
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		chunks = append(chunks, domain.DocChunk{
			Text:       rest,
			Filename:   filename,
			Heading:    heading,
			LineStart:  startLine + 1,
			LineEnd:    max(len(lines), startLine+1),
			ChunkIndex: chunkIndex,
		})
	}
	return chunks
}

// ExtractHeading strips markdown heading markers from a line.
func ExtractHeading(line string) string {
	heading := headingMarkers.ReplaceAllString(strings.TrimSpace(line), "")
	if heading == "" {
		return emptyHeading
	}
	return heading
}

func overlapTail(text string, length, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	if length <= overlap {
		return text
	}
	runes := []rune(text)
	return string(runes[len(runes)-overlap:])
}
