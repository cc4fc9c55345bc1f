package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mri-organoids/internal/domain"
)

type fakeSearcher struct {
	results []domain.SearchResult
	err     error
	gotK    int
}

func (f *fakeSearcher) Search(_ string, topK int) ([]domain.SearchResult, error) {
	f.gotK = topK
	return f.results, f.err
}

func typeQuery(m Model, q string) Model {
	for _, r := range q {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model)
}

func TestModelSearch(t *testing.T) {
	t.Run("Enter runs the query with configured top k", func(t *testing.T) {
		s := &fakeSearcher{results: []domain.SearchResult{
			{Chunk: domain.DocChunk{Text: "Run pip install.", Filename: "README.md", Heading: "Installation", LineStart: 10, LineEnd: 12}, Score: 0.8},
			{Chunk: domain.DocChunk{Text: "Other text.", Filename: "API_DOCS.md", Heading: "Endpoints", LineStart: 1, LineEnd: 3}, Score: 0.4},
		}}
		m := New(s, 3, "2 chunks")

		m = typeQuery(m, "install")

		assert.Equal(t, 3, s.gotK)
		require.Len(t, m.results, 2)
		assert.Equal(t, "install", m.lastQuery)
		out := m.renderCurrentResult()
		assert.Contains(t, out, "README.md")
		assert.Contains(t, out, "Installation")
		assert.Contains(t, out, "lines 10-12")
		assert.Contains(t, out, "score=0.800")
		assert.Contains(t, out, "2. API_DOCS.md › Endpoints  0.400")
		assert.Contains(t, m.status, "(best 0.800)")
	})

	t.Run("Tab jumps to the next file", func(t *testing.T) {
		s := &fakeSearcher{results: []domain.SearchResult{
			{Chunk: domain.DocChunk{Text: "a.", Filename: "README.md"}},
			{Chunk: domain.DocChunk{Text: "b.", Filename: "README.md"}},
			{Chunk: domain.DocChunk{Text: "c.", Filename: "docs/guide.md"}},
		}}
		m := typeQuery(New(s, 5, ""), "q")

		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
		m = next.(Model)
		assert.Equal(t, 2, m.cursor)
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
		assert.Equal(t, 0, next.(Model).cursor)
	})

	t.Run("Arrow keys cycle results", func(t *testing.T) {
		s := &fakeSearcher{results: []domain.SearchResult{
			{Chunk: domain.DocChunk{Text: "a."}}, {Chunk: domain.DocChunk{Text: "b."}},
		}}
		m := typeQuery(New(s, 5, ""), "q")

		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m = next.(Model)
		assert.Equal(t, 1, m.cursor)
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m = next.(Model)
		assert.Equal(t, 0, m.cursor)
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
		assert.Equal(t, 1, next.(Model).cursor)
	})

	t.Run("Errors show in status", func(t *testing.T) {
		m := typeQuery(New(&fakeSearcher{err: errors.New("index not built or loaded")}, 5, ""), "q")

		assert.Contains(t, m.status, "index not built")
		assert.Empty(t, m.results)
		assert.Equal(t, "No results yet.", m.renderCurrentResult())
	})
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("Clone the repo. Run pip install to install dependencies. Done.", "install")

	assert.Contains(t, out, "Clone the repo.")
	assert.Contains(t, out, "install dependencies.")
	assert.Equal(t, "", highlightBestSentence("", "q"))
}

func TestScoreBar(t *testing.T) {
	assert.Equal(t, 0, strings.Count(scoreBar(0), "█"))
	assert.Equal(t, 8, strings.Count(scoreBar(0.8), "█"))
	assert.Equal(t, 2, strings.Count(scoreBar(0.8), "░"))
	assert.Equal(t, 10, strings.Count(scoreBar(1.5), "█"))
}

func TestNextFileSingleFile(t *testing.T) {
	results := []domain.SearchResult{
		{Chunk: domain.DocChunk{Filename: "README.md"}},
		{Chunk: domain.DocChunk{Filename: "README.md"}},
	}

	assert.Equal(t, 1, nextFile(results, 1))
}

func TestTokenOverlapScore(t *testing.T) {
	q := toTokenSet("install dependencies")

	assert.Equal(t, 2, tokenOverlapScore(q, "Install the dependencies, install them."))
	assert.Equal(t, 0, tokenOverlapScore(q, "unrelated"))
}
