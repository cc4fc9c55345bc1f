package domain

// DocChunk is a contiguous slice of a documentation file, tagged with the
// heading it falls under and the 1-indexed line range it covers.
type DocChunk struct {
	Text       string `json:"text"`
	Filename   string `json:"filename"`
	Heading    string `json:"heading"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	ChunkIndex int    `json:"chunk_index"`
}

// SearchResult pairs a chunk with its similarity to a query, in (0, 1].
type SearchResult struct {
	Chunk DocChunk
	Score float64
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(text string) ([]float32, error)
	EmbedBatch(texts []string) ([][]float32, error)
}

// Chunker splits a documentation file into chunks suitable for indexing.
type Chunker interface {
	Split(filename, content string) []DocChunk
	ChunkFile(path string) []DocChunk
}

// VectorIndex stores embeddings by position and answers exact
// nearest-neighbour queries.
type VectorIndex interface {
	Dimension() int
	Len() int
	Add(vectors [][]float32) error
	Search(query []float32, k int) (distances []float32, labels []int, err error)
}
