package pdfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
)

// Embedder turns texts into vectors. Implemented by the openai wrapper;
// faked in tests.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Passage is one indexed chunk with its provenance. Page is 0 for
// non-paginated sources (spreadsheet sheets).
type Passage struct {
	Source string
	Sheet  string
	Page   int
	Text   string
	Score  float64
}

// Index is a session-scoped in-memory similarity index over uploaded
// document chunks. Re-uploaded files are skipped by content hash.
type Index struct {
	embedder Embedder
	passages []Passage
	vectors  [][]float64
	hashes   map[string]bool
}

func NewIndex(embedder Embedder) *Index {
	return &Index{embedder: embedder, hashes: map[string]bool{}}
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.passages) }

func fileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AddPDF extracts, chunks and embeds a PDF into the index. Returns the
// number of new chunks; 0 with a nil error means the file was already
// indexed or contained no readable text.
func (ix *Index) AddPDF(ctx context.Context, name string, data []byte, chunkSize, chunkOverlap int) (int, error) {
	sha := fileHash(data)
	if ix.hashes[sha] {
		log.Printf("index: skipping duplicate upload %s", name)
		return 0, nil
	}

	pages, err := ExtractPages(name, data)
	if err != nil {
		return 0, err
	}
	if !hasText(pages) {
		return 0, nil
	}

	source := strings.TrimSuffix(name, ".pdf")
	var add []Passage
	for pageNum, text := range pages {
		for _, chunk := range SplitText(text, chunkSize, chunkOverlap) {
			add = append(add, Passage{Source: source, Page: pageNum + 1, Text: chunk})
		}
	}
	if err := ix.embed(ctx, add); err != nil {
		return 0, err
	}
	ix.hashes[sha] = true
	return len(add), nil
}

// AddSheets embeds CSV-rendered sheet text so the model can retrieve
// spreadsheet context the same way it retrieves statement passages.
func (ix *Index) AddSheets(ctx context.Context, fileName string, sheets map[string]string, chunkSize, chunkOverlap int) (int, error) {
	combined := fileName
	names := make([]string, 0, len(sheets))
	for n := range sheets {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		combined += "\x00" + n + "\x00" + sheets[n]
	}
	sha := fileHash([]byte(combined))
	if ix.hashes[sha] {
		log.Printf("index: skipping duplicate upload %s", fileName)
		return 0, nil
	}

	var add []Passage
	for _, n := range names {
		for _, chunk := range SplitText(sheets[n], chunkSize, chunkOverlap) {
			add = append(add, Passage{Source: fileName, Sheet: n, Text: chunk})
		}
	}
	if len(add) == 0 {
		return 0, nil
	}
	if err := ix.embed(ctx, add); err != nil {
		return 0, err
	}
	ix.hashes[sha] = true
	return len(add), nil
}

func (ix *Index) embed(ctx context.Context, add []Passage) error {
	if len(add) == 0 {
		return nil
	}
	texts := make([]string, len(add))
	for i, p := range add {
		texts[i] = p.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(add), err)
	}
	if len(vectors) != len(add) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(add))
	}
	ix.passages = append(ix.passages, add...)
	ix.vectors = append(ix.vectors, vectors...)
	return nil
}

// Search returns the top-k passages ranked by cosine similarity to the
// query. An empty index returns no passages and no error.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if ix.Len() == 0 || strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	qv, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qv) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for the query", len(qv))
	}

	scored := make([]Passage, len(ix.passages))
	copy(scored, ix.passages)
	for i := range scored {
		scored[i].Score = cosine(qv[0], ix.vectors[i])
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// FormatContext renders passages as context blocks for the system prompt,
// prefixed with their provenance.
func FormatContext(passages []Passage) string {
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch {
		case p.Sheet != "":
			fmt.Fprintf(&sb, "[%s sheet %s]\n%s", p.Source, p.Sheet, p.Text)
		default:
			fmt.Fprintf(&sb, "[%s p.%d]\n%s", p.Source, p.Page, p.Text)
		}
	}
	return sb.String()
}
