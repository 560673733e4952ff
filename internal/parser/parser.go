package parser

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"question-rag/internal/config"
	"question-rag/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	defaultChunkSize    = 1000 // bytes
	defaultChunkOverlap = 200  // bytes
	pageSeparator       = "\n\n"
)

// Extractor turns a document on disk into text chunks.
type Extractor struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewExtractor(cfg *config.RAGConfig) *Extractor {
	e := &Extractor{ChunkSize: defaultChunkSize, ChunkOverlap: defaultChunkOverlap}
	if cfg != nil && cfg.ChunkSize > 0 {
		e.ChunkSize = cfg.ChunkSize
		e.ChunkOverlap = cfg.ChunkOverlap
	}
	return e
}

// Extract reads the document at path. With chunked set the text is split
// into ordered chunks sized for embedding, otherwise a single chunk holds the
// whole text. The flattened full text is returned in both modes. Units
// without text are skipped.
func (e *Extractor) Extract(path string, chunked bool) ([]models.Chunk, string, error) {
	pages, err := readPages(path)
	if err != nil {
		return nil, "", err
	}

	var kept []page
	for _, p := range pages {
		p.text = strings.TrimSpace(p.text)
		if p.text == "" {
			log.Debug().Str("file", filepath.Base(path)).Int("page", p.number).Msg("Skipping page without text")
			continue
		}
		kept = append(kept, p)
	}

	texts := make([]string, len(kept))
	for i, p := range kept {
		texts[i] = p.text
	}
	fullText := strings.Join(texts, pageSeparator)
	if fullText == "" {
		return nil, "", nil
	}

	if !chunked {
		return []models.Chunk{{Content: fullText, ChunkID: 1, Seq: 1}}, fullText, nil
	}

	var chunks []models.Chunk
	for _, p := range kept {
		chunks = append(chunks, e.getChunks(p.text, p.number, len(chunks))...)
	}
	log.Debug().Str("file", filepath.Base(path)).Int("pages", len(kept)).Int("chunks", len(chunks)).Msg("Extracted document")
	return chunks, fullText, nil
}

type page struct {
	number int
	text   string
}

func readPages(path string) ([]page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return parsePDF(path)
	case ".docx":
		return parseDOCX(path)
	case ".pptx":
		return parsePPTX(path)
	case ".xlsx":
		return parseXLSX(path)
	case ".xlsm":
		return parseXLSM(path)
	case ".txt", ".md":
		return parseText(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

// SupportedExtension reports whether Extract can read files with ext.
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".txt", ".md":
		return true
	}
	return false
}

type span struct{ start, end int }

// chunkSpans splits content into windows of at most maxChars bytes that
// share overlapChars bytes with their predecessor. Windows never split a
// UTF-8 sequence and the union of all windows covers content.
func chunkSpans(content string, maxChars, overlapChars int) []span {
	if maxChars <= 0 || len(content) == 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}
	contentLen := len(content)
	if contentLen <= maxChars {
		return []span{{0, contentLen}}
	}

	var spans []span
	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)

		if end < contentLen {
			// prefer a clean break within the last 10% of the window
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
			for end > start+1 && end < contentLen && !utf8.RuneStart(content[end]) {
				end--
			}
			for end < contentLen && !utf8.RuneStart(content[end]) {
				end++
			}
		}

		spans = append(spans, span{start, end})
		if end >= contentLen {
			break
		}

		next := end - overlapChars
		for next > start && next < contentLen && !utf8.RuneStart(content[next]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// get chunks from content and page number
func (e *Extractor) getChunks(content string, pageNumber, seqBase int) []models.Chunk {
	var chunks []models.Chunk
	for _, s := range chunkSpans(content, e.ChunkSize, e.ChunkOverlap) {
		text := content[s.start:s.end]
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Content:    text,
			PageNumber: pageNumber,
			ChunkID:    len(chunks) + 1,
			Seq:        seqBase + len(chunks) + 1,
			Offset:     s.start,
		})
	}
	return chunks
}

// JoinChunks rebuilds the full text from chunked output: overlapping bytes
// are written once and pages are separated by a blank line.
func JoinChunks(chunks []models.Chunk) string {
	var content strings.Builder
	currentPage := 0
	end := 0
	for i, chunk := range chunks {
		if i == 0 || chunk.PageNumber != currentPage {
			if i > 0 {
				content.WriteString(pageSeparator)
			}
			currentPage = chunk.PageNumber
			content.WriteString(chunk.Content)
			end = chunk.Offset + len(chunk.Content)
			continue
		}

		switch {
		case chunk.Offset > end:
			// a whitespace-only window was skipped in between
			content.WriteString(" ")
			content.WriteString(chunk.Content)
		case chunk.Offset == end:
			content.WriteString(chunk.Content)
		default:
			if skip := end - chunk.Offset; skip < len(chunk.Content) {
				content.WriteString(chunk.Content[skip:])
			}
		}
		end = max(end, chunk.Offset+len(chunk.Content))
	}
	return content.String()
}
