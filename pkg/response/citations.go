package response

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/amtlich/amtlich/pkg/models"
)

var citationToken = regexp.MustCompile(`\[(\d+)\]`)

// maxExcerptLen bounds citation excerpts in the response envelope.
const maxExcerptLen = 240

// buildCandidates numbers the evidence documents 1..n in prompt order.
// These are the citation ids the model is told to use.
func buildCandidates(docs []models.SearchResult) []models.Citation {
	citations := make([]models.Citation, 0, len(docs))
	for i, doc := range docs {
		title := doc.Metadata.Title
		if title == "" {
			title = fmt.Sprintf("Dokument %d", i+1)
		}
		docType := doc.Metadata.Type
		if docType == "" {
			docType = "document"
		}
		excerpt := doc.Content
		if len(excerpt) > maxExcerptLen {
			if cut := strings.LastIndexByte(excerpt[:maxExcerptLen], ' '); cut > 0 {
				excerpt = excerpt[:cut]
			} else {
				excerpt = excerpt[:maxExcerptLen]
			}
		}
		citations = append(citations, models.Citation{
			ID:         i + 1,
			DocumentID: doc.ID,
			Title:      title,
			Type:       docType,
			Locator:    doc.Metadata.Locator,
			Excerpt:    excerpt,
			Source:     doc.Metadata.Source,
			Authority:  doc.Metadata.Authority,
			Year:       doc.Metadata.Year,
			Confidence: doc.Score,
		})
	}
	return citations
}

// closeCitations enforces citation closure on the generated answer:
// tokens referencing unknown ids are removed, surviving citations are
// renumbered by first appearance, and the content tokens are rewritten
// to match. The returned sources satisfy sources[i].ID == i+1.
func closeCitations(content string, candidates []models.Citation) (string, []models.Citation) {
	byID := make(map[int]models.Citation, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	renumber := make(map[int]int)
	var sources []models.Citation
	rewritten := citationToken.ReplaceAllStringFunc(content, func(token string) string {
		id, err := strconv.Atoi(token[1 : len(token)-1])
		if err != nil {
			return ""
		}
		candidate, known := byID[id]
		if !known {
			return ""
		}
		newID, assigned := renumber[id]
		if !assigned {
			newID = len(sources) + 1
			renumber[id] = newID
			candidate.ID = newID
			sources = append(sources, candidate)
		}
		return "[" + strconv.Itoa(newID) + "]"
	})

	return rewritten, sources
}
