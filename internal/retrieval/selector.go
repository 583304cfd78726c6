package retrieval

import "github.com/and27/supportops/pkg/models"

// SelectEvidence walks candidates in their given order (vector search
// returns them by descending similarity), skipping duplicate chunk ids and
// documents that already contributed maxPerDoc chunks, stopping at
// maxChunks. The caps keep any single document from dominating the answer
// and bound the context fed to generation.
func SelectEvidence(candidates []models.RetrievalCandidate, maxChunks, maxPerDoc int) []models.RetrievalCandidate {
	var selected []models.RetrievalCandidate
	seen := make(map[string]struct{})
	perDoc := make(map[string]int)

	for _, c := range candidates {
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		if c.DocumentID != "" && perDoc[c.DocumentID] >= maxPerDoc {
			continue
		}
		selected = append(selected, c)
		seen[c.ID] = struct{}{}
		if c.DocumentID != "" {
			perDoc[c.DocumentID]++
		}
		if len(selected) >= maxChunks {
			break
		}
	}
	return selected
}

// BuildCitations derives one citation per selected evidence item.
func BuildCitations(evidence []models.RetrievalCandidate) []models.Citation {
	citations := make([]models.Citation, 0, len(evidence))
	for _, e := range evidence {
		c := models.Citation{
			KBDocumentID: e.DocumentID,
			KBChunkID:    e.ID,
			Source:       e.DocumentTitle,
		}
		if e.Similarity != nil {
			score := *e.Similarity
			c.Score = &score
		}
		citations = append(citations, c)
	}
	return citations
}
