package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/pkg/utils"
)

const (
	systemInstruction = "You are a helpful AI assistant that answers questions based strictly on the provided document context."
	contextPreamble   = "Here is the extracted context from PDF documents:\n\n"
	answerInstruction = "Answer in a clear and concise manner based only on the above context."

	// NoContextAnswer is returned when no chunk was retrieved.
	NoContextAnswer = "I could not find any relevant information in the uploaded documents."
)

// BuildContext numbers the records from 1 in rank order, trims each chunk and cuts it to
// maxChars characters, and separates the entries with a blank line.
func BuildContext(records []*models.IndexRecord, maxChars int) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = fmt.Sprintf("(%d) %s", i+1, utils.TruncateRunes(strings.TrimSpace(r.ChunkText), maxChars))
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages returns the conversation sent to the chat model: the system
// instruction, the retrieved context, then the question.
func BuildMessages(question string, records []*models.IndexRecord, maxChars int) []models.ChatMessage {
	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: systemInstruction},
		{Role: models.RoleUser, Content: contextPreamble + BuildContext(records, maxChars)},
		{Role: models.RoleUser, Content: "Question: " + question + "\n\n" + answerInstruction},
	}
}

// Sources maps each record to its provenance, in rank order, keeping duplicates.
func Sources(records []*models.IndexRecord) []models.Source {
	out := make([]models.Source, len(records))
	for i, r := range records {
		out[i] = models.Source{Source: r.Metadata.Source, PageNo: r.Metadata.PageNo}
	}
	return out
}
