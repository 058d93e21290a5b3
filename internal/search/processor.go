package search

import (
	"errors"
	"fmt"

	"github.com/hyperjump/docchat/internal/models"
)

// ErrInvalidQuery is returned for a missing or blank question.
var ErrInvalidQuery = errors.New("invalid query")

// ProcessQuery validates the question and returns it trimmed.
func ProcessQuery(question string) (string, error) {
	req := models.ChatRequest{Question: question}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return req.Question, nil
}
