package e2e

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceAt(file string, page int) models.Source {
	return models.Source{Source: file, PageNo: models.Page(page)}
}

func TestE2E_UploadIngestAsk(t *testing.T) {
	env := NewEnv(t)

	up := env.UploadPDF(t, "facts.pdf", "The sky is blue.", "Water boils at 100°C.")
	assert.Equal(t, "File uploaded successfully", up.Message)
	assert.Equal(t, "facts.pdf", up.Filename)
	assert.NotEmpty(t, up.JobID)

	// Upload returns before ingestion: nothing is indexed until a worker runs.
	assert.Equal(t, 0, env.RecordCount(t))

	require.Equal(t, 1, env.Drain(t))
	assert.Equal(t, 2, env.RecordCount(t))

	status, answer := env.Ask(t, "What color is the sky?")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Answer from the documents.", answer.Answer)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, sourceAt("facts.pdf", 1), answer.Sources[0])
	assert.Contains(t, answer.Sources, sourceAt("facts.pdf", 1))

	calls := env.Model.Calls()
	require.Len(t, calls, 1)
	var prompt strings.Builder
	for _, m := range calls[0] {
		prompt.WriteString(m.Content)
	}
	assert.Contains(t, prompt.String(), "(1) The sky is blue.")
	assert.Contains(t, prompt.String(), "What color is the sky?")
}

func TestE2E_AskBeforeIngestion(t *testing.T) {
	env := NewEnv(t)

	status, answer := env.Ask(t, "What color is the sky?")
	require.Equal(t, http.StatusOK, status)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, search.NoContextAnswer, answer.Answer)
	assert.Empty(t, env.Model.Calls())

	// A queued but unprocessed upload is still invisible to queries.
	env.UploadPDF(t, "facts.pdf", "The sky is blue.")
	_, answer = env.Ask(t, "What color is the sky?")
	assert.Empty(t, answer.Sources)
}

func TestE2E_NonPDFRejectedBeforeEnqueue(t *testing.T) {
	env := NewEnv(t)

	status, body := env.Upload(t, "notes.txt", "text/plain", []byte("just some notes"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Only PDF files are allowed", body["error"])

	// Declared as PDF but the bytes are not.
	status, _ = env.Upload(t, "fake.pdf", "application/pdf", []byte("not really a pdf"))
	assert.Equal(t, http.StatusBadRequest, status)

	stats, err := env.Queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{}, stats)
	docs, err := env.Store.CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, docs)
	entries, err := os.ReadDir(env.Config.Storage.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Equal(t, 0, env.Drain(t))
}

func TestE2E_RedeliveryDuplicatesRecords(t *testing.T) {
	env := NewEnv(t)
	ctx := context.Background()
	env.UploadPDF(t, "facts.pdf", "The sky is blue.", "Water boils at 100°C.")

	// A worker processes the job but dies before acknowledging it.
	d, err := env.Queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	written, err := env.Worker.Process(ctx, d.Job)
	require.NoError(t, err)
	require.Equal(t, 2, written)
	assert.Equal(t, 0, env.Drain(t), "job must stay leased")

	env.Clock.Advance(leaseDuration + time.Second)
	require.Equal(t, 1, env.Drain(t))

	assert.Equal(t, 2*written, env.RecordCount(t))
	stats, err := env.Queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{}, stats)

	_, answer := env.Ask(t, "What color is the sky?")
	require.GreaterOrEqual(t, len(answer.Sources), 2)
	assert.Equal(t, sourceAt("facts.pdf", 1), answer.Sources[0])
	assert.Equal(t, sourceAt("facts.pdf", 1), answer.Sources[1])
}

func TestE2E_CorpusQuestions(t *testing.T) {
	env := NewEnv(t)
	corpus := BuildCorpus()
	for _, doc := range corpus.Documents {
		env.UploadPDF(t, doc.Filename, doc.Pages...)
	}
	require.Equal(t, len(corpus.Documents), env.Drain(t))

	for _, q := range corpus.Questions {
		t.Run(q.Text, func(t *testing.T) {
			status, answer := env.Ask(t, q.Text)
			require.Equal(t, http.StatusOK, status)
			require.Len(t, answer.Sources, 4)
			assert.Equal(t, sourceAt(q.ExpectedFile, q.ExpectedPage), answer.Sources[0])
		})
	}
}

func TestE2E_StatusAndDocuments(t *testing.T) {
	env := NewEnv(t)
	env.UploadPDF(t, "one.pdf", "first page")
	env.UploadPDF(t, "two.pdf", "second document")
	env.Drain(t)

	resp, err := http.Get(env.Server.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	docs, err := env.Store.ListDocuments(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 2, env.RecordCount(t))
}
