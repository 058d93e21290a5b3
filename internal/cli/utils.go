// Package cli provides output helpers for the docchat command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (use text or json)", s)
}

// WriteAnswer writes an answer and its sources to w.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(answer.Answer))
	if len(answer.Sources) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range answer.Sources {
		fmt.Fprintf(w, "  [%d] %s", i+1, s.Source)
		if s.PageNo != nil {
			fmt.Fprintf(w, " (page %d)", *s.PageNo)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteUpload reports a queued upload.
func WriteUpload(w io.Writer, resp *models.UploadResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	_, err := fmt.Fprintf(w, "%s: %s (document %s, job %s)\n", resp.Message, resp.Filename, resp.DocumentID, resp.JobID)
	return err
}

// WriteStatus writes index and queue statistics.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "Documents:        %d\n", status.Documents)
	fmt.Fprintf(w, "Records:          %d\n", status.Records)
	fmt.Fprintf(w, "Vector index:     %s (%d vectors)\n", status.IndexType, status.IndexSize)
	fmt.Fprintf(w, "Queue:            %d queued, %d in flight, %d dead\n",
		status.Queue.Queued, status.Queue.InFlight, status.Queue.Dead)
	fmt.Fprintf(w, "Disk usage:       %s\n", FormatBytes(status.DiskUsage))
	fmt.Fprintf(w, "Embedding model:  %s\n", status.EmbedderModel)
	if status.ChatModel != "" {
		fmt.Fprintf(w, "Chat model:       %s\n", status.ChatModel)
	}
	for _, d := range status.WatchedDirs {
		fmt.Fprintf(w, "Watching:         %s\n", d)
	}
	return nil
}

// WriteDocuments lists uploaded documents.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents uploaded.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-40s  %8s  %s\n", d.ID, utils.Truncate(d.Filename, 40),
			FormatBytes(d.SizeBytes), d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
