package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/upload"
)

// httpClient talks to a running docchat server. Answers can take as long as the chat
// model does, so the timeout is generous.
var httpClient = &http.Client{Timeout: 3 * time.Minute}

func uploadResponse(res *upload.Result) *models.UploadResponse {
	return &models.UploadResponse{
		Message:    "File uploaded successfully",
		Filename:   res.Document.Filename,
		DocumentID: res.Document.ID,
		JobID:      res.JobID,
	}
}

func uploadViaHTTP(ctx context.Context, serverURL, path string) (*models.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="pdf"; filename="%s"`, escapeQuotes(filepath.Base(path))))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/upload/pdf", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out models.UploadResponse
	if err := doJSON(req, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func askViaHTTP(ctx context.Context, serverURL, question string) (*models.Answer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/chat?q="+url.QueryEscape(question), nil)
	if err != nil {
		return nil, err
	}
	var out models.Answer
	if err := doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func documentsViaHTTP(ctx context.Context, serverURL string, offset, limit int) ([]*models.Document, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/v1/documents?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Documents []*models.Document `json:"documents"`
	}
	if err := doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func statusViaHTTP(ctx context.Context, serverURL string) (*models.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	var out models.StatusResponse
	if err := doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON sends req and decodes the body into out when the status matches want.
// Other statuses become errors carrying the server's error message.
func doJSON(req *http.Request, want int, out interface{}) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
