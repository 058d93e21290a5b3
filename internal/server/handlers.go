package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/embedding"
	"github.com/hyperjump/docchat/internal/llm"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/search"
	"github.com/hyperjump/docchat/internal/storage"
	"github.com/hyperjump/docchat/internal/upload"
	"github.com/hyperjump/docchat/internal/vector"
	"go.uber.org/zap"
)

const (
	msgOnlyPDF      = "Only PDF files are allowed"
	msgMissingQuery = "Missing query parameter `q`"
	msgUploaded     = "File uploaded successfully"

	// multipartMemory is how much of a multipart body is kept in memory before spilling to disk.
	multipartMemory = 32 << 20
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("docchat: upload PDFs to /upload/pdf and ask questions at /chat?q=\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxBytes()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, msgOnlyPDF)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("pdf")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, msgOnlyPDF)
		return
	}
	defer file.Close()
	if !acceptedPDFType(header.Header.Get("Content-Type")) {
		s.logger.Debug("upload rejected by content type",
			zap.String("filename", header.Filename),
			zap.String("content_type", header.Header.Get("Content-Type")))
		s.respondError(w, http.StatusBadRequest, msgOnlyPDF)
		return
	}

	res, err := s.uploads.Upload(r.Context(), header.Filename, file)
	switch {
	case errors.Is(err, upload.ErrNotPDF):
		s.respondError(w, http.StatusBadRequest, msgOnlyPDF)
		return
	case errors.Is(err, upload.ErrTooLarge):
		s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	case err != nil:
		s.logger.Error("upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	s.respondJSON(w, http.StatusAccepted, models.UploadResponse{
		Message:    msgUploaded,
		Filename:   res.Document.Filename,
		DocumentID: res.Document.ID,
		JobID:      res.JobID,
	})
}

// acceptedPDFType reports whether a declared part type may hold a PDF. The bytes are
// checked separately.
func acceptedPDFType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/pdf" || mt == "application/octet-stream"
}

func (s *Server) handleChatQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, msgMissingQuery)
		return
	}
	s.answer(w, r, q)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.answer(w, r, req.Question)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, question string) {
	s.logger.Debug("chat request", zap.String("question", question))
	ans, err := s.engine.Answer(r.Context(), question)
	if err != nil {
		status, msg := chatErrorStatus(err)
		if status >= 500 {
			s.logger.Error("chat failed", zap.Error(err))
		}
		s.respondError(w, status, msg)
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		return http.StatusBadRequest, "question cannot be empty"
	case errors.Is(err, vector.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "vector index unavailable"
	case errors.Is(err, embedding.ErrEmbedding):
		return http.StatusBadGateway, "embedding model failed"
	case errors.Is(err, llm.ErrGeneration):
		return http.StatusBadGateway, "answer generation failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "offset": offset, "limit": limit})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// Status collects document, record and queue counts. Index, queue and disk usage
// failures are logged and leave their fields zero.
func (s *Server) Status(ctx context.Context) (*models.StatusResponse, error) {
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	recordCount, err := s.storage.CountRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	resp := &models.StatusResponse{
		Documents:     int(docCount),
		Records:       int(recordCount),
		EmbedderModel: s.embedderModel,
		ChatModel:     s.chatModel,
	}
	if s.index != nil {
		resp.IndexType = s.index.Type()
		if size, err := s.index.Size(ctx); err == nil {
			resp.IndexSize = size
		} else {
			s.logger.Warn("status: index size failed", zap.Error(err))
		}
	}
	if s.queue != nil {
		if stats, err := s.queue.Stats(ctx); err == nil {
			resp.Queue = stats
			s.metrics.SetQueue(stats)
		} else {
			s.logger.Warn("status: queue stats failed", zap.Error(err))
		}
	}
	if s.watch != nil {
		resp.WatchedDirs = s.watch.Directories()
	}
	if n, err := storage.DiskUsageBytes(dataPaths(s.config.Storage)...); err == nil {
		resp.DiskUsage = n
	}
	return resp, nil
}

// dataPaths lists the database, queue and upload files without duplicates.
func dataPaths(st config.StorageConfig) []string {
	var candidates []string
	for _, db := range []string{st.DatabasePath, st.QueuePath} {
		if db != "" {
			candidates = append(candidates, storage.DatabaseFiles(db)...)
		}
	}
	candidates = append(candidates, st.UploadDir)

	seen := make(map[string]bool)
	var paths []string
	for _, p := range candidates {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return paths
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
