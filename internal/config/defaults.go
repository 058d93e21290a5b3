package config

import "time"

// LeaseMargin is added to the job timeout to get the default queue lease, leaving
// time to acknowledge a job that ran to its timeout.
const LeaseMargin = time.Minute

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 50 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/docchat/data/db/docchat.db"
	}
	if cfg.Storage.QueuePath == "" {
		cfg.Storage.QueuePath = "/usr/local/var/docchat/data/db/queue.db"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "/usr/local/var/docchat/data/uploads"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "gemini":
			cfg.Embedding.Model = "embedding-001"
		case "ollama":
			cfg.Embedding.Model = "nomic-embed-text"
		case "hashing":
			cfg.Embedding.Model = "hashing-bow"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "gemini":
			cfg.Embedding.Dimensions = 768
		case "ollama":
			cfg.Embedding.Dimensions = 768
		default:
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.Provider == "gemini" && cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if cfg.Embedding.Provider == "ollama" && cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "gemini"
	}
	if cfg.Generation.Model == "" {
		switch cfg.Generation.Provider {
		case "gemini":
			cfg.Generation.Model = "gemini-2.0-flash"
		case "ollama":
			cfg.Generation.Model = "llama3.2"
		}
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 60 * time.Second
	}
	if cfg.Generation.Provider == "gemini" && cfg.Generation.APIKeyEnv == "" {
		cfg.Generation.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if cfg.Generation.Provider == "ollama" && cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "http://localhost:11434"
	}

	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "local"
	}
	if cfg.Vector.QdrantURL == "" {
		cfg.Vector.QdrantURL = "http://localhost:6333"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "pdf-embeddings"
	}
	if cfg.Vector.APIKeyEnv == "" {
		cfg.Vector.APIKeyEnv = "QDRANT_API_KEY"
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = 10 * time.Second
	}

	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Chunking.ChunkOverlap == nil {
		overlap := cfg.Chunking.OverlapOrDefault()
		cfg.Chunking.ChunkOverlap = &overlap
	}
	if cfg.Chunking.BoundaryWindow == 0 {
		cfg.Chunking.BoundaryWindow = cfg.Chunking.ChunkSize / 5
	}

	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 4
	}
	if cfg.Query.MaxChunkChars == 0 {
		cfg.Query.MaxChunkChars = 1000
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 1
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = time.Second
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 5
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = 10 * time.Second
	}
	if cfg.Worker.JobTimeout == 0 {
		cfg.Worker.JobTimeout = 10 * time.Minute
	}
	if cfg.Worker.LeaseDuration == 0 {
		cfg.Worker.LeaseDuration = cfg.Worker.JobTimeout + LeaseMargin
	}
}
