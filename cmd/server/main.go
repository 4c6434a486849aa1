package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"study-retrieval-engine/internal/api"
	"study-retrieval-engine/internal/chunker"
	"study-retrieval-engine/internal/config"
	"study-retrieval-engine/internal/embedding"
	"study-retrieval-engine/internal/engine"
	"study-retrieval-engine/internal/storage"
)

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "path to the YAML config file")
		addr         = flag.String("addr", "", "listen address, overrides the config when set")
		dataDir      = flag.String("data", "", "data directory (vectors.bin, metadata.db), overrides the config")
		knowledgeDir = flag.String("knowledge", "", "document directory for path ingest and uploads, overrides the config")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *knowledgeDir != "" {
		cfg.KnowledgeDir = *knowledgeDir
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	idx, err := storage.OpenFlatIndex(filepath.Join(cfg.DataDir, "vectors.bin"), cfg.Embedding.Dimension)
	if err != nil {
		log.Fatalf("failed to open vector index: %v", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.Printf("vector index close error: %v", err)
		}
	}()

	meta, err := storage.NewBoltMetadataStore(filepath.Join(cfg.DataDir, "metadata.db"))
	if err != nil {
		log.Fatalf("failed to open metadata store: %v", err)
	}
	defer func() {
		if err := meta.Close(); err != nil {
			log.Printf("metadata store close error: %v", err)
		}
	}()

	emb, err := embedding.NewOpenAIClient(embedding.OpenAIConfig{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKeyEnv: cfg.Embedding.APIKeyEnv,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.EmbeddingTimeout(),
	})
	if err != nil {
		log.Fatalf("failed to build embedding client: %v", err)
	}

	split, err := chunker.New(cfg.Chunking.WindowSize, cfg.Chunking.Overlap)
	if err != nil {
		log.Fatalf("failed to build chunker: %v", err)
	}

	// Engine wires chunker + embedder + both stores together.
	eng, err := engine.New(idx, meta, emb, split)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	// Drop any rows a previous crash left half-committed before serving.
	if rep, err := eng.Reconcile(); err != nil {
		log.Fatalf("reconcile failed: %v", err)
	} else {
		log.Printf("startup state: %d vectors, %d chunks, %d aligned", rep.Vectors, rep.Chunks, rep.Aligned)
	}

	srv := api.NewServer(eng, cfg.KnowledgeDir)

	log.Printf("study-retrieval-engine listening on %s (data=%s dim=%d model=%s)",
		cfg.Server.Addr, cfg.DataDir, cfg.Embedding.Dimension, cfg.Embedding.Model)
	if err := http.ListenAndServe(cfg.Server.Addr, srv.Router()); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
