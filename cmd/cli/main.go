package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"study-retrieval-engine/internal/chunker"
	"study-retrieval-engine/internal/config"
	"study-retrieval-engine/internal/embedding"
	"study-retrieval-engine/internal/engine"
	"study-retrieval-engine/internal/loader"
	"study-retrieval-engine/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config file")
		cmd        = flag.String("cmd", "", "command to run: ingest | query | status")
		dataDir    = flag.String("data", "", "data directory, overrides the config")
		input      = flag.String("input", "", "JSON input payload (or use stdin if empty)")
	)
	flag.Parse()

	if *cmd == "" {
		log.Fatalf("error: -cmd is required")
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	// Setup components
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	idx, err := storage.OpenFlatIndex(filepath.Join(cfg.DataDir, "vectors.bin"), cfg.Embedding.Dimension)
	if err != nil {
		log.Fatalf("failed to open vector index: %v", err)
	}
	defer idx.Close()

	meta, err := storage.NewBoltMetadataStore(filepath.Join(cfg.DataDir, "metadata.db"))
	if err != nil {
		log.Fatalf("failed to open metadata store: %v", err)
	}
	defer meta.Close()

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

	eng, err := engine.New(idx, meta, emb, split)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	if _, err := eng.Reconcile(); err != nil {
		log.Fatalf("reconcile failed: %v", err)
	}

	// Read input
	var inputBytes []byte
	if *input != "" {
		inputBytes = []byte(*input)
	} else {
		// Read from stdin
		stat, _ := os.Stdin.Stat()
		if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
			// Actually piped
			dec := json.NewDecoder(os.Stdin)
			var raw interface{}
			dec.Decode(&raw)
			inputBytes, _ = json.Marshal(raw)
		}
	}

	ctx := context.Background()
	out := json.NewEncoder(os.Stdout)

	switch *cmd {
	case "ingest":
		var req struct {
			DocID string `json:"doc_id,omitempty"`
			Path  string `json:"path,omitempty"`
			Text  string `json:"text,omitempty"`
		}
		if err := json.Unmarshal(inputBytes, &req); err != nil {
			log.Fatalf("json decode error: %v", err)
		}
		source := ""
		if req.Path != "" {
			text, err := loader.Load(req.Path)
			if err != nil {
				log.Fatalf("load %s: %v", req.Path, err)
			}
			req.Text = text
			source = filepath.ToSlash(filepath.Clean(req.Path))
			if req.DocID == "" {
				req.DocID = source
			}
		}
		res, err := eng.Ingest(ctx, req.DocID, source, req.Text)
		if err != nil {
			log.Fatalf("ingest error: %v", err)
		}
		out.Encode(res)

	case "query":
		var req struct {
			Question string `json:"question"`
			K        int    `json:"k,omitempty"`
		}
		if err := json.Unmarshal(inputBytes, &req); err != nil {
			log.Fatalf("json decode error: %v", err)
		}
		if req.K == 0 {
			req.K = 5
		}
		res, err := eng.Query(ctx, req.Question, req.K)
		if err != nil {
			log.Fatalf("query error: %v", err)
		}
		out.Encode(res)

	case "status":
		st, err := eng.Status()
		if err != nil {
			log.Fatalf("status error: %v", err)
		}
		out.Encode(st)

	default:
		log.Fatalf("unknown command: %s", *cmd)
	}
}
