// Unified entry point for study-retrieval-engine.
// If -cmd is set, runs a single CLI command and exits.
// Otherwise, starts the HTTP server on the configured address.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"study-retrieval-engine/internal/api"
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
		addr       = flag.String("addr", "", "listen address, overrides the config when set")
		dataDir    = flag.String("data", "", "data directory for vectors.bin and metadata.db, overrides the config")
		cmd        = flag.String("cmd", "", "CLI command: ingest | query | status")
		input      = flag.String("input", "", "JSON input payload for CLI mode (or pipe via stdin)")
	)
	flag.Parse()

	// .env is optional; set variables in the environment win over it.
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

	if *cmd != "" {
		runCLI(*cmd, *input, eng)
		return
	}

	srv := api.NewServer(eng, cfg.KnowledgeDir)
	log.Printf("study-retrieval-engine listening on %s (data=%s dim=%d model=%s)",
		cfg.Server.Addr, cfg.DataDir, cfg.Embedding.Dimension, cfg.Embedding.Model)
	if err := srv.Start(cfg.Server.Addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// runCLI handles single-shot CLI commands then exits.
func runCLI(cmd, rawInput string, eng *engine.Engine) {
	var inputBytes []byte
	if rawInput != "" {
		inputBytes = []byte(rawInput)
	} else {
		stat, _ := os.Stdin.Stat()
		if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
			dec := json.NewDecoder(os.Stdin)
			var raw interface{}
			dec.Decode(&raw)
			inputBytes, _ = json.Marshal(raw)
		}
	}

	ctx := context.Background()
	out := json.NewEncoder(os.Stdout)

	switch cmd {
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
		log.Fatalf("unknown command: %s", cmd)
	}
}
