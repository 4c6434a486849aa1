package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const baseURL = "http://localhost:8080"

type ingestRequest struct {
	DocID  string `json:"doc_id"`
	Source string `json:"source,omitempty"`
	Text   string `json:"text"`
}

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

func main() {
	// This demo walks the whole loop:
	// - Ingest a few small documents as raw text
	// - Ask a question and print the retrieved chunks
	// A real deployment would point /ingest/path at a document directory and
	// let the embedding server produce the vectors.
	docs := []ingestRequest{
		{DocID: "notes/setup.md", Text: "To set up the engine, run cmd/server with a config.yaml next to it. The data directory holds vectors.bin and metadata.db."},
		{DocID: "notes/chunking.md", Text: "Documents are split into overlapping rune windows before embedding. The window size and overlap live in the chunking config section."},
		{DocID: "notes/recovery.md", Text: "On startup the engine compares the vector count with the chunk count and truncates whichever store ran ahead during a crash."},
	}

	for _, d := range docs {
		raw, code, err := postJSON("/ingest", d)
		if err != nil {
			panic(err)
		}
		fmt.Println("ingest", code, raw)
	}

	raw, code, err := postJSON("/query", queryRequest{
		Question: "what happens after a crash?",
		K:        3,
	})
	if err != nil {
		panic(err)
	}
	fmt.Println("query", code, raw)

	resp, err := http.Get(baseURL + "/status")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println("status", resp.StatusCode, string(body))
}

func postJSON(path string, payload any) (string, int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", 0, err
	}
	resp, err := http.Post(baseURL+path, "application/json", bytes.NewBuffer(b))
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body), resp.StatusCode, nil
}
