// Command browse serves the JSON API and static output tree produced
// by cmd/chatimport.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"chatgpt-export-corpus/internal/api"
	"chatgpt-export-corpus/internal/store"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":8080", "HTTP listen address")
	dataPath := flag.String("data", "data/conversations_store.json", "path to conversation store")
	outDir := flag.String("out", "out", "output tree produced by chatimport")
	flag.Parse()

	convStore, err := store.NewConversationStore(*dataPath)
	if err != nil {
		log.Fatalf("failed to initialize conversation store: %v", err)
	}

	apiServer := api.New(convStore, *outDir)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Router())
	mux.Handle("/", http.FileServer(http.Dir(*outDir)))

	server := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}
