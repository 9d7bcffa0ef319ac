// Package api exposes a read-mostly JSON API over a resolved output
// tree: the pipeline is the sole writer of conversation data in this
// domain, so unlike a mutable CRUD surface this server
// only lists, fetches, and serves media/asset bytes already on disk.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chatgpt-export-corpus/internal/store"
)

// Server wraps the HTTP handlers for the resolved conversation corpus.
type Server struct {
	conversations *store.ConversationStore
	outDir        string
}

// New creates a new Server serving conversations from store and
// static files (media/assets) rooted at outDir.
func New(conversations *store.ConversationStore, outDir string) *Server {
	return &Server{conversations: conversations, outDir: outDir}
}

// Router builds the chi router, replacing manual
// net/http.ServeMux + strings.TrimPrefix path parsing with route
// parameters.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", s.listConversations)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getConversation)
			r.Get("/media/{name}", s.getMedia)
			r.Get("/assets/{name}", s.getAsset)
		})
	})

	return r
}

func (s *Server) listConversations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": s.conversations.List(),
	})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.conversations.Get(id)
	if err != nil {
		if err == store.ErrNotFound {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) getMedia(w http.ResponseWriter, r *http.Request) {
	s.serveStatic(w, r, "media")
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	s.serveStatic(w, r, "assets")
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request, subdir string) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	conv, err := s.conversations.Get(id)
	if err != nil {
		if err == store.ErrNotFound {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if conv.FolderName == "" {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.outDir, conv.FolderName, subdir, filepath.Base(name))
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
