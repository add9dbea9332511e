// Package remotetest provides an in-memory remote posts service for tests
// and local development.
package remotetest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nhle/reminders/internal/remote"
)

// Server is a fake remote. The zero value is not usable; call New.
type Server struct {
	mu     sync.Mutex
	posts  []remote.Post
	nextID int

	uploads   []remote.Post
	downloads int

	// FailUpload, when set, returns an HTTP status for a post; 0 accepts it.
	FailUpload func(p remote.Post) int
	// DownloadStatus, when non-zero, is returned for every download.
	DownloadStatus int
	// OmitIDs makes successful uploads answer without an id.
	OmitIDs bool
	// StringIDs makes the server answer with string ids.
	StringIDs bool
	// Token, when set, is required as a bearer token.
	Token string
}

// New creates an empty server whose first assigned id is 101.
func New() *Server {
	return &Server{nextID: 101}
}

// Seed adds posts as if another device had uploaded them.
func (s *Server) Seed(posts ...remote.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, posts...)
}

// Uploads returns every post received, accepted or not, in arrival order.
func (s *Server) Uploads() []remote.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Post(nil), s.uploads...)
}

// Posts returns the stored posts.
func (s *Server) Posts() []remote.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Post(nil), s.posts...)
}

// Downloads returns how many download requests were served.
func (s *Server) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

// Handler returns the chi router serving /posts.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)
	r.Post("/posts", s.createPost)
	r.Get("/posts", s.listPosts)
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var p remote.Post
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, p)
	fail := s.FailUpload
	s.mu.Unlock()

	if fail != nil {
		if status := fail(p); status != 0 {
			writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
			return
		}
	}

	s.mu.Lock()
	id := strconv.Itoa(s.nextID)
	s.nextID++
	if s.StringIDs {
		id = "post-" + id
	}
	p.ID = remote.FlexibleID(id)
	s.posts = append(s.posts, p)
	omit := s.OmitIDs
	s.mu.Unlock()

	if omit {
		writeJSON(w, http.StatusCreated, map[string]any{"title": p.Title, "body": p.Body, "userId": p.UserID})
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads++

	if s.DownloadStatus != 0 {
		writeJSON(w, s.DownloadStatus, map[string]string{"error": http.StatusText(s.DownloadStatus)})
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	out := make([]remote.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if userID != "" && strconv.Itoa(p.UserID) != userID {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
