package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"cgmatch/internal/report"
	"cgmatch/internal/storage"
)

// Streamer is the part of the pipeline the server needs for live updates.
type Streamer interface {
	Subscribe() (<-chan report.Item, func())
}

// Server exposes run history and live pair results over HTTP.
type Server struct {
	addr   string
	store  *storage.Store
	hub    *Hub
	log    *slog.Logger
	server *http.Server
}

// NewServer creates a status server. store may be nil when history is
// disabled.
func NewServer(addr string, store *storage.Store, log *slog.Logger) *Server {
	return &Server{
		addr:  addr,
		store: store,
		hub:   NewHub(log),
		log:   log,
	}
}

// Attach forwards live pair results from a pipeline to connected clients.
// Call it once per run; it returns when the pipeline's stream closes.
func (s *Server) Attach(streamer Streamer) {
	ch, unsub := streamer.Subscribe()
	defer unsub()
	for item := range ch {
		payload, err := json.Marshal(item)
		if err != nil {
			continue
		}
		s.hub.Broadcast(payload)
	}
}

// Start begins serving and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run(ctx)

	r := mux.NewRouter()
	s.setupRoutes(r)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/runs", s.handleRuns).Methods("GET")
	r.HandleFunc("/runs/{id}/pairs", s.handleRunPairs).Methods("GET")
	r.HandleFunc("/stream", s.handleStream).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.RecentRuns(100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

func (s *Server) handleRunPairs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	recs, err := s.store.RunPairs(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	msgCh, unsubscribe := s.hub.SubscribeBytes()
	defer unsubscribe()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: " + string(msg) + "\n\n"))
			flusher.Flush()
		}
	}
}
