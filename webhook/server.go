// Package webhook is the content ingress: signed HTTP endpoints that
// create items and immediately request approval, plus the status API.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"social-poster/approval"
	"social-poster/database"
	"social-poster/models"
	"social-poster/poster"
)

// Server wires the ingress endpoints to the store, the approval
// orchestrator and the dispatch engine.
type Server struct {
	store      *database.Store
	orch       *approval.Orchestrator
	dispatcher *poster.Dispatcher
	cfg        *models.Config
}

// NewServer builds the ingress server.
func NewServer(store *database.Store, orch *approval.Orchestrator, dispatcher *poster.Dispatcher, cfg *models.Config) *Server {
	return &Server{store: store, orch: orch, dispatcher: dispatcher, cfg: cfg}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/v1/content", s.handleContent)
	r.Get("/v1/items", s.handleItems)
	r.Get("/v1/stats", s.handleStats)
	return r
}

// Start runs the HTTP server in the background and returns it for
// shutdown.
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.WebhookPort),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Webhook server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Webhook server error: %v", err)
		}
	}()
	return srv
}

type contentRequest struct {
	Topic        string   `json:"topic"`
	Summary      string   `json:"summary"`
	FullContent  string   `json:"full_content"`
	Link         string   `json:"link"`
	ImageURL     string   `json:"image_url"`
	VideoURL     string   `json:"video_url"`
	Priority     string   `json:"priority"`
	Tags         []string `json:"tags"`
	ScheduledFor string   `json:"scheduled_for"`
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	if !s.verifySignature(body, r.Header.Get("X-Signature")) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req contentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Topic == "" || req.Summary == "" {
		writeError(w, http.StatusBadRequest, "topic and summary are required")
		return
	}

	priority := models.Priority(req.Priority)
	switch priority {
	case models.PriorityHigh, models.PriorityNormal, models.PriorityLow:
	case "":
		priority = models.PriorityNormal
	default:
		writeError(w, http.StatusBadRequest, "priority must be high, normal or low")
		return
	}

	// Eligibility compares scheduled_for as an RFC3339 string; a malformed
	// value would make the item silently never eligible.
	if req.ScheduledFor != "" {
		if _, err := time.Parse(time.RFC3339, req.ScheduledFor); err != nil {
			writeError(w, http.StatusBadRequest, "scheduled_for must be RFC3339")
			return
		}
	}

	itemID, err := s.store.CreateItem(database.CreateItemInput{
		Topic:        req.Topic,
		Summary:      req.Summary,
		FullContent:  req.FullContent,
		Link:         req.Link,
		ImageURL:     req.ImageURL,
		VideoURL:     req.VideoURL,
		Priority:     priority,
		Source:       "webhook",
		Tags:         req.Tags,
		ScheduledFor: req.ScheduledFor,
		RequestID:    uuid.NewString(),
	}, s.cfg.EnabledChannels)
	if err != nil {
		log.Printf("Webhook item creation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not create item")
		return
	}
	log.Printf("Created item #%d: %s", itemID, req.Topic)

	if err := s.orch.RequestApproval(itemID, s.dispatcher.Dispatch, s.onRejected); err != nil {
		// The item stays pending; a restart or manual re-request picks it
		// up. The caller still gets its ID.
		log.Printf("Approval request for item #%d failed: %v", itemID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"item_id": itemID,
		"message": "Item created and sent for approval",
	})
}

func (s *Server) onRejected(itemID int64) {
	log.Printf("Item #%d rejected", itemID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"channels": s.cfg.EnabledChannels,
		"stats":    stats,
	})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if !s.verifySignature([]byte("GET /v1/items"), r.Header.Get("X-Signature")) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	items, err := s.store.RecentItems(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) verifySignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
