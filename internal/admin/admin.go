package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/HanTheDev/llm-fusion-gateway/internal/admission"
	"github.com/HanTheDev/llm-fusion-gateway/internal/auth"
	"github.com/HanTheDev/llm-fusion-gateway/internal/cache"
	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

const (
	adminPrefix     = "/admin"
	dateLayout      = "2006-01-02"
	defaultTokenTTL = 30 * 24 * time.Hour
	maxTokenTTL     = 365 * 24 * time.Hour
)

// Callers exposes admission state to operators.
type Callers interface {
	Profile(ctx context.Context, callerID string) (*admission.CallerView, error)
	Blacklist(ctx context.Context, ip string) error
	Unblacklist(ctx context.Context, ip string) error
}

// Analytics reads aggregated lead rows.
type Analytics interface {
	GetCallerAnalytics(ctx context.Context, callerID string, from, to time.Time) (*models.CallerAnalytics, error)
	GetStrategyStats(ctx context.Context) ([]models.StrategyStats, error)
}

type CacheStats interface {
	Stats(ctx context.Context) (*cache.Stats, error)
}

type AdminHandler struct {
	callers     Callers
	analytics   Analytics
	cache       CacheStats
	tokenSecret string
	logger      *slog.Logger
}

type Option func(*AdminHandler)

func WithAnalytics(a Analytics) Option {
	return func(h *AdminHandler) { h.analytics = a }
}

func WithCacheStats(c CacheStats) Option {
	return func(h *AdminHandler) { h.cache = c }
}

// WithTokenSecret enables privilege token issuing.
func WithTokenSecret(secret string) Option {
	return func(h *AdminHandler) { h.tokenSecret = secret }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *AdminHandler) { h.logger = l }
}

func NewAdminHandler(callers Callers, opts ...Option) *AdminHandler {
	h := &AdminHandler{callers: callers, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the operator API under /admin behind the admin key.
func (h *AdminHandler) RegisterRoutes(router *mux.Router, adminKey string) {
	sub := router.PathPrefix(adminPrefix).Subrouter()
	sub.Use(auth.RequireAdminKey(adminKey))

	// Privilege and blacklist
	sub.HandleFunc("/privilege-tokens", h.IssueToken).Methods("POST")
	sub.HandleFunc("/blacklist", h.AddToBlacklist).Methods("POST")
	sub.HandleFunc("/blacklist/{ip}", h.RemoveFromBlacklist).Methods("DELETE")

	// Callers and analytics
	sub.HandleFunc("/callers/{id}", h.GetCaller).Methods("GET")
	sub.HandleFunc("/callers/{id}/analytics", h.GetAnalytics).Methods("GET")
	sub.HandleFunc("/strategies/stats", h.GetStrategyStats).Methods("GET")
	sub.HandleFunc("/cache/stats", h.GetCacheStats).Methods("GET")
}

func (h *AdminHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.tokenSecret == "" {
		http.Error(w, "Privilege tokens are disabled", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Subject string `json:"subject"`
		TTL     string `json:"ttl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		http.Error(w, "subject is required", http.StatusBadRequest)
		return
	}

	ttl := defaultTokenTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 || d > maxTokenTTL {
			http.Error(w, "ttl must be a positive duration of at most 8760h", http.StatusBadRequest)
			return
		}
		ttl = d
	}

	token, err := auth.IssuePrivilegeToken(req.Subject, h.tokenSecret, ttl)
	if err != nil {
		h.logger.Error("privilege token signing failed", "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	h.logger.Info("privilege token issued", "subject", req.Subject, "ttl", ttl.String())

	writeJSON(w, http.StatusCreated, map[string]string{
		"token":      token,
		"subject":    req.Subject,
		"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
	})
}

func (h *AdminHandler) AddToBlacklist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	ip := net.ParseIP(strings.TrimSpace(req.IP))
	if ip == nil {
		http.Error(w, "ip must be a valid address", http.StatusBadRequest)
		return
	}

	if err := h.callers.Blacklist(r.Context(), ip.String()); err != nil {
		h.logger.Error("blacklist update failed", "error", err)
		http.Error(w, "Failed to update blacklist", http.StatusInternalServerError)
		return
	}
	h.logger.Info("origin blacklisted", "ip", ip.String())

	writeJSON(w, http.StatusCreated, map[string]string{"ip": ip.String(), "status": "blacklisted"})
}

func (h *AdminHandler) RemoveFromBlacklist(w http.ResponseWriter, r *http.Request) {
	ip := net.ParseIP(mux.Vars(r)["ip"])
	if ip == nil {
		http.Error(w, "Invalid IP address", http.StatusBadRequest)
		return
	}

	if err := h.callers.Unblacklist(r.Context(), ip.String()); err != nil {
		h.logger.Error("blacklist update failed", "error", err)
		http.Error(w, "Failed to update blacklist", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) GetCaller(w http.ResponseWriter, r *http.Request) {
	view, err := h.callers.Profile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.logger.Error("caller lookup failed", "error", err)
		http.Error(w, "Failed to load caller", http.StatusInternalServerError)
		return
	}
	if view == nil {
		http.Error(w, "Caller not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *AdminHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		http.Error(w, "Analytics storage is not configured", http.StatusServiceUnavailable)
		return
	}

	// Dates like "2024-01-01"; both ends inclusive.
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "Invalid from date", http.StatusBadRequest)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "Invalid to date", http.StatusBadRequest)
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		http.Error(w, "from must not be after to", http.StatusBadRequest)
		return
	}

	stats, err := h.analytics.GetCallerAnalytics(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		h.logger.Error("caller analytics failed", "error", err)
		http.Error(w, "Failed to get analytics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) GetStrategyStats(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		http.Error(w, "Analytics storage is not configured", http.StatusServiceUnavailable)
		return
	}

	stats, err := h.analytics.GetStrategyStats(r.Context())
	if err != nil {
		h.logger.Error("strategy stats failed", "error", err)
		http.Error(w, "Failed to get strategy stats", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []models.StrategyStats{}
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		http.Error(w, "Result cache is disabled", http.StatusServiceUnavailable)
		return
	}

	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		h.logger.Error("cache stats failed", "error", err)
		http.Error(w, "Failed to get cache stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
