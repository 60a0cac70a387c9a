package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"bizdesk.org/internal/audit"
	"bizdesk.org/internal/auth"
	"bizdesk.org/internal/obs"
	"bizdesk.org/internal/token"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the collaborators the HTTP layer is wired with.
type Config struct {
	Codec         *token.Codec
	Users         auth.UserStore
	Businesses    auth.BusinessStore
	Memberships   auth.MembershipStore
	ReadyProbe    ReadyProbe
	Version       string
	SecureCookies bool
	RateBurst     int
	RatePerSec    int
}

// API is the HTTP layer.
type API struct {
	mux           *http.ServeMux
	codec         *token.Codec
	users         auth.UserStore
	businesses    auth.BusinessStore
	memberships   auth.MembershipStore
	gate          *auth.Gate
	members       *auth.Members
	readyProbe    ReadyProbe
	version       string
	secureCookies bool
	rateBurst     int
	ratePerSec    int
}

// New wires routes and the authorization services.
func New(cfg Config) (*API, error) {
	gate, err := auth.NewGate(cfg.Businesses, cfg.Memberships)
	if err != nil {
		return nil, err
	}
	members, err := auth.NewMembers(cfg.Memberships)
	if err != nil {
		return nil, err
	}
	a := &API{
		mux:           http.NewServeMux(),
		codec:         cfg.Codec,
		users:         cfg.Users,
		businesses:    cfg.Businesses,
		memberships:   cfg.Memberships,
		gate:          gate,
		members:       members,
		readyProbe:    cfg.ReadyProbe,
		version:       cfg.Version,
		secureCookies: cfg.SecureCookies,
		rateBurst:     cfg.RateBurst,
		ratePerSec:    cfg.RatePerSec,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleAuthRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleAuthLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleAuthLogout)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleAuthRefresh)
	a.mux.HandleFunc("/v1/auth/session", a.handleAuthSession)

	a.mux.HandleFunc("/v1/businesses", a.handleBusinesses)
	a.mux.HandleFunc("/v1/businesses/", a.handleBusinessScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health/info handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bizdesk-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "bizdesk-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) audit(ctx context.Context, event, resourceType, resourceID string, fields map[string]string) {
	payload := make(map[string]any, len(fields)+2)
	payload["resource_type"] = resourceType
	payload["resource_id"] = resourceID
	for k, v := range fields {
		payload[k] = v
	}
	_ = audit.LogEvent(ctx, event, payload)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
