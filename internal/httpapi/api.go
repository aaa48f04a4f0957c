package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"spendtrack.org/internal/alert"
	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/auth"
	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/grant"
	"spendtrack.org/internal/group"
	"spendtrack.org/internal/obs"
	"spendtrack.org/internal/ownership"
	"spendtrack.org/internal/record"
)

// ReadyProbe checks readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the services the API exposes.
type Deps struct {
	Auth    *auth.Service
	Alerts  *alert.Service
	Engine  *authz.Engine
	Grants  *grant.Service
	Groups  *group.Service
	Records *record.Service
	Trail   *audit.Logger
	Lookup  ownership.RecordLookup
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth    *auth.Service
	alerts  *alert.Service
	engine  *authz.Engine
	grants  *grant.Service
	groups  *group.Service
	records *record.Service
	trail   *audit.Logger
	lookup  ownership.RecordLookup
}

// New wires routes over the given services.
func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       deps.Auth,
		alerts:     deps.Alerts,
		engine:     deps.Engine,
		grants:     deps.Grants,
		groups:     deps.Groups,
		records:    deps.Records,
		trail:      deps.Trail,
		lookup:     deps.Lookup,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)

	a.mux.HandleFunc("/v1/record-access", a.handleGrantCollection)
	a.mux.HandleFunc("/v1/record-access/", a.handleGrantResource)

	a.mux.HandleFunc("/v1/audit-logs", a.handleAuditLogs)

	a.mux.HandleFunc("/v1/alerts", a.handleAlerts)

	a.mux.HandleFunc("/v1/user-groups", a.handleGroupCollection)
	a.mux.HandleFunc("/v1/user-groups/", a.handleGroupResource)

	a.mux.HandleFunc("/v1/records/", a.handleRecords)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "spendtrack-api",
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
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
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

// writeDenied emits the uniform 403 body. The message never varies so a
// caller cannot probe why access was refused.
func writeDenied(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusForbidden, authz.ErrPermissionDenied.Error())
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

// handleDomainError maps the error taxonomy onto status codes. Permission
// denials go through writeDenied so the body stays uniform.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrPermissionDenied):
		writeDenied(w, r)
	case errors.Is(err, grant.ErrInvalidShape),
		errors.Is(err, grant.ErrInvalidExpiration),
		errors.Is(err, grant.ErrInvalidLevel),
		errors.Is(err, ownership.ErrUnknownType),
		errors.Is(err, record.ErrInvalidInput),
		errors.Is(err, group.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, audit.ErrInvalidEntry):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ownership.ErrMissingParent):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, grant.ErrNotFound),
		errors.Is(err, record.ErrNotFound),
		errors.Is(err, group.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, group.ErrConflict), errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// currentUser extracts the authenticated user; a missing identity is a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (authz.CurrentUser, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return authz.CurrentUser{}, false
	}
	return user, true
}
