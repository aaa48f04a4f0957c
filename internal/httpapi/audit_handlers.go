package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/authz"
)

// handleAuditLogs serves the global audit trail. Only Admin may query it;
// Manager's admin capability covers group management, not the trail.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !authz.CanQueryAudit(user.Role) {
		writeDenied(w, r)
		return
	}

	q := r.URL.Query()
	f := audit.Filter{UserID: strings.TrimSpace(q.Get("user_id"))}

	if raw := strings.TrimSpace(q.Get("start_date")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "start_date must be RFC3339")
			return
		}
		f.Start = &t
	}
	if raw := strings.TrimSpace(q.Get("end_date")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "end_date must be RFC3339")
			return
		}
		f.End = &t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		f.Limit = n
	}

	entries, err := a.trail.Query(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
