package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/grant"
	"spendtrack.org/internal/ownership"
)

type createGrantRequest struct {
	RecordType  string     `json:"record_type"`
	RecordID    string     `json:"record_id"`
	AccessLevel string     `json:"access_level"`
	UserID      string     `json:"user_id,omitempty"`
	GroupID     string     `json:"group_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (a *API) handleGrantCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	recordType, err := ownership.ParseRecordType(req.RecordType)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	level, err := authz.ParseAccessLevel(req.AccessLevel)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, ok := a.resolveResource(w, r, recordType, req.RecordID)
	if !ok {
		return
	}
	canGrant, err := a.engine.CanAdministerGrants(r.Context(), user, res)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !canGrant {
		writeDenied(w, r)
		return
	}

	g, err := a.grants.Create(r.Context(), grant.Grant{
		RecordType: recordType,
		RecordID:   req.RecordID,
		UserID:     req.UserID,
		GroupID:    req.GroupID,
		Level:      level,
		GrantedBy:  user.ID,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	// Grant lifecycle operations are audited like any other mutation.
	_ = a.trail.Record(r.Context(), audit.ActionCreate, "record_access_grants", g.ID, user.ID, nil, grantSnapshot(g))
	writeJSON(w, http.StatusOK, g)
}

func (a *API) handleGrantResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/record-access/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		a.revokeGrant(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodGet:
		a.listGrants(w, r, parts[0], parts[1])
	case len(parts) == 1:
		methodNotAllowed(w, r, http.MethodDelete)
	case len(parts) == 2:
		methodNotAllowed(w, r, http.MethodGet)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// revokeGrant deletes a grant. A missing grant is a success so concurrent
// revokes cannot fail each other.
func (a *API) revokeGrant(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	g, err := a.grants.Get(r.Context(), id)
	if errors.Is(err, grant.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	res := authz.Resource{Type: string(g.RecordType), ID: g.RecordID}
	if owner, err := a.lookup.OwnerGroup(r.Context(), ownership.RecordRef{Type: g.RecordType, ID: g.RecordID}); err == nil {
		res.OwnerGroupID = owner
	}
	canRevoke, err := a.engine.CanAdministerGrants(r.Context(), user, res)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !canRevoke {
		writeDenied(w, r)
		return
	}

	if err := a.grants.Revoke(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = a.trail.Record(r.Context(), audit.ActionDelete, "record_access_grants", g.ID, user.ID, grantSnapshot(g), nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// listGrants returns every grant for a record, expired rows included; the
// engine, not this endpoint, decides which ones still count.
func (a *API) listGrants(w http.ResponseWriter, r *http.Request, rawType, recordID string) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	recordType, err := ownership.ParseRecordType(rawType)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := a.resolveResource(w, r, recordType, recordID)
	if !ok {
		return
	}

	readable, err := a.engine.Readable(r.Context(), user, res)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !readable {
		writeDenied(w, r)
		return
	}

	grants, err := a.grants.ListFor(r.Context(), recordType, recordID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if grants == nil {
		grants = []grant.Grant{}
	}
	writeJSON(w, http.StatusOK, grants)
}

// resolveResource loads the owner group of the target record; a dangling
// reference is a 404.
func (a *API) resolveResource(w http.ResponseWriter, r *http.Request, t ownership.RecordType, id string) (authz.Resource, bool) {
	if strings.TrimSpace(id) == "" {
		writeError(w, r, http.StatusBadRequest, "record_id is required")
		return authz.Resource{}, false
	}
	owner, err := a.lookup.OwnerGroup(r.Context(), ownership.RecordRef{Type: t, ID: id})
	if errors.Is(err, ownership.ErrMissingParent) {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return authz.Resource{}, false
	}
	if err != nil {
		handleDomainError(w, r, err)
		return authz.Resource{}, false
	}
	return authz.Resource{Type: string(t), ID: id, OwnerGroupID: owner}, true
}

func grantSnapshot(g grant.Grant) map[string]any {
	snap := map[string]any{
		"record_type":  string(g.RecordType),
		"record_id":    g.RecordID,
		"access_level": string(g.Level),
		"granted_by":   g.GrantedBy,
	}
	if g.UserID != "" {
		snap["user_id"] = g.UserID
	}
	if g.GroupID != "" {
		snap["group_id"] = g.GroupID
	}
	if g.ExpiresAt != nil {
		snap["expires_at"] = g.ExpiresAt.Format(time.RFC3339)
	}
	return snap
}
