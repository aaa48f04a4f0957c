package httpapi

import (
	"net/http"
	"strings"

	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/ownership"
	"spendtrack.org/internal/record"
)

type createRecordRequest struct {
	ParentID     string         `json:"parent_id,omitempty"`
	OwnerGroupID string         `json:"owner_group_id,omitempty"`
	Fields       map[string]any `json:"fields"`
}

type updateRecordRequest struct {
	Fields map[string]any `json:"fields"`
}

// handleRecords routes /v1/records/{type} and /v1/records/{type}/{id}.
func (a *API) handleRecords(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/records/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	recordType, err := ownership.ParseRecordType(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		records, err := a.records.List(r.Context(), user, recordType)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if records == nil {
			records = []record.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	case len(parts) == 1 && r.Method == http.MethodPost:
		var req createRecordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rec, err := a.records.Create(r.Context(), user, record.CreateInput{
			Type:         recordType,
			ParentID:     req.ParentID,
			OwnerGroupID: req.OwnerGroupID,
			Fields:       req.Fields,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	case len(parts) == 1:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	case len(parts) == 2:
		a.handleRecord(w, r, user, recordType, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRecord(w http.ResponseWriter, r *http.Request, user authz.CurrentUser, t ownership.RecordType, id string) {
	switch r.Method {
	case http.MethodGet:
		rec, err := a.records.Get(r.Context(), user, t, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodPut:
		var req updateRecordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rec, err := a.records.Update(r.Context(), user, t, id, req.Fields)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := a.records.Delete(r.Context(), user, t, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
