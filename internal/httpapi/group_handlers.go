package httpapi

import (
	"net/http"
	"strings"

	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/group"
)

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

func (a *API) handleGroupCollection(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		groups, err := a.groups.List(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if groups == nil {
			groups = []group.Group{}
		}
		writeJSON(w, http.StatusOK, groups)
	case http.MethodPost:
		if !authz.ManagesGroups(user.Role) {
			writeDenied(w, r)
			return
		}
		var req createGroupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		g, err := a.groups.Create(r.Context(), req.Name, req.Description, user.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = a.trail.Record(r.Context(), audit.ActionCreate, "user_groups", g.ID, user.ID, nil, map[string]any{
			"name":        g.Name,
			"description": g.Description,
		})
		writeJSON(w, http.StatusCreated, g)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleGroupResource(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/user-groups/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleGroup(w, r, user, parts[0])
	case len(parts) == 2 && parts[1] == "members":
		a.handleGroupMembers(w, r, user, parts[0])
	case len(parts) == 3 && parts[1] == "members":
		a.removeGroupMember(w, r, user, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleGroup(w http.ResponseWriter, r *http.Request, user authz.CurrentUser, groupID string) {
	switch r.Method {
	case http.MethodGet:
		g, err := a.groups.Get(r.Context(), groupID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	case http.MethodDelete:
		if !authz.ManagesGroups(user.Role) {
			writeDenied(w, r)
			return
		}
		g, err := a.groups.Get(r.Context(), groupID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if err := a.groups.Delete(r.Context(), groupID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = a.trail.Record(r.Context(), audit.ActionDelete, "user_groups", groupID, user.ID, map[string]any{
			"name":        g.Name,
			"description": g.Description,
		}, nil)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleGroupMembers(w http.ResponseWriter, r *http.Request, user authz.CurrentUser, groupID string) {
	switch r.Method {
	case http.MethodGet:
		members, err := a.groups.Members(r.Context(), groupID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if members == nil {
			members = []group.Membership{}
		}
		writeJSON(w, http.StatusOK, members)
	case http.MethodPost:
		if !authz.ManagesGroups(user.Role) {
			writeDenied(w, r)
			return
		}
		var req addMemberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		m, err := a.groups.AddMember(r.Context(), groupID, req.UserID, user.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = a.trail.Record(r.Context(), audit.ActionCreate, "user_group_members", groupID, user.ID, nil, map[string]any{
			"group_id": m.GroupID,
			"user_id":  m.UserID,
		})
		writeJSON(w, http.StatusCreated, m)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) removeGroupMember(w http.ResponseWriter, r *http.Request, user authz.CurrentUser, groupID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !authz.ManagesGroups(user.Role) {
		writeDenied(w, r)
		return
	}
	if err := a.groups.RemoveMember(r.Context(), groupID, userID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = a.trail.Record(r.Context(), audit.ActionDelete, "user_group_members", groupID, user.ID, map[string]any{
		"group_id": groupID,
		"user_id":  userID,
	}, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
