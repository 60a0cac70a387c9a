package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bizdesk.org/internal/auth"
)

type createBusinessRequest struct {
	Name string `json:"name"`
}

func (a *API) handleBusinesses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req createBusinessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "business name is required")
		return
	}

	business := &auth.Business{Name: name, OwnerID: identity.UserID}
	if err := a.businesses.Create(r.Context(), business); err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to create business")
		return
	}

	// The creator becomes an active admin of the new business.
	membership := &auth.BusinessUser{
		UserID:     identity.UserID,
		BusinessID: business.ID,
		Role:       auth.RoleAdmin,
		Status:     auth.StatusActive,
	}
	if err := a.memberships.Create(r.Context(), membership); err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to create membership")
		return
	}

	a.audit(r.Context(), "business.create", "business", strconv.FormatInt(business.ID, 10), map[string]string{"name": name})
	writeJSON(w, http.StatusCreated, map[string]any{
		"business":   business,
		"membership": membership,
	})
}

// handleBusinessScoped dispatches everything under /v1/businesses/{id}.
// The raw path segment is handed to the gate untouched; the gate owns id
// validation.
func (a *API) handleBusinessScoped(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/businesses/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	businessID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleBusinessGet(w, r, identity, businessID)
	case len(parts) == 2 && parts[1] == "members":
		a.handleMembersList(w, r, identity, businessID)
	case len(parts) == 4 && parts[1] == "members":
		a.handleMemberAction(w, r, identity, businessID, parts[2], parts[3])
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleBusinessGet(w http.ResponseWriter, r *http.Request, identity auth.Identity, businessID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	grant, err := a.gate.AuthorizeBusinessAccess(r.Context(), identity.UserID, businessID, auth.OpRead)
	if err != nil {
		a.writeGateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"business":   grant.Business,
		"role":       grant.Role,
		"operations": auth.AllowedOperations(grant.Role),
	})
}

func (a *API) handleMembersList(w http.ResponseWriter, r *http.Request, identity auth.Identity, businessID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	grant, err := a.gate.AuthorizeBusinessAccess(r.Context(), identity.UserID, businessID, auth.OpRead)
	if err != nil {
		a.writeGateError(w, r, err)
		return
	}
	members, err := a.memberships.ListByBusiness(r.Context(), grant.BusinessID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// writeGateError surfaces authorization refusals with their exact status
// and message; anything else is an infrastructure failure.
func (a *API) writeGateError(w http.ResponseWriter, r *http.Request, err error) {
	var denial *auth.Denial
	if errors.As(err, &denial) {
		writeJSON(w, denial.Status, map[string]any{"error": denial.Message})
		return
	}
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
