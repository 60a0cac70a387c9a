package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bizdesk.org/internal/auth"
)

type changeRoleRequest struct {
	Role string `json:"role"`
}

type banRequest struct {
	Reason string     `json:"reason"`
	Until  *time.Time `json:"until,omitempty"`
}

// handleMemberAction routes /v1/businesses/{id}/members/{userID}/{action}.
// Every action passes the gate with the update operation before the
// membership service applies its own hierarchy checks.
func (a *API) handleMemberAction(w http.ResponseWriter, r *http.Request, identity auth.Identity, businessID, targetID, action string) {
	wantMethod := http.MethodPost
	if action == "role" {
		wantMethod = http.MethodPut
	}
	if r.Method != wantMethod {
		methodNotAllowed(w, r, wantMethod)
		return
	}

	targetUserID, err := strconv.ParseInt(targetID, 10, 64)
	if err != nil || targetUserID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid member id")
		return
	}

	grant, err := a.gate.AuthorizeBusinessAccess(r.Context(), identity.UserID, businessID, auth.OpUpdate)
	if err != nil {
		a.writeGateError(w, r, err)
		return
	}

	var updated *auth.BusinessUser
	switch action {
	case "role":
		var req changeRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err = a.members.ChangeRole(r.Context(), identity.UserID, grant.BusinessID, targetUserID, auth.Role(req.Role))
	case "ban":
		var req banRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err = a.members.Ban(r.Context(), identity.UserID, grant.BusinessID, targetUserID, req.Reason, req.Until)
	case "unban":
		updated, err = a.members.Unban(r.Context(), identity.UserID, grant.BusinessID, targetUserID)
	case "approve":
		updated, err = a.members.Approve(r.Context(), identity.UserID, grant.BusinessID, targetUserID)
	case "reject":
		updated, err = a.members.Reject(r.Context(), identity.UserID, grant.BusinessID, targetUserID)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.writeMembersError(w, r, err)
		return
	}

	a.audit(r.Context(), "member."+action, "business_user", strconv.FormatInt(updated.ID, 10), map[string]string{
		"business_id":    strconv.FormatInt(grant.BusinessID, 10),
		"target_user_id": strconv.FormatInt(targetUserID, 10),
	})
	writeJSON(w, http.StatusOK, map[string]any{"membership": updated})
}

func (a *API) writeMembersError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
