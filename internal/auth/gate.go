package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// Grant is the request-scoped result of a successful gate check. It is
// rebuilt on every invocation from the current membership row and never
// cached: role and status can change between requests.
type Grant struct {
	UserID       int64
	BusinessID   int64
	Role         Role
	Business     *Business
	MembershipID int64
	Operations   map[Operation]struct{}
}

// Can reports whether the grant covers the operation.
func (g *Grant) Can(op Operation) bool {
	_, ok := g.Operations[op]
	return ok
}

// Denial is a structured authorization refusal with the HTTP status the
// boundary should surface.
type Denial struct {
	Status  int
	Message string
}

func (d *Denial) Error() string { return d.Message }

func deny(status int, message string) *Denial {
	return &Denial{Status: status, Message: message}
}

// Gate is the single choke point every tenant-scoped operation passes
// through before touching business data. It reads businesses and
// memberships and never mutates them.
type Gate struct {
	businesses  BusinessStore
	memberships MembershipStore
}

// NewGate constructs the access gate.
func NewGate(businesses BusinessStore, memberships MembershipStore) (*Gate, error) {
	if businesses == nil || memberships == nil {
		return nil, errors.New("auth: gate requires business and membership stores")
	}
	return &Gate{businesses: businesses, memberships: memberships}, nil
}

// AuthorizeBusinessAccess resolves the caller's membership for the target
// business and checks status and role against the requested operation.
// The returned error is a *Denial for authorization refusals; any other
// error is an infrastructure failure.
//
// Downstream handlers must use Grant.BusinessID, never the raw input: the
// grant carries the validated id together with the already-loaded Business
// row and the full permitted-operation set for the role.
func (g *Gate) AuthorizeBusinessAccess(ctx context.Context, userID int64, businessID any, op Operation) (*Grant, error) {
	id, ok := CoerceBusinessID(businessID)
	if !ok {
		return nil, deny(http.StatusBadRequest, "businessId is required")
	}

	business, err := g.businesses.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, deny(http.StatusNotFound, "Business not found")
		}
		return nil, err
	}

	membership, err := g.memberships.Find(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, deny(http.StatusForbidden, "Forbidden: not a member of this business")
		}
		return nil, err
	}

	if membership.Status != StatusActive {
		return nil, deny(http.StatusForbidden, fmt.Sprintf("Access denied: status %s", membership.Status))
	}

	if !OperationAllowed(membership.Role, op) {
		return nil, deny(http.StatusForbidden, "Forbidden: insufficient role")
	}

	ops := make(map[Operation]struct{})
	for _, allowed := range AllowedOperations(membership.Role) {
		ops[allowed] = struct{}{}
	}
	return &Grant{
		UserID:       userID,
		BusinessID:   id,
		Role:         membership.Role,
		Business:     business,
		MembershipID: membership.ID,
		Operations:   ops,
	}, nil
}

// CoerceBusinessID converts untrusted input into a positive integer id.
// Accepts integer types, integral floats, json.Number and numeric strings;
// everything else, zero and negatives are rejected.
func CoerceBusinessID(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, t > 0
	case int:
		return int64(t), t > 0
	case int32:
		return int64(t), t > 0
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int64(t), t > 0
	case json.Number:
		id, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return id, id > 0
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return id, id > 0
	default:
		return 0, false
	}
}
