// Package policy restricts a caller's visible rows to their own office unless
// they hold province-wide privilege.
//
// Scoping is explicit: stores receive a Scope and compose its predicate into
// their queries. The one sanctioned cross-tenant read is the claim-history
// fetch used by risk scoring, which takes no Scope at all.
package policy

import (
	"context"
	"fmt"

	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

// Scope is the row visibility of one caller.
type Scope struct {
	ProvinceWide bool
	TenantID     id.TenantID
}

// Province returns a scope that sees every tenant.
func Province() Scope { return Scope{ProvinceWide: true} }

// ForTenant returns a scope limited to tenantID.
func ForTenant(tenantID id.TenantID) Scope { return Scope{TenantID: tenantID} }

// FromContext derives the scope of the authenticated caller.
func FromContext(ctx context.Context) (Scope, error) {
	c, ok := requestcontext.CallerFrom(ctx)
	if !ok || c.UserID.IsNil() {
		return Scope{}, dErrors.New(dErrors.CodeUnauthorized, "authenticated caller required")
	}
	if c.ProvinceWide {
		return Province(), nil
	}
	if c.TenantID.IsNil() {
		return Scope{}, dErrors.New(dErrors.CodeUnauthorized, "caller has no tenant scope")
	}
	return ForTenant(c.TenantID), nil
}

// Allows reports whether rows owned by tenantID are visible.
func (s Scope) Allows(tenantID id.TenantID) bool {
	return s.ProvinceWide || (!s.TenantID.IsNil() && s.TenantID == tenantID)
}

// Authorize returns CodeForbidden when tenantID is outside the scope.
func (s Scope) Authorize(tenantID id.TenantID) error {
	if s.Allows(tenantID) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "record belongs to another office").
		WithMeta("tenant_id", tenantID.String())
}

// Where renders the scope as a SQL predicate over column, using placeholder
// $argPos for the tenant id. Province-wide scopes render TRUE and no args.
//
//	pred, args := scope.Where("c.tenant_id", 3)
//	query := "SELECT ... WHERE c.status = $1 AND c.deleted_at IS NULL AND " + pred
func (s Scope) Where(column string, argPos int) (string, []any) {
	if s.ProvinceWide {
		return "TRUE", nil
	}
	return fmt.Sprintf("%s = $%d", column, argPos), []any{int64(s.TenantID)}
}

// Filter keeps the items whose owning tenant is visible.
func Filter[T any](s Scope, items []T, tenantOf func(T) id.TenantID) []T {
	if s.ProvinceWide {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if s.Allows(tenantOf(item)) {
			out = append(out, item)
		}
	}
	return out
}

func (s Scope) String() string {
	if s.ProvinceWide {
		return "province"
	}
	return "tenant:" + s.TenantID.String()
}
