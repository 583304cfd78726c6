package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	// OrgIDKey is the context key for the requested tenant id.
	OrgIDKey contextKey = "org_id"
	// UserIDKey is the context key for the end-user id, when supplied.
	UserIDKey contextKey = "user_id"
	// OrgRoleKey is the context key for the caller's role within the org.
	OrgRoleKey contextKey = "org_role"
)

// TenantExtractor pulls tenant identity from the request. It checks the
// X-Org-Id header, then the org_id query parameter. An empty value is kept
// empty; resolving the default org is the handlers' job, since it needs a
// store lookup.
func TenantExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get("X-Org-Id"))
		if orgID == "" {
			orgID = strings.TrimSpace(r.URL.Query().Get("org_id"))
		}

		ctx := context.WithValue(r.Context(), OrgIDKey, orgID)
		ctx = context.WithValue(ctx, UserIDKey, strings.TrimSpace(r.Header.Get("X-User-Id")))
		ctx = context.WithValue(ctx, OrgRoleKey, strings.ToLower(strings.TrimSpace(r.Header.Get("X-Org-Role"))))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOrgID retrieves the requested org id from the context; empty means the
// caller did not scope the request.
func GetOrgID(ctx context.Context) string {
	if v, ok := ctx.Value(OrgIDKey).(string); ok {
		return v
	}
	return ""
}

// GetUserID retrieves the end-user id from the context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetOrgRole retrieves the caller's org role from the context. Viewers are
// rejected by write endpoints.
func GetOrgRole(ctx context.Context) string {
	if v, ok := ctx.Value(OrgRoleKey).(string); ok {
		return v
	}
	return ""
}
