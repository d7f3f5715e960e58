package auth

import "context"

// --- Context Helper Functions ---

// WithClaims stores the authenticated subject and role on ctx.
func WithClaims(ctx context.Context, claims *CustomClaims) context.Context {
	ctx = context.WithValue(ctx, SubjectKey, claims.Subject)
	return context.WithValue(ctx, RoleKey, claims.Role)
}

// GetSubjectFromContext retrieves the authenticated operator name.
func GetSubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectKey).(string)
	return subject, ok && subject != ""
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok && role != ""
}
