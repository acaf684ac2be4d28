package auth

import (
	"github.com/spec-kit/account-service/internal/domain"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// RequireSelfOrAdmin allows a user to act on their own account, and admins
// to act on anyone.
func RequireSelfOrAdmin(principal *domain.User, targetID int64) error {
	if principal == nil {
		return apperrors.NewForbidden("access denied")
	}
	if principal.ID == targetID || principal.IsAdmin() {
		return nil
	}
	return apperrors.NewForbidden("access denied")
}

// RequireAdmin restricts an operation to admins.
func RequireAdmin(principal *domain.User) error {
	if !principal.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}
