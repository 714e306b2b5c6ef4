package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/permissions"
	"gorm.io/gorm"
)

// membershipOf loads the actor's membership in a group with its custom role,
// which is everything the permission engine needs to authorize an action.
func membershipOf(ctx context.Context, db *gorm.DB, groupID, userID uuid.UUID) (*models.Membership, error) {
	var membership models.Membership
	err := db.WithContext(ctx).
		Preload("CustomRole").
		First(&membership, "group_id = ? AND user_id = ?", groupID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPermissionDenied
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func requirePermission(ctx context.Context, db *gorm.DB, groupID, userID uuid.UUID, perm permissions.Permission) (*models.Membership, error) {
	membership, err := membershipOf(ctx, db, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !permissions.Has(membership.Role, perm, membership.CustomRole) {
		return nil, ErrPermissionDenied
	}
	return membership, nil
}
