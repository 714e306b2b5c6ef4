package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/database"
	"github.com/koinonia/backend/internal/models"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Test",
		LastName:     "User",
		Role:         models.UserRoleUser,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", email, err)
	}
	return user
}

func seedGroup(t *testing.T, db *gorm.DB, creator *models.User) *models.Group {
	t.Helper()
	group := &models.Group{Name: "Test Group", CreatedByID: creator.ID}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating group: %v", err)
	}
	return group
}

func seedMembership(t *testing.T, db *gorm.DB, group *models.Group, user *models.User, role models.Role) *models.Membership {
	t.Helper()
	membership := &models.Membership{GroupID: group.ID, UserID: user.ID, Role: role}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating membership: %v", err)
	}
	return membership
}

func seedMessage(t *testing.T, db *gorm.DB, group *models.Group, sender *models.User, content string) *models.Message {
	t.Helper()
	message := &models.Message{GroupID: group.ID, SenderID: sender.ID, Content: content}
	if err := db.Create(message).Error; err != nil {
		t.Fatalf("failed creating message: %v", err)
	}
	return message
}

func timePtr(t time.Time) *time.Time { return &t }

func intPtr(n int) *int { return &n }

func mustUUID(t *testing.T, value string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(value)
	if err != nil {
		t.Fatalf("failed parsing uuid %q: %v", value, err)
	}
	return id
}
