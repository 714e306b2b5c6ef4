package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/middleware"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/notify"
	"github.com/koinonia/backend/internal/services"
	"github.com/koinonia/backend/pkg/logger"
	"github.com/koinonia/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

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

	err = db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.CustomRole{},
		&models.Membership{},
		&models.Announcement{},
		&models.ReadReceipt{},
		&models.Acknowledgment{},
		&models.Event{},
		&models.RSVP{},
		&models.Message{},
		&models.Reaction{},
		&models.PinnedMessage{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	announcementService := services.NewAnnouncementService(db, notify.Noop{})
	eventService := services.NewEventService(db, notify.Noop{})
	reactionService := services.NewReactionService(db, notify.Noop{})

	authHandler := NewAuthHandler(db)
	groupsHandler := NewGroupsHandler(db)
	rolesHandler := NewRolesHandler(db)
	announcementsHandler := NewAnnouncementsHandler(db, announcementService, nil)
	eventsHandler := NewEventsHandler(eventService)
	messagesHandler := NewMessagesHandler(db, reactionService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 25 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/users", authHandler.ListUsers)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:userId", groupsHandler.RemoveMember)
	groupRoutes.Put("/:id/members/:userId", groupsHandler.UpdateMemberRole)
	groupRoutes.Get("/:id/assignable-roles", groupsHandler.AssignableRoles)
	groupRoutes.Post("/:id/roles", rolesHandler.Create)
	groupRoutes.Get("/:id/roles", rolesHandler.List)
	groupRoutes.Put("/:id/roles/:roleId", rolesHandler.Update)
	groupRoutes.Delete("/:id/roles/:roleId", rolesHandler.Delete)
	groupRoutes.Post("/:id/announcements", announcementsHandler.Create)
	groupRoutes.Get("/:id/announcements", announcementsHandler.ListPublished)
	groupRoutes.Get("/:id/announcements/scheduled", announcementsHandler.ListScheduled)
	groupRoutes.Post("/:id/events", eventsHandler.Create)
	groupRoutes.Get("/:id/events", eventsHandler.List)
	groupRoutes.Post("/:id/messages", messagesHandler.Post)
	groupRoutes.Get("/:id/messages", messagesHandler.List)
	groupRoutes.Get("/:id/pins", messagesHandler.PinnedList)

	announcementRoutes := api.Group("/announcements", authMiddleware.RequireAuth)
	announcementRoutes.Post("/:id/publish", announcementsHandler.Publish)
	announcementRoutes.Post("/:id/read", announcementsHandler.MarkRead)
	announcementRoutes.Post("/:id/acknowledge", announcementsHandler.Acknowledge)
	announcementRoutes.Get("/:id/receipts", announcementsHandler.Receipts)
	announcementRoutes.Put("/:id/pin", announcementsHandler.SetPinned)
	announcementRoutes.Delete("/:id", announcementsHandler.Delete)
	announcementRoutes.Post("/:id/attachment", announcementsHandler.UploadAttachment)
	announcementRoutes.Get("/:id/attachment", announcementsHandler.AttachmentURL)

	eventRoutes := api.Group("/events", authMiddleware.RequireAuth)
	eventRoutes.Put("/:id/rsvp", eventsHandler.RSVP)
	eventRoutes.Post("/:id/cancel", eventsHandler.Cancel)
	eventRoutes.Get("/:id/rsvps", eventsHandler.RSVPList)

	messageRoutes := api.Group("/messages", authMiddleware.RequireAuth)
	messageRoutes.Post("/:id/reactions", messagesHandler.ToggleReaction)
	messageRoutes.Get("/:id/reactions", messagesHandler.ListReactions)
	messageRoutes.Post("/:id/pin", messagesHandler.Pin)
	messageRoutes.Delete("/:id/pin", messagesHandler.Unpin)
	messageRoutes.Delete("/:id", messagesHandler.Delete)

	return &testEnv{app: app, db: db}
}

func createTestUser(t *testing.T, db *gorm.DB, email string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         models.UserRoleUser,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestGroup(t *testing.T, db *gorm.DB, pastor *models.User) *models.Group {
	t.Helper()

	group := &models.Group{Name: "Test Fellowship", CreatedByID: pastor.ID}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating test group: %v", err)
	}
	addTestMember(t, db, group.ID, pastor.ID, models.RolePastor)
	return group
}

func addTestMember(t *testing.T, db *gorm.DB, groupID, userID uuid.UUID, role models.Role) *models.Membership {
	t.Helper()

	membership := &models.Membership{GroupID: groupID, UserID: userID, Role: role}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating membership: %v", err)
	}
	return membership
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
