package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/koinonia/backend/internal/config"
	"github.com/koinonia/backend/internal/database"
	"github.com/koinonia/backend/internal/handlers"
	"github.com/koinonia/backend/internal/middleware"
	"github.com/koinonia/backend/internal/notify"
	"github.com/koinonia/backend/internal/ratelimit"
	"github.com/koinonia/backend/internal/services"
	"github.com/koinonia/backend/internal/storage"
	"github.com/koinonia/backend/pkg/logger"
	"github.com/koinonia/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	attachments, err := storage.NewAttachmentStore(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := attachments.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	var events notify.Publisher = notify.Noop{}
	if broker, err := notify.NewRedisBroker(cfg.Redis.Addr, cfg.Redis.Password, "koinonia:changes"); err == nil {
		events = broker
	} else {
		logger.Warn("change_broker_disabled", map[string]interface{}{"error": err.Error()})
	}

	limiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.Redis.Addr, cfg.Redis.Password, cfg.RateLimit.Prefix,
		cfg.RateLimit.Limit, cfg.RateLimit.Window,
	)
	if err != nil {
		log.Fatalf("rate limiter initialization failed: %v", err)
	}

	announcementService := services.NewAnnouncementService(db, events)
	eventService := services.NewEventService(db, events)
	reactionService := services.NewReactionService(db, events)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	announcementService.StartScheduler(schedulerCtx, cfg.Scheduler.SweepInterval)

	authHandler := handlers.NewAuthHandler(db)
	groupsHandler := handlers.NewGroupsHandler(db)
	rolesHandler := handlers.NewRolesHandler(db)
	announcementsHandler := handlers.NewAnnouncementsHandler(db, announcementService, attachments)
	eventsHandler := handlers.NewEventsHandler(eventService)
	messagesHandler := handlers.NewMessagesHandler(db, reactionService)

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

	throttle := middleware.WriteRateLimit(limiter)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth, throttle)
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

	announcementRoutes := api.Group("/announcements", authMiddleware.RequireAuth, throttle)
	announcementRoutes.Post("/:id/publish", announcementsHandler.Publish)
	announcementRoutes.Post("/:id/read", announcementsHandler.MarkRead)
	announcementRoutes.Post("/:id/acknowledge", announcementsHandler.Acknowledge)
	announcementRoutes.Get("/:id/receipts", announcementsHandler.Receipts)
	announcementRoutes.Put("/:id/pin", announcementsHandler.SetPinned)
	announcementRoutes.Delete("/:id", announcementsHandler.Delete)
	announcementRoutes.Post("/:id/attachment", announcementsHandler.UploadAttachment)
	announcementRoutes.Get("/:id/attachment", announcementsHandler.AttachmentURL)

	eventRoutes := api.Group("/events", authMiddleware.RequireAuth, throttle)
	eventRoutes.Put("/:id/rsvp", eventsHandler.RSVP)
	eventRoutes.Post("/:id/cancel", eventsHandler.Cancel)
	eventRoutes.Get("/:id/rsvps", eventsHandler.RSVPList)

	messageRoutes := api.Group("/messages", authMiddleware.RequireAuth, throttle)
	messageRoutes.Post("/:id/reactions", messagesHandler.ToggleReaction)
	messageRoutes.Get("/:id/reactions", messagesHandler.ListReactions)
	messageRoutes.Post("/:id/pin", messagesHandler.Pin)
	messageRoutes.Delete("/:id/pin", messagesHandler.Unpin)
	messageRoutes.Delete("/:id", messagesHandler.Delete)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		stopScheduler()
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
