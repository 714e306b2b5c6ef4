package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/middleware"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/services"
	"github.com/koinonia/backend/internal/storage"
	"github.com/koinonia/backend/pkg/logger"
	"github.com/koinonia/backend/pkg/utils"
	"gorm.io/gorm"
)

const attachmentURLExpiry = 15 * time.Minute

type AnnouncementsHandler struct {
	DB          *gorm.DB
	Service     *services.AnnouncementService
	Attachments *storage.AttachmentStore
}

func NewAnnouncementsHandler(db *gorm.DB, service *services.AnnouncementService, attachments *storage.AttachmentStore) *AnnouncementsHandler {
	return &AnnouncementsHandler{DB: db, Service: service, Attachments: attachments}
}

type createAnnouncementRequest struct {
	Title         string      `json:"title"`
	Content       string      `json:"content"`
	Category      string      `json:"category"`
	BypassMute    bool        `json:"bypassMute"`
	ScheduledFor  *time.Time  `json:"scheduledFor"`
	CrossGroupIDs []uuid.UUID `json:"crossGroupIDs"`
}

func (h *AnnouncementsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req createAnnouncementRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	announcement, err := h.Service.Create(c.Context(), groupID, currentUser.ID, services.CreateAnnouncementInput{
		Title:         req.Title,
		Content:       req.Content,
		Category:      models.AnnouncementCategory(req.Category),
		BypassMute:    req.BypassMute,
		ScheduledFor:  req.ScheduledFor,
		CrossGroupIDs: req.CrossGroupIDs,
	})
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "announcement_created", map[string]interface{}{
		"group_id":        groupID.String(),
		"announcement_id": announcement.ID.String(),
		"scheduled":       announcement.ScheduledFor != nil,
	})

	return utils.Success(c, fiber.StatusCreated, announcement)
}

func (h *AnnouncementsHandler) ListPublished(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	announcements, err := h.Service.ListPublished(c.Context(), groupID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, announcements)
}

func (h *AnnouncementsHandler) ListScheduled(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	announcements, err := h.Service.ListScheduled(c.Context(), groupID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, announcements)
}

func (h *AnnouncementsHandler) Publish(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	announcementID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid announcement id")
	}

	announcement, err := h.Service.Publish(c.Context(), announcementID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, announcement)
}

func (h *AnnouncementsHandler) MarkRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	announcementID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid announcement id")
	}

	if err := h.Service.MarkRead(c.Context(), announcementID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "read"})
}

func (h *AnnouncementsHandler) Acknowledge(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	announcementID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid announcement id")
	}

	if err := h.Service.Acknowledge(c.Context(), announcementID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "acknowledged"})
}

func (h *AnnouncementsHandler) Receipts(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	announcementID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid announcement id")
	}

	receipts, err := h.Service.Receipts(c.Context(), announcementID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, receipts)
}

type pinAnnouncementRequest struct {
	Pinned bool `json:"pinned"`
}

func (h *AnnouncementsHandler) SetPinned(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	announcementID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid announcement id")
	}

	var req pinAnnouncementRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	announcement, err := h.Service.SetPinned(c.Context(), announcementID, currentUser.ID, req.Pinned)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, announcement)
}

func (h *AnnouncementsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	announcementID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid announcement id")
	}

	// grab the attachment key before the row goes away
	var announcement models.Announcement
	attachmentKey := ""
	if err := h.DB.First(&announcement, "id = ?", announcementID).Error; err == nil && announcement.AttachmentKey != nil {
		attachmentKey = *announcement.AttachmentKey
	}

	if err := h.Service.Delete(c.Context(), announcementID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}

	if attachmentKey != "" && h.Attachments != nil {
		// best effort; an orphaned object is not worth failing the request
		_ = h.Attachments.Delete(c.Context(), attachmentKey)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "announcement deleted"})
}

// UploadAttachment attaches a single file (flyer, bulletin) to an
// announcement the caller authored.
func (h *AnnouncementsHandler) UploadAttachment(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if h.Attachments == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "attachment storage is not configured")
	}

	announcementID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid announcement id")
	}

	var announcement models.Announcement
	if err := h.DB.First(&announcement, "id = ?", announcementID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "announcement not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading announcement")
	}
	if announcement.AuthorID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "only the author can attach files")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading upload")
	}
	defer src.Close()

	key := storage.AttachmentKey(announcementID, fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	if err := h.Attachments.Upload(c.Context(), key, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing attachment")
	}

	if err := h.DB.Model(&models.Announcement{}).Where("id = ?", announcementID).Update("attachment_key", key).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving attachment reference")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"attachmentKey": key})
}

// AttachmentURL returns a short-lived presigned download link.
func (h *AnnouncementsHandler) AttachmentURL(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if h.Attachments == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "attachment storage is not configured")
	}

	announcementID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid announcement id")
	}

	var announcement models.Announcement
	if err := h.DB.First(&announcement, "id = ?", announcementID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "announcement not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading announcement")
	}
	if announcement.AttachmentKey == nil {
		return utils.Error(c, fiber.StatusNotFound, "announcement has no attachment")
	}

	var membership models.Membership
	if err := h.DB.First(&membership, "group_id = ? AND user_id = ?", announcement.GroupID, currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	url, err := h.Attachments.DownloadURL(c.Context(), *announcement.AttachmentKey, attachmentURLExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}
