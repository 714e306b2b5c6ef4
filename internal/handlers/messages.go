package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/koinonia/backend/internal/middleware"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/permissions"
	"github.com/koinonia/backend/internal/services"
	"github.com/koinonia/backend/pkg/utils"
	"gorm.io/gorm"
)

type MessagesHandler struct {
	DB        *gorm.DB
	Reactions *services.ReactionService
}

func NewMessagesHandler(db *gorm.DB, reactions *services.ReactionService) *MessagesHandler {
	return &MessagesHandler{DB: db, Reactions: reactions}
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessagesHandler) Post(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var membership models.Membership
	if err := h.DB.Preload("CustomRole").First(&membership, "group_id = ? AND user_id = ?", groupID, currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}
	if !permissions.Has(membership.Role, permissions.PermSendMessages, membership.CustomRole) {
		return utils.Error(c, fiber.StatusForbidden, "permission denied")
	}

	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return utils.Error(c, fiber.StatusBadRequest, "content is required")
	}

	message := models.Message{
		GroupID:  groupID,
		SenderID: currentUser.ID,
		Content:  req.Content,
	}
	if err := h.DB.Create(&message).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed posting message")
	}

	return utils.Success(c, fiber.StatusCreated, message)
}

func (h *MessagesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var membership models.Membership
	if err := h.DB.First(&membership, "group_id = ? AND user_id = ?", groupID, currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	pagination := utils.ParsePagination(c)

	var messages []models.Message
	query := h.DB.
		Preload("Sender").
		Preload("Reactions").
		Where("group_id = ?", groupID).
		Order("created_at DESC")
	if err := utils.ApplyPagination(query, pagination).Find(&messages).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing messages")
	}

	return utils.Success(c, fiber.StatusOK, messages)
}

func (h *MessagesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	var message models.Message
	if err := h.DB.First(&message, "id = ?", messageID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "message not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading message")
	}

	var membership models.Membership
	if err := h.DB.Preload("CustomRole").First(&membership, "group_id = ? AND user_id = ?", message.GroupID, currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}
	if message.SenderID != currentUser.ID &&
		!permissions.Has(membership.Role, permissions.PermDeleteMessages, membership.CustomRole) {
		return utils.Error(c, fiber.StatusForbidden, "permission denied")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.PinnedMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Message{}, "id = ?", messageID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting message")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "message deleted"})
}

type toggleReactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessagesHandler) ToggleReaction(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	var req toggleReactionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.Reactions.Toggle(c.Context(), messageID, currentUser.ID, req.Emoji)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, result)
}

func (h *MessagesHandler) ListReactions(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	reactions, err := h.Reactions.ListForMessage(c.Context(), messageID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, reactions)
}

func (h *MessagesHandler) Pin(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	pin, err := h.Reactions.Pin(c.Context(), messageID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, pin)
}

func (h *MessagesHandler) Unpin(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	if err := h.Reactions.Unpin(c.Context(), messageID, currentUser.ID); err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "unpinned"})
}

func (h *MessagesHandler) PinnedList(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	pins, err := h.Reactions.PinnedList(c.Context(), groupID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, pins)
}
