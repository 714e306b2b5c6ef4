package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/koinonia/backend/internal/middleware"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/services"
	"github.com/koinonia/backend/pkg/logger"
	"github.com/koinonia/backend/pkg/utils"
)

type EventsHandler struct {
	Service *services.EventService
}

func NewEventsHandler(service *services.EventService) *EventsHandler {
	return &EventsHandler{Service: service}
}

type createEventRequest struct {
	Title            string     `json:"title"`
	Description      *string    `json:"description"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime"`
	Location         *string    `json:"location"`
	Recurrence       string     `json:"recurrence"`
	MaxCapacity      *int       `json:"maxCapacity"`
	RemindDayBefore  bool       `json:"remindDayBefore"`
	RemindHourBefore bool       `json:"remindHourBefore"`
}

func (h *EventsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req createEventRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	event, err := h.Service.Create(c.Context(), groupID, currentUser.ID, services.CreateEventInput{
		Title:            req.Title,
		Description:      req.Description,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		Location:         req.Location,
		Recurrence:       models.Recurrence(req.Recurrence),
		MaxCapacity:      req.MaxCapacity,
		RemindDayBefore:  req.RemindDayBefore,
		RemindHourBefore: req.RemindHourBefore,
	})
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "event_created", map[string]interface{}{
		"group_id": groupID.String(),
		"event_id": event.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, event)
}

func (h *EventsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	events, err := h.Service.List(c.Context(), groupID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, events)
}

type rsvpRequest struct {
	Status string `json:"status"`
}

func (h *EventsHandler) RSVP(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var req rsvpRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	rsvp, err := h.Service.RSVP(c.Context(), eventID, currentUser.ID, models.RSVPStatus(req.Status))
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, rsvp)
}

func (h *EventsHandler) Cancel(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	event, err := h.Service.Cancel(c.Context(), eventID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}

	logger.InfoWithUser(currentUser.ID.String(), "event_cancelled", map[string]interface{}{
		"event_id": event.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, event)
}

func (h *EventsHandler) RSVPList(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	grouped, err := h.Service.RSVPList(c.Context(), eventID, currentUser.ID)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, grouped)
}
