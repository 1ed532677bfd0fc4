package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/coffre-pay/coffre/internal/identity"
)

// Handler exposes registration and login endpoints.
type Handler struct {
	identities *identity.Service
	service    *Service
}

// NewHandler builds an auth HTTP handler.
func NewHandler(identities *identity.Service, service *Service) *Handler {
	return &Handler{identities: identities, service: service}
}

type credentialsRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

// Register creates a new user identity.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.identities.Register(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user_id": user.ID,
		"phone":   user.Phone,
	})
}

// Login validates credentials and issues an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.identities.Authenticate(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}
	token, err := h.service.Login(user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(token)
}
