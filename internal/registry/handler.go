package registry

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/coffre-pay/coffre/internal/account"
	"github.com/coffre-pay/coffre/internal/middleware"
)

// Handler exposes registry HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a registry HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Label        string `json:"label"`
	InitialFunds int64  `json:"initial_funds"`
}

type accountResponse struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Label     string `json:"label"`
	CreatedAt string `json:"created_at"`
}

func toAccountResponse(acct account.Account) accountResponse {
	return accountResponse{
		ID:        acct.ID,
		Owner:     acct.Owner,
		Label:     acct.Label,
		CreatedAt: acct.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func caller(c *fiber.Ctx) string {
	id, _ := c.Locals(middleware.CallerLocal).(string)
	return id
}

// Register provisions an account for the authenticated caller.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Register(c.UserContext(), caller(c), req.Label, req.InitialFunds)
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return account.HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(acct))
}

// List returns a creation-ordered page of accounts.
func (h *Handler) List(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	accts, err := h.service.List(c.UserContext(), offset, limit)
	if err != nil {
		return account.HTTPError(err)
	}
	out := make([]accountResponse, 0, len(accts))
	for _, acct := range accts {
		out = append(out, toAccountResponse(acct))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"offset": offset, "accounts": out})
}

// Count returns the number of registered accounts.
func (h *Handler) Count(c *fiber.Ctx) error {
	count, err := h.service.Count(c.UserContext())
	if err != nil {
		return account.HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"count": count})
}

// Me returns the caller's account, with a sentinel payload when unmapped.
func (h *Handler) Me(c *fiber.Ctx) error {
	acct, found, err := h.service.Lookup(c.UserContext(), caller(c))
	if err != nil {
		return account.HTTPError(err)
	}
	if !found {
		return c.Status(http.StatusOK).JSON(fiber.Map{"registered": false})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"registered": true, "account": toAccountResponse(acct)})
}

// Verify reports whether the candidate ID belongs to a registered account.
func (h *Handler) Verify(c *fiber.Ctx) error {
	ok, err := h.service.Verify(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return account.HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"verified": ok})
}
