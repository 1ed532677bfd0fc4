package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/coffre-pay/coffre/internal/ledger"
	"github.com/coffre-pay/coffre/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type recordResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Note      string `json:"note"`
}

func toRecordResponse(rec ledger.Record) recordResponse {
	return recordResponse{From: rec.From, To: rec.To, Amount: rec.Amount, Timestamp: rec.Timestamp, Note: rec.Note}
}

func toRecordResponses(recs []ledger.Record) []recordResponse {
	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

// HTTPError maps domain errors to transport errors.
func HTTPError(err error) *fiber.Error {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrOutOfBounds):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrTransferFailed):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrZeroAmount), errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func caller(c *fiber.Ctx) string {
	id, _ := c.Locals(middleware.CallerLocal).(string)
	return id
}

// Get returns account metadata with the current balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	acct, err := h.service.Get(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return HTTPError(err)
	}
	balance, err := h.service.Balance(c.UserContext(), acct.ID)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"id":         acct.ID,
		"owner":      acct.Owner,
		"label":      acct.Label,
		"balance":    balance,
		"created_at": acct.CreatedAt,
	})
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// Deposit credits funds provided explicitly by the caller.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.service.Deposit(c.UserContext(), c.Params("accountId"), caller(c), req.Amount)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toRecordResponse(rec))
}

type creditRequest struct {
	From   string `json:"from"`
	Amount int64  `json:"amount"`
}

// Credit records funds arriving through the passive inbound path.
func (h *Handler) Credit(c *fiber.Ctx) error {
	var req creditRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	from := req.From
	if from == "" {
		from = caller(c)
	}
	rec, err := h.service.ReceiveDeposit(c.UserContext(), c.Params("accountId"), from, req.Amount)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toRecordResponse(rec))
}

type transferRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

// Transfer sends funds to a recipient identity.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.service.Send(c.UserContext(), c.Params("accountId"), caller(c), req.To, req.Amount, req.Note)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toRecordResponse(rec))
}

type withdrawRequest struct {
	To string `json:"to"`
}

// Withdraw transfers the whole balance to a recipient identity.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.service.WithdrawAll(c.UserContext(), c.Params("accountId"), caller(c), req.To)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toRecordResponse(rec))
}

type batchTransferRequest struct {
	Recipients []string `json:"recipients"`
	Amounts    []int64  `json:"amounts"`
	Note       string   `json:"note"`
}

// BatchTransfer sends funds to several recipients, all-or-nothing.
func (h *Handler) BatchTransfer(c *fiber.Ctx) error {
	var req batchTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	recs, err := h.service.BatchSend(c.UserContext(), c.Params("accountId"), caller(c), req.Recipients, req.Amounts, req.Note)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"records": toRecordResponses(recs)})
}

// Transactions returns a page of the account history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	recs, err := h.service.Transactions(c.UserContext(), c.Params("accountId"), offset, limit)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"offset":  offset,
		"records": toRecordResponses(recs),
	})
}

// TransactionsCount returns the account history length.
func (h *Handler) TransactionsCount(c *fiber.Ctx) error {
	count, err := h.service.TransactionsCount(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"count": count})
}

// Transaction returns a single history record by index.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid index")
	}
	rec, err := h.service.Transaction(c.UserContext(), c.Params("accountId"), index)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(toRecordResponse(rec))
}
