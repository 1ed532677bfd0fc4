package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coffre-pay/coffre/internal/account"
)

// RegisterAccountRoutes wires fund movement and history endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Get("/accounts/:accountId", h.Get)
	r.Post("/accounts/:accountId/deposits", h.Deposit)
	r.Post("/accounts/:accountId/credits", h.Credit)
	r.Post("/accounts/:accountId/transfers", h.Transfer)
	r.Post("/accounts/:accountId/withdrawals", h.Withdraw)
	r.Post("/accounts/:accountId/batch-transfers", h.BatchTransfer)
	r.Get("/accounts/:accountId/transactions", h.Transactions)
	r.Get("/accounts/:accountId/transactions/count", h.TransactionsCount)
	r.Get("/accounts/:accountId/transactions/:index", h.Transaction)
}
