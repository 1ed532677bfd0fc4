package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/coffre-pay/coffre/internal/auth"
	"github.com/coffre-pay/coffre/internal/config"
	"github.com/coffre-pay/coffre/internal/identity"
	"github.com/coffre-pay/coffre/internal/logging"
)

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	cfg := config.Config{
		AppName:        "coffre-test",
		AppEnv:         "development",
		JWTSecret:      "test-secret",
		AccessTokenTTL: time.Minute,
	}
	if err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func registerAndLogin(t *testing.T, app *fiber.App, phone string) string {
	t.Helper()
	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/auth/register", "", fiber.Map{"phone": phone, "pin": "1234"})
	if status != fiber.StatusCreated {
		t.Fatalf("register user: status %d", status)
	}
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{"phone": phone, "pin": "1234"})
	if status != fiber.StatusOK {
		t.Fatalf("login: status %d", status)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token, got %+v", body)
	}
	return token
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	app := setupApp(t)
	token := registerAndLogin(t, app, "+243900000001")

	// Provision an account with initial funds.
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", token, fiber.Map{"label": "w1", "initial_funds": 100})
	if status != fiber.StatusCreated {
		t.Fatalf("create account: status %d body %+v", status, body)
	}
	acctID, _ := body["id"].(string)
	if acctID == "" {
		t.Fatalf("expected account id, got %+v", body)
	}

	// Second registration conflicts.
	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", token, fiber.Map{"label": "w2"})
	if status != fiber.StatusConflict {
		t.Fatalf("expected conflict on second registration, got %d", status)
	}

	// Transfer part of the balance.
	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/accounts/"+acctID+"/transfers", token,
		fiber.Map{"to": "user-b", "amount": 40, "note": "pay"})
	if status != fiber.StatusCreated {
		t.Fatalf("transfer: status %d body %+v", status, body)
	}
	if body["amount"].(float64) != 40 || body["note"].(string) != "pay" {
		t.Fatalf("unexpected transfer record: %+v", body)
	}

	// Zero transfer is rejected.
	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/accounts/"+acctID+"/transfers", token,
		fiber.Map{"to": "user-b", "amount": 0})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected bad request for zero transfer, got %d", status)
	}

	// Balance reflects the debit.
	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+acctID, token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("get account: status %d", status)
	}
	if body["balance"].(float64) != 60 {
		t.Fatalf("expected balance 60, got %+v", body["balance"])
	}

	// History has the init record and the transfer.
	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+acctID+"/transactions/count", token, nil)
	if status != fiber.StatusOK || body["count"].(float64) != 2 {
		t.Fatalf("expected 2 transactions, got status %d body %+v", status, body)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+acctID+"/transactions/0", token, nil)
	if status != fiber.StatusOK || body["note"].(string) != "init" {
		t.Fatalf("unexpected first record: status %d body %+v", status, body)
	}

	status, _ = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+acctID+"/transactions/5", token, nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected not found for out-of-bounds index, got %d", status)
	}

	// Directory endpoints.
	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/count", token, nil)
	if status != fiber.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("expected account count 1, got status %d body %+v", status, body)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+acctID+"/verify", token, nil)
	if status != fiber.StatusOK || body["verified"].(bool) != true {
		t.Fatalf("expected verified account, got status %d body %+v", status, body)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/me", token, nil)
	if status != fiber.StatusOK || body["registered"].(bool) != true {
		t.Fatalf("expected registered caller, got status %d body %+v", status, body)
	}
}

func TestNonOwnerCannotMoveFunds(t *testing.T) {
	app := setupApp(t)
	ownerToken := registerAndLogin(t, app, "+243900000001")
	otherToken := registerAndLogin(t, app, "+243900000002")

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", ownerToken, fiber.Map{"label": "w1", "initial_funds": 100})
	if status != fiber.StatusCreated {
		t.Fatalf("create account: status %d", status)
	}
	acctID := body["id"].(string)

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/accounts/"+acctID+"/withdrawals", otherToken, fiber.Map{"to": "user-c"})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected forbidden for non-owner withdrawal, got %d", status)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/"+acctID, ownerToken, nil)
	if status != fiber.StatusOK || body["balance"].(float64) != 100 {
		t.Fatalf("unauthorized attempt mutated balance: %+v", body)
	}
}

func TestBatchTransferOverHTTP(t *testing.T) {
	app := setupApp(t)
	token := registerAndLogin(t, app, "+243900000001")

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", token, fiber.Map{"label": "w1", "initial_funds": 60})
	if status != fiber.StatusCreated {
		t.Fatalf("create account: status %d", status)
	}
	acctID := body["id"].(string)

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/accounts/"+acctID+"/batch-transfers", token,
		fiber.Map{"recipients": []string{"user-b", "user-c"}, "amounts": []int64{0, 30}, "note": "batch"})
	if status != fiber.StatusCreated {
		t.Fatalf("batch transfer: status %d body %+v", status, body)
	}
	records, _ := body["records"].([]any)
	if len(records) != 1 {
		t.Fatalf("expected one executed leg, got %+v", body)
	}

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/accounts/"+acctID+"/batch-transfers", token,
		fiber.Map{"recipients": []string{"user-b"}, "amounts": []int64{1, 2}})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected bad request for length mismatch, got %d", status)
	}
}

func TestRequestsRequireToken(t *testing.T) {
	app := setupApp(t)

	status, _ := doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/count", "", nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected unauthorized without token, got %d", status)
	}
}

func TestTokenForUnknownSubjectRejected(t *testing.T) {
	app := setupApp(t)

	// A well-signed token whose subject was never registered must not pass.
	cfg := config.Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute}
	token, err := auth.NewService(cfg).Login(identity.User{ID: "ghost"})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	status, _ := doJSON(t, app, fiber.MethodGet, "/api/v1/accounts/count", token.AccessToken, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected unauthorized for unknown subject, got %d", status)
	}
}

func TestPaginationOverHTTP(t *testing.T) {
	app := setupApp(t)
	token := registerAndLogin(t, app, "+243900000001")

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", token, fiber.Map{"label": "w1"})
	if status != fiber.StatusCreated {
		t.Fatalf("create account: status %d", status)
	}
	acctID := body["id"].(string)

	for i := 1; i <= 3; i++ {
		status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/accounts/"+acctID+"/deposits", token, fiber.Map{"amount": i * 10})
		if status != fiber.StatusCreated {
			t.Fatalf("deposit %d: status %d", i, status)
		}
	}

	status, body = doJSON(t, app, fiber.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/transactions?offset=1&limit=5", acctID), token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("transactions: status %d", status)
	}
	records, _ := body["records"].([]any)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	status, body = doJSON(t, app, fiber.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/transactions?offset=10&limit=5", acctID), token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("transactions past end: status %d", status)
	}
	records, _ = body["records"].([]any)
	if len(records) != 0 {
		t.Fatalf("expected empty page, got %d records", len(records))
	}
}
