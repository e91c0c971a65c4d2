package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"airpay/internal/blockchain/evm/evmtest"
	"airpay/internal/bot"
	"airpay/internal/config"
	"airpay/internal/models"
	"airpay/internal/service"
	"airpay/internal/session"
	"airpay/internal/store/file"
)

type fakeEvents struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeEvents) add(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeEvents) OnStart(_ context.Context, userID string) error {
	return f.add("start:" + userID)
}

func (f *fakeEvents) OnAction(_ context.Context, userID, action string) error {
	return f.add("action:" + userID + ":" + action)
}

func (f *fakeEvents) OnText(_ context.Context, userID, text string) error {
	return f.add("text:" + userID + ":" + text)
}

func (f *fakeEvents) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeAnswerer struct {
	mu    sync.Mutex
	ids   []string
	delay time.Duration
}

func (f *fakeAnswerer) AnswerCallback(_ context.Context, id string) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

const testAPIKey = "0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{APIKey: testAPIKey},
		Bot:    config.BotConfig{Token: "123:secret"},
		Chain:  config.ChainConfig{ChainID: 22040},
	}
}

func authorize(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	return req
}

func TestHandleHealth(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHandler(testConfig(), nil, nil, nil, session.NewRegistry(), nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}

	if response.ChainID != 22040 {
		t.Errorf("expected chain id 22040, got %d", response.ChainID)
	}
}

func TestHandleGetFees(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		provider       *evmtest.Provider
		expectedStatus int
		expectedFee    string
	}{
		{
			name:           "current gas price",
			provider:       &evmtest.Provider{GasPrice: big.NewInt(2_000_000_000)},
			expectedStatus: http.StatusOK,
			expectedFee:    "0.000042",
		},
		{
			name:           "provider unavailable",
			provider:       &evmtest.Provider{GasPriceErr: errors.New("dial tcp: connection refused")},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feeService := service.NewFeeService(tt.provider, logger)
			handler := NewHandler(testConfig(), nil, nil, nil, nil, feeService, logger)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/fees", nil)
			w := httptest.NewRecorder()

			handler.HandleGetFees(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var response GetFeesResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.TransferFee != tt.expectedFee {
				t.Errorf("expected fee %s, got %s", tt.expectedFee, response.TransferFee)
			}
			if response.GasLimit != 21000 {
				t.Errorf("expected gas limit 21000, got %d", response.GasLimit)
			}
		})
	}
}

func TestHandleTelegramWebhook(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		token          string
		body           string
		expectedStatus int
		expectedCalls  []string
		expectedAnswer bool
	}{
		{
			name:           "wrong token",
			token:          "123:guess",
			body:           `{"update_id":1,"message":{"message_id":1,"from":{"id":42},"text":"/start"}}`,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "text message",
			token:          "123:secret",
			body:           `{"update_id":2,"message":{"message_id":5,"from":{"id":42},"text":"10"}}`,
			expectedStatus: http.StatusOK,
			expectedCalls:  []string{"text:42:10"},
		},
		{
			name:           "button press",
			token:          "123:secret",
			body:           `{"update_id":3,"callback_query":{"id":"cb1","from":{"id":42},"data":"start_deposit"}}`,
			expectedStatus: http.StatusOK,
			expectedCalls:  []string{"action:42:start_deposit"},
			expectedAnswer: true,
		},
		{
			name:           "message without text is ignored",
			token:          "123:secret",
			body:           `{"update_id":4,"message":{"message_id":6,"from":{"id":42}}}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "malformed body",
			token:          "123:secret",
			body:           `{`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEvents{}
			answerer := &fakeAnswerer{}
			handler := NewHandler(testConfig(), events, answerer, nil, nil, nil, logger)
			router := SetupRouter(handler, logger)

			req := httptest.NewRequest(http.MethodPost, "/telegram/"+tt.token, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)
			if !handler.Wait(time.Second) {
				t.Fatal("updates did not finish")
			}

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			calls := events.Calls()
			if fmt.Sprint(calls) != fmt.Sprint(tt.expectedCalls) {
				t.Errorf("expected calls %v, got %v", tt.expectedCalls, calls)
			}
			if tt.expectedAnswer && (len(answerer.ids) != 1 || answerer.ids[0] != "cb1") {
				t.Errorf("expected callback cb1 to be answered, got %v", answerer.ids)
			}
		})
	}
}

func TestTelegramWebhook_KeepsUserOrder(t *testing.T) {
	logger := zap.NewNop()
	events := &fakeEvents{}
	answerer := &fakeAnswerer{delay: 50 * time.Millisecond}
	handler := NewHandler(testConfig(), events, answerer, nil, nil, nil, logger)
	router := SetupRouter(handler, logger)

	updates := []string{
		`{"update_id":10,"callback_query":{"id":"cb1","from":{"id":42},"data":"start_deposit"}}`,
		`{"update_id":11,"message":{"message_id":7,"from":{"id":42},"text":"10"}}`,
		`{"update_id":12,"message":{"message_id":8,"from":{"id":43},"text":"/start"}}`,
	}
	for _, body := range updates {
		req := httptest.NewRequest(http.MethodPost, "/telegram/123:secret", strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	}

	if !handler.Wait(time.Second) {
		t.Fatal("updates did not finish")
	}

	var user42 []string
	for _, call := range events.Calls() {
		if strings.HasPrefix(call, "text:43") {
			continue
		}
		user42 = append(user42, call)
	}
	expected := []string{"action:42:start_deposit", "text:42:10"}
	if fmt.Sprint(user42) != fmt.Sprint(expected) {
		t.Errorf("expected calls %v, got %v", expected, user42)
	}
	if len(events.Calls()) != 3 {
		t.Errorf("expected 3 calls, got %v", events.Calls())
	}
}

func TestHandlerWait_TimesOut(t *testing.T) {
	logger := zap.NewNop()
	events := &fakeEvents{}
	answerer := &fakeAnswerer{delay: 200 * time.Millisecond}
	handler := NewHandler(testConfig(), events, answerer, nil, nil, nil, logger)
	router := SetupRouter(handler, logger)

	body := `{"update_id":1,"callback_query":{"id":"cb1","from":{"id":42},"data":"check_balance"}}`
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/telegram/123:secret", strings.NewReader(body)))

	if handler.Wait(10 * time.Millisecond) {
		t.Error("expected wait to time out while the update runs")
	}
	if !handler.Wait(time.Second) {
		t.Error("expected update to finish")
	}
}

func TestOperatorRoutesRequireAPIKey(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		method         string
		path           string
		authorization  string
		expectedStatus int
	}{
		{name: "events without key", method: http.MethodPost, path: "/api/v1/events", expectedStatus: http.StatusUnauthorized},
		{name: "events with wrong key", method: http.MethodPost, path: "/api/v1/events", authorization: "Bearer fedcba9876543210", expectedStatus: http.StatusUnauthorized},
		{name: "events with bare key", method: http.MethodPost, path: "/api/v1/events", authorization: testAPIKey, expectedStatus: http.StatusUnauthorized},
		{name: "events with key", method: http.MethodPost, path: "/api/v1/events", authorization: "Bearer " + testAPIKey, expectedStatus: http.StatusOK},
		{name: "sessions without key", method: http.MethodGet, path: "/api/v1/sessions", expectedStatus: http.StatusUnauthorized},
		{name: "transactions without key", method: http.MethodGet, path: "/api/v1/transactions/user/7", expectedStatus: http.StatusUnauthorized},
		{name: "health stays open", method: http.MethodGet, path: "/health", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEvents{}
			handler := NewHandler(testConfig(), events, nil, nil, session.NewRegistry(), nil, logger)
			router := SetupRouter(handler, logger)

			body, _ := json.Marshal(EventRequest{UserID: "victim", Type: EventAction, Action: "start_transfer"})
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader(body))
			req.Header.Set("Origin", "https://evil.example")
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "" {
				t.Errorf("expected no CORS header, got %q", origin)
			}
			if tt.expectedStatus == http.StatusUnauthorized && len(events.Calls()) != 0 {
				t.Errorf("unauthorized request reached the dispatcher: %v", events.Calls())
			}
		})
	}
}

func TestHandlePostEvent(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		request        EventRequest
		handlerErr     error
		expectedStatus int
		expectedCall   string
	}{
		{
			name:           "start",
			request:        EventRequest{UserID: "7", Type: EventStart},
			expectedStatus: http.StatusOK,
			expectedCall:   "start:7",
		},
		{
			name:           "action",
			request:        EventRequest{UserID: "7", Type: EventAction, Action: "check_balance"},
			expectedStatus: http.StatusOK,
			expectedCall:   "action:7:check_balance",
		},
		{
			name:           "text",
			request:        EventRequest{UserID: "7", Type: EventText, Text: "2.5"},
			expectedStatus: http.StatusOK,
			expectedCall:   "text:7:2.5",
		},
		{
			name:           "missing user",
			request:        EventRequest{Type: EventStart},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing action",
			request:        EventRequest{UserID: "7", Type: EventAction},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown type",
			request:        EventRequest{UserID: "7", Type: "photo"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown action",
			request:        EventRequest{UserID: "7", Type: EventAction, Action: "nope"},
			handlerErr:     fmt.Errorf("%w: nope", bot.ErrUnknownAction),
			expectedStatus: http.StatusBadRequest,
			expectedCall:   "action:7:nope",
		},
		{
			name:           "handler failure",
			request:        EventRequest{UserID: "7", Type: EventStart},
			handlerErr:     errors.New("store down"),
			expectedStatus: http.StatusInternalServerError,
			expectedCall:   "start:7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEvents{err: tt.handlerErr}
			handler := NewHandler(testConfig(), events, nil, nil, nil, nil, logger)

			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
			w := httptest.NewRecorder()

			handler.HandlePostEvent(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}

			calls := events.Calls()
			if tt.expectedCall == "" {
				if len(calls) != 0 {
					t.Errorf("expected no calls, got %v", calls)
				}
				return
			}
			if len(calls) != 1 || calls[0] != tt.expectedCall {
				t.Errorf("expected call %s, got %v", tt.expectedCall, calls)
			}
		})
	}
}

func TestHandleGetUserTransactions(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	log := file.NewTransactionLog(filepath.Join(t.TempDir(), "transactions.json"))

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	updated := created.Add(45 * time.Second)
	records := []models.Transaction{
		{ID: "a", UserID: "7", WalletAddress: "0x01", PrivateKey: "0xsecret", Amount: decimal.NewFromInt(10), Status: models.DepositStatusPending, CreatedAt: created},
		{ID: "b", UserID: "8", WalletAddress: "0x02", PrivateKey: "0xsecret", Amount: decimal.NewFromInt(1), Status: models.DepositStatusPending, CreatedAt: created},
		{ID: "a", UserID: "7", WalletAddress: "0x01", PrivateKey: "0xsecret", Amount: decimal.NewFromInt(10), Status: models.DepositStatusConfirmed, Balance: models.StringPtr("9.95"), CreatedAt: created, UpdatedAt: &updated},
	}
	for _, rec := range records {
		if err := log.Append(ctx, rec); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	handler := NewHandler(testConfig(), nil, nil, log, nil, nil, logger)
	router := SetupRouter(handler, logger)

	req := authorize(httptest.NewRequest(http.MethodGet, "/api/v1/transactions/user/7", nil))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if strings.Contains(w.Body.String(), "0xsecret") {
		t.Error("response must not contain private keys")
	}

	var response GetUserTransactionsResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(response.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(response.Transactions))
	}
	tx := response.Transactions[0]
	if tx.Status != models.DepositStatusConfirmed {
		t.Errorf("expected latest status confirmed, got %s", tx.Status)
	}
	if tx.Balance == nil || *tx.Balance != "9.95" {
		t.Errorf("expected balance 9.95, got %v", tx.Balance)
	}
	if tx.Amount != "10" {
		t.Errorf("expected amount 10, got %s", tx.Amount)
	}
}

func TestHandleGetSessions(t *testing.T) {
	logger := zap.NewNop()
	registry := session.NewRegistry()
	registry.StartAwaiting("1", time.Now())
	registry.StartAwaiting("2", time.Now().Add(time.Second))

	handler := NewHandler(testConfig(), nil, nil, nil, registry, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	handler.HandleGetSessions(w, req)

	var response GetSessionsResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Count != 2 || len(response.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", response.Count)
	}
	if response.Sessions[0].UserID != "1" {
		t.Errorf("expected oldest session first, got %s", response.Sessions[0].UserID)
	}
}

func TestRespondJSON_LogsEncodeFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := NewHandler(testConfig(), nil, nil, nil, nil, nil, zap.New(core))

	w := httptest.NewRecorder()
	handler.respondJSON(w, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if n := logs.FilterMessage("Failed to encode JSON response").Len(); n != 1 {
		t.Errorf("expected 1 encode failure log, got %d", n)
	}
}
