package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"financify/api"
	"financify/config"
	"financify/connectivity"
	"financify/middleware"
	"financify/queue"
	"financify/remote/remotetest"
	"financify/resilient"
	"financify/service"
	"financify/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return setupTestRouterMode(t, "test")
}

func setupTestRouterMode(t *testing.T, mode string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: mode},
		JWT:       config.JWTConfig{Secret: "router-test-secret"},
		Telemetry: config.TelemetryConfig{Enabled: true, ServiceName: "financify-test"},
	}
	middleware.InitJWT(cfg)

	backend := remotetest.New()
	monitor := connectivity.NewMonitor(backend, time.Second, time.Minute)
	monitor.SetOnline(true)
	store := storage.NewMemoryStore()
	q := queue.New(store, monitor, queue.Options{})
	w := resilient.New(backend, store, monitor, resilient.Options{Retries: 1, BaseDelay: time.Millisecond})
	deps := service.Deps{Store: store, Wrapper: w, Queue: q}

	tx := service.NewTransactionService(deps)
	recurring := service.NewRecurringService(deps, tx)
	goals := service.NewGoalService(deps)
	budgets := service.NewBudgetService(deps, tx, nil)
	accounts := service.NewAccountService(deps, tx)
	reports := service.NewReportService(deps, tx, budgets, goals, accounts)

	return SetupRouter(cfg, &Handlers{
		Auth:         api.NewAuthHandler(cfg, reports),
		Transactions: api.NewTransactionHandler(tx),
		Recurring:    api.NewRecurringHandler(recurring),
		Goals:        api.NewGoalHandler(goals),
		Budgets:      api.NewBudgetHandler(budgets),
		Accounts:     api.NewAccountHandler(accounts),
		Categories:   api.NewCategoryHandler(service.NewCategoryService(deps)),
		Reports:      api.NewReportHandler(reports),
		Export:       api.NewExportHandler(tx, service.NewExportService()),
		Backup:       api.NewBackupHandler(service.NewBackupService(deps, tx, recurring, goals, budgets, accounts)),
		Sync:         api.NewSyncHandler(q, w, monitor, reports),
	})
}

func TestSetupRouter_Health(t *testing.T) {
	r := setupTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"online":true`)
}

func TestSetupRouter_RequiresToken(t *testing.T) {
	r := setupTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/transactions", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.GenerateToken(1, "alice", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/api/v1/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_PublicEndpoints(t *testing.T) {
	r := setupTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/connectivity", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/v1/transactions", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Financify API")
}

func TestSetupRouter_ConnectivityOverrideDebugOnly(t *testing.T) {
	token, err := middleware.GenerateToken(1, "alice", time.Hour)
	require.NoError(t, err)
	put := func(r http.Handler, withToken bool) int {
		req := httptest.NewRequest("PUT", "/api/v1/connectivity", strings.NewReader(`{"online":false}`))
		req.Header.Set("Content-Type", "application/json")
		if withToken {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNotFound, put(setupTestRouter(t), true))

	debug := setupTestRouterMode(t, "debug")
	assert.Equal(t, http.StatusUnauthorized, put(debug, false))
	assert.Equal(t, http.StatusOK, put(debug, true))
}
