package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/model-router/internal/health"
	"github.com/tributary-ai/model-router/internal/metrics"
	"github.com/tributary-ai/model-router/internal/providers"
	"github.com/tributary-ai/model-router/internal/registry"
	"github.com/tributary-ai/model-router/internal/routing"
	"github.com/tributary-ai/model-router/internal/types"
)

// fakeProvider answers with a canned completion unless fail says otherwise
type fakeProvider struct {
	name string
	fail func(model string) error

	mu     sync.Mutex
	models []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ChatCompletion(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	f.mu.Lock()
	f.models = append(f.models, req.Model)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(req.Model); err != nil {
			return nil, err
		}
	}
	return &types.ChatResponse{
		ID:      req.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []types.Choice{{Message: types.Message{Role: "assistant", Content: "hi from " + req.Model}, FinishReason: "stop"}},
		Usage:   &types.Usage{PromptTokens: 3, CompletionTokens: 3, TotalTokens: 6},
	}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) error { return nil }

func (f *fakeProvider) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}

type testEnv struct {
	handler http.Handler
	alpha   *fakeProvider
	beta    *fakeProvider
	monitor *health.Monitor
}

func newTestEnv(t *testing.T, alphaFail, betaFail func(string) error) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg, err := registry.New([]types.CapabilityEntry{
		{ID: "alpha-large", ProviderID: "alpha", Capabilities: []string{types.CapabilityCoding, types.CapabilityReasoning}, ContextWindow: 128000, InputPricePer1K: 0.005, OutputPricePer1K: 0.015, PriorityTier: 1},
		{ID: "beta-small", ProviderID: "beta", Capabilities: []string{types.CapabilityCoding}, ContextWindow: 32000, InputPricePer1K: 0.0002, OutputPricePer1K: 0.0006, PriorityTier: 3},
	}, nil, logger)
	require.NoError(t, err)

	monitor := health.NewMonitor(health.DefaultConfig(), logger)
	monitor.Register("alpha", nil)
	monitor.Register("beta", nil)

	cfg := routing.DefaultConfig()
	cfg.DefaultModel = "beta-small"
	router, err := routing.NewRouter(cfg, reg, monitor, reg, logger)
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promReg)
	router.SetObserver(recorder)

	alpha := &fakeProvider{name: "alpha", fail: alphaFail}
	beta := &fakeProvider{name: "beta", fail: betaFail}

	srv, err := NewServer(&ServerConfig{
		MaxRequestSize: 1 << 20,
		RequestTimeout: 5 * time.Second,
		AllowedOrigins: []string{"*"},
		ValidateAPI:    true,
	}, Dependencies{
		Router:    router,
		Catalog:   reg,
		Health:    monitor,
		Providers: providers.NewSet(alpha, beta),
		Metrics:   recorder,
		Gatherer:  promReg,
	}, logger)
	require.NoError(t, err)

	return &testEnv{handler: srv.Handler(), alpha: alpha, beta: beta, monitor: monitor}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

const helloBody = `{"messages":[{"role":"user","content":"Hello there"}]}`

func TestNewServer_RequiresCollaborators(t *testing.T) {
	_, err := NewServer(&ServerConfig{}, Dependencies{}, logrus.New())
	assert.Error(t, err)
}

func TestRoutingDecision(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	body := jsonBody(t, map[string]interface{}{
		"messages": []map[string]string{
			{"role": "user", "content": "Fix the bug in this function:\n```go\nfunc f() { return 1 }\n```"},
		},
		"preferences": map[string]string{"quality_speed_tradeoff": "quality"},
	})
	rec := env.do(t, "POST", "/v1/routing/decision", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result types.RoutingResult
	decodeBody(t, rec, &result)
	assert.NotEmpty(t, result.SelectedModel)
	assert.NotEmpty(t, result.SelectedProvider)
	assert.Equal(t, "quality_optimized", result.Strategy)
	require.NotNil(t, result.Analysis)
	assert.Equal(t, types.CategoryCoding, result.Analysis.Category)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRoutingDecision_Validation(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing messages", `{}`},
		{"empty messages", `{"messages": []}`},
		{"bad role", `{"messages": [{"role": "robot", "content": "hi"}]}`},
		{"bad preference", `{"messages": [{"role": "user", "content": "hi"}], "preferences": {"cost_optimization": "extreme"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/v1/routing/decision", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, "POST", "/v1/analyze", helloBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var analysis types.TaskAnalysis
	decodeBody(t, rec, &analysis)
	assert.Equal(t, types.CategoryGeneralConversation, analysis.Category)
	assert.Equal(t, types.ComplexitySimple, analysis.Complexity)
}

func TestChatCompletion(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, "POST", "/v1/chat/completions", helloBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp types.ChatResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.RouterMetadata)
	assert.Equal(t, 1, resp.RouterMetadata.AttemptCount)
	assert.Empty(t, resp.RouterMetadata.FailedModels)
	assert.Equal(t, resp.Model, resp.RouterMetadata.Model)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RouterMetadata.RequestID)
	assert.Len(t, append(env.alpha.calls(), env.beta.calls()...), 1)

	snaps, err := env.monitor.GetAllHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.HealthHealthy, snaps[resp.RouterMetadata.Provider].Status, "live traffic feeds the monitor")
}

func TestChatCompletion_ExplicitModel(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, "POST", "/v1/chat/completions", `{"model":"alpha-large","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp types.ChatResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "alpha", resp.RouterMetadata.Provider)
	assert.Equal(t, "explicit", resp.RouterMetadata.Strategy)
	assert.Equal(t, []string{"alpha-large"}, env.alpha.calls())
	assert.Empty(t, env.beta.calls())
}

func TestChatCompletion_UnknownModel(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, "POST", "/v1/chat/completions", `{"model":"gpt-9","messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp types.ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "model_not_found", resp.Error.Type)
}

func TestChatCompletion_FallsBackOnFailure(t *testing.T) {
	var calls atomic.Int32
	failFirst := func(string) error {
		if calls.Add(1) == 1 {
			return &providers.StatusError{Provider: "x", StatusCode: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
		}
		return nil
	}
	env := newTestEnv(t, failFirst, failFirst)

	rec := env.do(t, "POST", "/v1/chat/completions", helloBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp types.ChatResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.RouterMetadata)
	assert.Equal(t, 2, resp.RouterMetadata.AttemptCount)
	require.Len(t, resp.RouterMetadata.FailedModels, 1)
	assert.NotEqual(t, resp.RouterMetadata.FailedModels[0], resp.RouterMetadata.Model)
}

func TestChatCompletion_NonRetryableStops(t *testing.T) {
	badRequest := func(string) error {
		return &providers.StatusError{Provider: "x", StatusCode: http.StatusBadRequest, Err: errors.New("bad params")}
	}
	env := newTestEnv(t, badRequest, badRequest)

	rec := env.do(t, "POST", "/v1/chat/completions", helloBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, append(env.alpha.calls(), env.beta.calls()...), 1)
}

func TestChatCompletion_AllFail(t *testing.T) {
	down := func(string) error { return errors.New("connection refused") }
	env := newTestEnv(t, down, down)

	rec := env.do(t, "POST", "/v1/chat/completions", helloBody)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp types.ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "provider_error", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "2 attempt(s)")
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, "GET", "/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ModelsResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "list", resp.Object)
	assert.Len(t, resp.Data, 2)
}

func TestRoutingStats(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	env.do(t, "POST", "/v1/routing/decision", helloBody)
	env.do(t, "POST", "/v1/routing/decision", helloBody)

	rec := env.do(t, "GET", "/v1/routing/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats types.RouterStats
	decodeBody(t, rec, &stats)
	assert.EqualValues(t, 2, stats.TotalRoutings)
	assert.EqualValues(t, 2, stats.SuccessfulRoutings)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, path := range []string{"/health", "/v1/health"} {
		rec := env.do(t, "GET", path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body struct {
			Status    string                           `json:"status"`
			Providers map[string]*types.HealthSnapshot `json:"providers"`
		}
		decodeBody(t, rec, &body)
		assert.Equal(t, "degraded", body.Status)
		assert.Len(t, body.Providers, 2)
	}

	for i := 0; i < 3; i++ {
		env.monitor.Record("alpha", 10*time.Millisecond, errors.New("down"))
		env.monitor.Record("beta", 10*time.Millisecond, errors.New("down"))
	}
	rec := env.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, "POST", "/v1/routing/decision", helloBody)

	rec := env.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "model_router_routings_total")
	assert.Contains(t, rec.Body.String(), "model_router_http_requests_total")
}

func TestDocsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, "GET", "/docs/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")

	rec = env.do(t, "GET", "/docs/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]interface{}
	decodeBody(t, rec, &doc)
	assert.Equal(t, "3.0.3", doc["openapi"])

	rec = env.do(t, "GET", "/docs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}

func TestContentTypeAndCORS(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	req := httptest.NewRequest("POST", "/v1/analyze", strings.NewReader(helloBody))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest("OPTIONS", "/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestInvalidJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, "POST", "/v1/chat/completions", `{"messages": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonBody(t *testing.T, v interface{}) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return buf.String()
}
