package sandbox

import (
	"context"
	"testing"
	"time"
)

// mockAPI 实现 controlPlane 用于测试。
// 每个方法字段可按测试设置；未设置的方法会 panic。
type mockAPI struct {
	healthCheckFn       func(ctx context.Context) error
	createSandboxFn     func(ctx context.Context, body createSandboxRequest) (*apiSandbox, error)
	getSandboxFn        func(ctx context.Context, sandboxID string) (*apiSandboxDetail, error)
	deleteSandboxFn     func(ctx context.Context, sandboxID string) error
	listSandboxesFn     func(ctx context.Context, query listSandboxesQuery) (*listSandboxesResponse, error)
	pauseSandboxFn      func(ctx context.Context, sandboxID string) error
	connectSandboxFn    func(ctx context.Context, sandboxID string, body connectSandboxRequest) (*apiSandbox, error)
	setSandboxTimeoutFn func(ctx context.Context, sandboxID string, body setTimeoutRequest) error
	refreshSandboxFn    func(ctx context.Context, sandboxID string, body refreshSandboxRequest) error
}

func (m *mockAPI) healthCheck(ctx context.Context) error {
	return m.healthCheckFn(ctx)
}

func (m *mockAPI) createSandbox(ctx context.Context, body createSandboxRequest) (*apiSandbox, error) {
	return m.createSandboxFn(ctx, body)
}

func (m *mockAPI) getSandbox(ctx context.Context, sandboxID string) (*apiSandboxDetail, error) {
	return m.getSandboxFn(ctx, sandboxID)
}

func (m *mockAPI) deleteSandbox(ctx context.Context, sandboxID string) error {
	return m.deleteSandboxFn(ctx, sandboxID)
}

func (m *mockAPI) listSandboxes(ctx context.Context, query listSandboxesQuery) (*listSandboxesResponse, error) {
	return m.listSandboxesFn(ctx, query)
}

func (m *mockAPI) pauseSandbox(ctx context.Context, sandboxID string) error {
	return m.pauseSandboxFn(ctx, sandboxID)
}

func (m *mockAPI) connectSandbox(ctx context.Context, sandboxID string, body connectSandboxRequest) (*apiSandbox, error) {
	return m.connectSandboxFn(ctx, sandboxID, body)
}

func (m *mockAPI) setSandboxTimeout(ctx context.Context, sandboxID string, body setTimeoutRequest) error {
	return m.setSandboxTimeoutFn(ctx, sandboxID, body)
}

func (m *mockAPI) refreshSandbox(ctx context.Context, sandboxID string, body refreshSandboxRequest) error {
	return m.refreshSandboxFn(ctx, sandboxID, body)
}

// ============================================================
// 测试用例
// ============================================================

func newTestClient(api controlPlane) *Client {
	resolver, _ := newGatewayResolver("gateway.test", true)
	return &Client{
		config:   &Config{APIKey: "test-key", Domain: "gateway.test"},
		resolver: resolver,
		api:      api,
		// 测试中缩短重试间隔
		connectRetry: RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond, Retryable: IsPausing},
		runRetry:     RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond, Retryable: isRunRetryable},
	}
}

func newTestSandbox(c *Client, id string) *Sandbox {
	return &Sandbox{sandboxID: id, client: c}
}

// --- 客户端配置 ---

func TestNewClient(t *testing.T) {
	c, err := NewClient(&Config{APIKey: "test-key", Domain: "gateway.test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.Endpoint() == nil {
		t.Error("expected non-nil endpoint resolver")
	}
}

func TestNewClientMissingAPIKey(t *testing.T) {
	t.Setenv("KRUISE_API_KEY", "")
	t.Setenv("E2B_API_KEY", "")
	t.Setenv("KRUISE_CONFIG_FILE", "/nonexistent/config.toml")
	_, err := NewClient(&Config{Domain: "gateway.test"})
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewClientMissingDomain(t *testing.T) {
	t.Setenv("KRUISE_SANDBOX_DOMAIN", "")
	t.Setenv("E2B_DOMAIN", "")
	t.Setenv("KRUISE_CONFIG_FILE", "/nonexistent/config.toml")
	_, err := NewClient(&Config{APIKey: "test-key"})
	if err == nil {
		t.Fatal("expected error for missing domain")
	}
}

func TestNewClientAPIKeyFromEnv(t *testing.T) {
	t.Setenv("KRUISE_API_KEY", "env-key")
	c, err := NewClient(&Config{Domain: "gateway.test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.config.APIKey != "env-key" {
		t.Errorf("expected api key from env, got %q", c.config.APIKey)
	}
}

func TestNewClientGatewayEndpoint(t *testing.T) {
	c, err := NewClient(&Config{APIKey: "test-key", Domain: "gateway.test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Endpoint().APIURL(); got != "https://gateway.test/kruise/api" {
		t.Errorf("unexpected api url: %q", got)
	}
}

func TestNewClientPublicEndpoint(t *testing.T) {
	c, err := NewClient(&Config{APIKey: "test-key", Domain: "e2b.dev", Public: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Endpoint().APIURL(); got != "https://api.e2b.dev" {
		t.Errorf("unexpected api url: %q", got)
	}
}

func TestNewClientInsecure(t *testing.T) {
	secure := false
	c, err := NewClient(&Config{APIKey: "test-key", Domain: "gateway.test", Secure: &secure})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Endpoint().APIURL(); got != "http://gateway.test/kruise/api" {
		t.Errorf("unexpected api url: %q", got)
	}
	if got := c.Endpoint().Scheme(); got != "http" {
		t.Errorf("unexpected scheme: %q", got)
	}
}

// --- Client.Create ---

func TestCreate(t *testing.T) {
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body createSandboxRequest) (*apiSandbox, error) {
			if body.TemplateID != "tmpl-1" {
				t.Errorf("expected template ID 'tmpl-1', got %q", body.TemplateID)
			}
			return &apiSandbox{SandboxID: "sb-123", TemplateID: "tmpl-1"}, nil
		},
	}
	c := newTestClient(mock)
	sb, err := c.Create(context.Background(), CreateParams{TemplateID: "tmpl-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.ID() != "sb-123" {
		t.Errorf("expected sandbox ID 'sb-123', got %q", sb.ID())
	}
	if sb.TemplateID() != "tmpl-1" {
		t.Errorf("expected template ID 'tmpl-1', got %q", sb.TemplateID())
	}
}

func TestCreateMissingTemplate(t *testing.T) {
	called := false
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body createSandboxRequest) (*apiSandbox, error) {
			called = true
			return nil, nil
		},
	}
	c := newTestClient(mock)
	_, err := c.Create(context.Background(), CreateParams{})
	if err == nil {
		t.Fatal("expected error for missing template ID")
	}
	if called {
		t.Error("expected no remote call for invalid params")
	}
}

func TestCreateError(t *testing.T) {
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body createSandboxRequest) (*apiSandbox, error) {
			return nil, newAPIError(400, []byte(`{"message":"bad request"}`))
		},
	}
	c := newTestClient(mock)
	_, err := c.Create(context.Background(), CreateParams{TemplateID: "tmpl-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != 400 {
		t.Errorf("expected status 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "bad request" {
		t.Errorf("expected message 'bad request', got %q", apiErr.Message)
	}
}

// --- Client.Connect ---

func TestConnect(t *testing.T) {
	mock := &mockAPI{
		connectSandboxFn: func(ctx context.Context, sandboxID string, body connectSandboxRequest) (*apiSandbox, error) {
			return &apiSandbox{SandboxID: sandboxID, TemplateID: "tmpl-1"}, nil
		},
	}
	c := newTestClient(mock)
	timeout := int32(60)
	sb, err := c.Connect(context.Background(), "sb-123", &ConnectParams{Timeout: &timeout})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.ID() != "sb-123" {
		t.Errorf("expected sandbox ID 'sb-123', got %q", sb.ID())
	}
}

func TestConnectRetriesWhilePausing(t *testing.T) {
	attempts := 0
	mock := &mockAPI{
		connectSandboxFn: func(ctx context.Context, sandboxID string, body connectSandboxRequest) (*apiSandbox, error) {
			attempts++
			if attempts < 3 {
				return nil, newAPIError(409, []byte(`{"message":"sandbox is pausing, please wait a moment and try again"}`))
			}
			return &apiSandbox{SandboxID: sandboxID, TemplateID: "tmpl-1"}, nil
		},
	}
	c := newTestClient(mock)
	sb, err := c.Connect(context.Background(), "sb-123", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	// 恢复后 ID 必须与暂停前一致
	if sb.ID() != "sb-123" {
		t.Errorf("expected same sandbox ID after resume, got %q", sb.ID())
	}
}

func TestConnectNotFoundNoRetry(t *testing.T) {
	attempts := 0
	mock := &mockAPI{
		connectSandboxFn: func(ctx context.Context, sandboxID string, body connectSandboxRequest) (*apiSandbox, error) {
			attempts++
			return nil, newAPIError(404, []byte(`{"message":"sandbox not found"}`))
		},
	}
	c := newTestClient(mock)
	_, err := c.Connect(context.Background(), "sb-gone", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for terminal error, got %d", attempts)
	}
	if !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestConnectRetryExhausted(t *testing.T) {
	attempts := 0
	mock := &mockAPI{
		connectSandboxFn: func(ctx context.Context, sandboxID string, body connectSandboxRequest) (*apiSandbox, error) {
			attempts++
			return nil, newAPIError(409, []byte(`{"message":"sandbox is pausing"}`))
		},
	}
	c := newTestClient(mock)
	_, err := c.Connect(context.Background(), "sb-123", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != c.connectRetry.MaxAttempts {
		t.Errorf("expected %d attempts, got %d", c.connectRetry.MaxAttempts, attempts)
	}
	exhausted, ok := err.(*RetryExhaustedError)
	if !ok {
		t.Fatalf("expected *RetryExhaustedError, got %T", err)
	}
	if !IsPausing(exhausted.Err) {
		t.Errorf("expected wrapped pausing error, got %v", exhausted.Err)
	}
}

// --- 生命周期操作 ---

func TestPause(t *testing.T) {
	var pausedID string
	mock := &mockAPI{
		pauseSandboxFn: func(ctx context.Context, sandboxID string) error {
			pausedID = sandboxID
			return nil
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")
	if err := sb.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pausedID != "sb-123" {
		t.Errorf("expected pause for 'sb-123', got %q", pausedID)
	}
}

func TestKill(t *testing.T) {
	mock := &mockAPI{
		deleteSandboxFn: func(ctx context.Context, sandboxID string) error {
			return nil
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")
	if err := sb.Kill(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKillNotFoundIsIdempotent(t *testing.T) {
	mock := &mockAPI{
		deleteSandboxFn: func(ctx context.Context, sandboxID string) error {
			return newAPIError(404, []byte(`{"message":"sandbox not found"}`))
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-gone")
	if err := sb.Kill(context.Background()); err != nil {
		t.Errorf("expected nil for killing a dead sandbox, got %v", err)
	}
}

func TestKillOtherErrorPropagates(t *testing.T) {
	mock := &mockAPI{
		deleteSandboxFn: func(ctx context.Context, sandboxID string) error {
			return newAPIError(500, []byte(`{"message":"internal error"}`))
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")
	if err := sb.Kill(context.Background()); err == nil {
		t.Error("expected error for server failure")
	}
}

func TestGetInfo(t *testing.T) {
	mock := &mockAPI{
		getSandboxFn: func(ctx context.Context, sandboxID string) (*apiSandboxDetail, error) {
			return &apiSandboxDetail{
				SandboxID:  sandboxID,
				TemplateID: "tmpl-1",
				State:      "running",
				Metadata:   map[string]string{"app": "demo"},
			}, nil
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")
	info, err := sb.GetInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.State != StateRunning {
		t.Errorf("expected state running, got %q", info.State)
	}
	if info.Metadata["app"] != "demo" {
		t.Errorf("unexpected metadata: %v", info.Metadata)
	}
}

func TestIsRunning(t *testing.T) {
	state := "paused"
	mock := &mockAPI{
		getSandboxFn: func(ctx context.Context, sandboxID string) (*apiSandboxDetail, error) {
			return &apiSandboxDetail{SandboxID: sandboxID, State: state}, nil
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")

	running, err := sb.IsRunning(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running {
		t.Error("expected not running for paused sandbox")
	}

	state = "running"
	running, err = sb.IsRunning(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !running {
		t.Error("expected running")
	}
}

func TestSetTimeout(t *testing.T) {
	var got int32
	mock := &mockAPI{
		setSandboxTimeoutFn: func(ctx context.Context, sandboxID string, body setTimeoutRequest) error {
			got = body.Timeout
			return nil
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")
	if err := sb.SetTimeout(context.Background(), 2*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 120 {
		t.Errorf("expected timeout 120s, got %d", got)
	}
}

func TestSetTimeoutTooSmall(t *testing.T) {
	c := newTestClient(&mockAPI{})
	sb := newTestSandbox(c, "sb-123")
	if err := sb.SetTimeout(context.Background(), 100*time.Millisecond); err == nil {
		t.Error("expected error for sub-second timeout")
	}
}

func TestRefresh(t *testing.T) {
	var got *int
	mock := &mockAPI{
		refreshSandboxFn: func(ctx context.Context, sandboxID string, body refreshSandboxRequest) error {
			got = body.Duration
			return nil
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")
	duration := 300
	if err := sb.Refresh(context.Background(), &RefreshParams{Duration: &duration}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || *got != 300 {
		t.Errorf("expected duration 300, got %v", got)
	}
}

// --- WaitForReady / CreateAndWait ---

func TestWaitForReady(t *testing.T) {
	states := []string{"pausing", "pausing", "running"}
	call := 0
	mock := &mockAPI{
		getSandboxFn: func(ctx context.Context, sandboxID string) (*apiSandboxDetail, error) {
			state := states[call]
			if call < len(states)-1 {
				call++
			}
			return &apiSandboxDetail{SandboxID: sandboxID, State: state}, nil
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")
	info, err := sb.WaitForReady(context.Background(), WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.State != StateRunning {
		t.Errorf("expected running, got %q", info.State)
	}
	if call != 2 {
		t.Errorf("expected 3 polls, got %d", call+1)
	}
}

func TestWaitForReadyContextCancel(t *testing.T) {
	mock := &mockAPI{
		getSandboxFn: func(ctx context.Context, sandboxID string) (*apiSandboxDetail, error) {
			return &apiSandboxDetail{SandboxID: sandboxID, State: "pausing"}, nil
		},
	}
	c := newTestClient(mock)
	sb := newTestSandbox(c, "sb-123")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sb.WaitForReady(ctx, WithPollInterval(5*time.Millisecond))
	if err == nil {
		t.Fatal("expected error after context cancel")
	}
}

func TestCreateAndWait(t *testing.T) {
	mock := &mockAPI{
		createSandboxFn: func(ctx context.Context, body createSandboxRequest) (*apiSandbox, error) {
			return &apiSandbox{SandboxID: "sb-123", TemplateID: "tmpl-1"}, nil
		},
		getSandboxFn: func(ctx context.Context, sandboxID string) (*apiSandboxDetail, error) {
			return &apiSandboxDetail{SandboxID: sandboxID, State: "running"}, nil
		},
	}
	c := newTestClient(mock)
	sb, info, err := c.CreateAndWait(context.Background(), CreateParams{TemplateID: "tmpl-1"},
		WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.ID() != "sb-123" {
		t.Errorf("expected sandbox ID 'sb-123', got %q", sb.ID())
	}
	if info.State != StateRunning {
		t.Errorf("expected running, got %q", info.State)
	}
}

// --- 健康检查 ---

func TestHealthCheck(t *testing.T) {
	called := false
	mock := &mockAPI{
		healthCheckFn: func(ctx context.Context) error {
			called = true
			return nil
		},
	}
	c := newTestClient(mock)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected health check call")
	}
}
