package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// agentPort 是沙箱内 agent runtime 守护进程的端口，承载命令执行和文件操作。
const agentPort = 49983

// interpreterPort 是沙箱内代码解释器服务的端口。
const interpreterPort = 49999

// DefaultUser 是沙箱命令执行和文件操作的默认用户名。
const DefaultUser = "user"

// Sandbox 表示一个运行中的沙箱实例。
// 持有客户端引用，用于执行生命周期操作和数据面通信。
// SandboxID 在创建时分配，暂停/恢复后保持不变。
type Sandbox struct {
	sandboxID   string
	templateID  string
	alias       *string
	domain      *string
	accessToken *string

	client *Client

	// 数据面子模块（懒初始化）
	commandsOnce sync.Once
	commands     *Commands

	filesOnce sync.Once
	files     *Filesystem

	interpreterOnce sync.Once
	interpreter     *CodeInterpreter
}

// newSandbox 从控制面响应创建 Sandbox 实例。
func newSandbox(c *Client, s *apiSandbox) *Sandbox {
	return &Sandbox{
		sandboxID:   s.SandboxID,
		templateID:  s.TemplateID,
		alias:       s.Alias,
		domain:      s.Domain,
		accessToken: s.AccessToken,
		client:      c,
	}
}

// ID 返回沙箱 ID。
func (s *Sandbox) ID() string { return s.sandboxID }

// TemplateID 返回沙箱所属的模板 ID。
func (s *Sandbox) TemplateID() string { return s.templateID }

// Alias 返回沙箱的别名。
func (s *Sandbox) Alias() *string { return s.alias }

// Create 根据指定模板创建一个新的沙箱，成功后沙箱处于 running 状态。
// 必填参数缺失时返回配置错误，不发起远端调用。
func (c *Client) Create(ctx context.Context, params CreateParams) (*Sandbox, error) {
	if err := validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("sandbox: invalid create params: %w", err)
	}
	resp, err := c.api.createSandbox(ctx, params.toAPI())
	if err != nil {
		return nil, err
	}
	return newSandbox(c, resp), nil
}

// Connect 连接到一个已有的沙箱，若沙箱处于暂停状态则隐式恢复。
//
// 沙箱可能正处于暂停过渡（pausing）状态，此时服务端返回瞬时错误；
// Connect 内部按 2 秒间隔最多重试 30 次吸收该过渡期。
// 沙箱不存在（已终止或超时回收）是终态错误，立即返回，不重试。
// 返回的沙箱 ID 与暂停前一致。
func (c *Client) Connect(ctx context.Context, sandboxID string, params *ConnectParams) (*Sandbox, error) {
	return executeWithRetry(ctx, c.connectRetry, func() (*Sandbox, error) {
		resp, err := c.api.connectSandbox(ctx, sandboxID, params.toAPI())
		if err != nil {
			return nil, err
		}
		return newSandbox(c, resp), nil
	})
}

// Pause 请求暂停沙箱。
// 本调用在请求被接受后即返回，不等待 running→paused 过渡完成；
// 过渡期间对该沙箱的 Connect 和执行调用会收到可重试的瞬时错误。
func (s *Sandbox) Pause(ctx context.Context) error {
	return s.client.api.pauseSandbox(ctx, s.sandboxID)
}

// Kill 终止沙箱。
// 幂等：终止一个已经不存在的沙箱不视为错误，因为终止本身就是期望的终态。
// 其他非 2xx 响应作为携带原始 body 的 APIError 返回。
func (s *Sandbox) Kill(ctx context.Context) error {
	err := s.client.api.deleteSandbox(ctx, s.sandboxID)
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

// GetInfo 返回沙箱的详细信息。
// 沙箱已终止或被超时回收时返回 not-found 错误。
func (s *Sandbox) GetInfo(ctx context.Context) (*SandboxInfo, error) {
	resp, err := s.client.api.getSandbox(ctx, s.sandboxID)
	if err != nil {
		return nil, err
	}
	return sandboxInfoFromAPI(resp), nil
}

// IsRunning 检查沙箱是否处于运行状态。
func (s *Sandbox) IsRunning(ctx context.Context) (bool, error) {
	info, err := s.GetInfo(ctx)
	if err != nil {
		return false, err
	}
	return info.State == StateRunning, nil
}

// SetTimeout 更新沙箱空闲超时时间。
// 沙箱将在从现在起经过指定时长后由服务端回收。
// timeout 必须 >= 1 秒。
func (s *Sandbox) SetTimeout(ctx context.Context, timeout time.Duration) error {
	if timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", timeout)
	}
	secs := timeout.Seconds()
	if secs > float64(math.MaxInt32) {
		return fmt.Errorf("timeout %v exceeds maximum allowed value", timeout)
	}
	return s.client.api.setSandboxTimeout(ctx, s.sandboxID, setTimeoutRequest{
		Timeout: int32(secs),
	})
}

// Refresh 延长沙箱的存活时间。
func (s *Sandbox) Refresh(ctx context.Context, params *RefreshParams) error {
	return s.client.api.refreshSandbox(ctx, s.sandboxID, params.toAPI())
}

// WaitForReady 轮询 GetInfo 直到沙箱状态变为 running 或上下文被取消。
// 默认轮询间隔为 1 秒，可通过 WithPollInterval 等选项自定义。
func (s *Sandbox) WaitForReady(ctx context.Context, opts ...PollOption) (*SandboxInfo, error) {
	o := defaultPollOpts(time.Second)
	for _, fn := range opts {
		fn(o)
	}

	return pollLoop(ctx, o, func() (bool, *SandboxInfo, error) {
		info, err := s.GetInfo(ctx)
		if err != nil {
			return false, nil, fmt.Errorf("get sandbox %s: %w", s.sandboxID, err)
		}
		if info.State == StateRunning {
			return true, info, nil
		}
		return false, nil, nil
	})
}

// CreateAndWait 创建沙箱并等待其就绪。
func (c *Client) CreateAndWait(ctx context.Context, params CreateParams, opts ...PollOption) (*Sandbox, *SandboxInfo, error) {
	sb, err := c.Create(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("create sandbox: %w", err)
	}
	info, err := sb.WaitForReady(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return sb, info, nil
}

// Commands 返回命令执行操作接口。
func (s *Sandbox) Commands() *Commands {
	s.commandsOnce.Do(func() {
		s.commands = newCommands(s)
	})
	return s.commands
}

// Files 返回文件系统操作接口。
func (s *Sandbox) Files() *Filesystem {
	s.filesOnce.Do(func() {
		s.files = newFilesystem(s)
	})
	return s.files
}

// codeInterpreter 返回代码解释器接口，RunCode 的底层实现。
func (s *Sandbox) codeInterpreter() *CodeInterpreter {
	s.interpreterOnce.Do(func() {
		s.interpreter = newCodeInterpreter(s)
	})
	return s.interpreter
}

// RunCode 在沙箱解释器中执行代码并等待完成。
// 详见 CodeInterpreter.RunCode。
func (s *Sandbox) RunCode(ctx context.Context, code string, opts ...RunCodeOption) (*Execution, error) {
	return s.codeInterpreter().RunCode(ctx, code, opts...)
}

// GetHost 返回访问沙箱指定端口的外部 host。
// 自建部署形如 {domain}/kruise/{sandboxID}/{port}，
// 公有服务形如 {port}-{sandboxID}.{domain}。
func (s *Sandbox) GetHost(port int) string {
	return s.client.resolver.PortHost(s.sandboxID, port)
}

// portURL 返回访问沙箱指定端口的完整 URL。
func (s *Sandbox) portURL(port int) string {
	return fmt.Sprintf("%s://%s", s.client.resolver.Scheme(), s.GetHost(port))
}

// agentURL 返回 agent runtime 的基础 URL。
func (s *Sandbox) agentURL() string {
	return s.portURL(agentPort)
}

// interpreterURL 返回代码解释器服务的基础 URL。
func (s *Sandbox) interpreterURL() string {
	return s.portURL(interpreterPort)
}

// agentAuthHeader 返回数据面认证头。
// 认证格式为 Basic base64(username:)。
func agentAuthHeader(user string) http.Header {
	h := http.Header{}
	cred := base64.StdEncoding.EncodeToString([]byte(user + ":"))
	h.Set("Authorization", "Basic "+cred)
	return h
}

// FileURLOption 文件 URL 选项。
type FileURLOption func(*fileURLOpts)

type fileURLOpts struct {
	user                string
	signatureExpiration int
}

// WithFileUser 设置文件操作的用户。
func WithFileUser(user string) FileURLOption {
	return func(o *fileURLOpts) { o.user = user }
}

// WithSignatureExpiration 设置签名过期时间（秒）。
func WithSignatureExpiration(seconds int) FileURLOption {
	return func(o *fileURLOpts) { o.signatureExpiration = seconds }
}

// fileSignature 计算文件操作签名。
// 算法: "v1_" + SHA256(path + ":" + operation + ":" + username + ":" + accessToken + ":" + expiration)
//
// 注意: 此签名算法由后端服务定义，SDK 端需与服务端保持一致，不可单独修改。
func fileSignature(path, operation, username, accessToken string, expiration int) string {
	raw := fmt.Sprintf("%s:%s:%s:%s:%d", path, operation, username, accessToken, expiration)
	hash := sha256.Sum256([]byte(raw))
	return "v1_" + fmt.Sprintf("%x", hash)
}

// DownloadURL 返回从沙箱下载文件的 URL。
func (s *Sandbox) DownloadURL(path string, opts ...FileURLOption) string {
	return s.fileURL(path, "read", opts...)
}

// UploadURL 返回向沙箱上传文件的 URL（POST multipart/form-data）。
func (s *Sandbox) UploadURL(path string, opts ...FileURLOption) string {
	return s.fileURL(path, "write", opts...)
}

// fileURL 构造带签名的文件操作 URL。
func (s *Sandbox) fileURL(path, operation string, opts ...FileURLOption) string {
	o := &fileURLOpts{user: DefaultUser}
	for _, fn := range opts {
		fn(o)
	}

	q := url.Values{}
	q.Set("path", path)
	q.Set("username", o.user)

	if s.accessToken != nil && *s.accessToken != "" {
		exp := o.signatureExpiration
		if exp == 0 {
			exp = 300
		}
		sig := fileSignature(path, operation, o.user, *s.accessToken, exp)
		q.Set("signature", sig)
		q.Set("signature_expiration", strconv.Itoa(exp))
	}

	return s.agentURL() + "/files?" + q.Encode()
}

// batchUploadURL 返回批量上传文件的 URL。
// 与 UploadURL 不同，不设置 path 查询参数，文件路径由 multipart part filename 提供。
func (s *Sandbox) batchUploadURL(user string) string {
	q := url.Values{}
	q.Set("username", user)
	return s.agentURL() + "/files?" + q.Encode()
}
