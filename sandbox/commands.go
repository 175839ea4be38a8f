package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// CommandResult 命令执行结果。
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Error    string
}

// CommandHandle 后台命令句柄。
// 输出通过回调或 Wait 聚合获得；放弃句柄前应显式 Kill，
// SDK 不会自动终止后台命令。
type CommandHandle struct {
	PID uint32

	commands  *Commands
	cancel    context.CancelFunc
	done      chan struct{}
	pidCh     chan struct{}
	pidOnce   sync.Once
	result    *CommandResult
	streamErr error

	mu       sync.Mutex
	onStdout func(data []byte)
	onStderr func(data []byte)
}

// Wait 等待命令完成并返回结果。
// 事件流因传输故障中断时返回错误；流正常结束但缺失 end 事件时
// 返回 ExitCode 为 -1 的结果，保留已收到的输出。
func (h *CommandHandle) Wait() (*CommandResult, error) {
	<-h.done
	if h.streamErr != nil {
		return nil, h.streamErr
	}
	if h.result == nil {
		return nil, fmt.Errorf("command terminated without result")
	}
	return h.result, nil
}

// Kill 终止命令。
// 无论进程是否已经退出，Kill 都是合法调用。
// PID 尚未分配时先等待 start 事件；若命令在此之前已结束则无需终止。
func (h *CommandHandle) Kill(ctx context.Context) error {
	defer h.cancel()
	select {
	case <-h.pidCh:
	case <-h.done:
		if h.PID == 0 {
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return h.commands.Kill(ctx, h.PID)
}

// WaitPID 等待进程 PID 被分配。
// 收到 start 事件后返回 PID；若 ctx 取消则返回错误。
func (h *CommandHandle) WaitPID(ctx context.Context) (uint32, error) {
	select {
	case <-h.pidCh:
		return h.PID, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ProcessInfo 进程信息。
type ProcessInfo struct {
	PID  uint32            `json:"pid"`
	Tag  *string           `json:"tag,omitempty"`
	Cmd  string            `json:"cmd"`
	Args []string          `json:"args,omitempty"`
	Envs map[string]string `json:"envs,omitempty"`
	Cwd  *string           `json:"cwd,omitempty"`
}

// CommandOption 命令选项。
type CommandOption func(*commandOpts)

type commandOpts struct {
	envs     map[string]string
	cwd      string
	user     string
	tag      string
	onStdout func(data []byte)
	onStderr func(data []byte)
	timeout  time.Duration
}

// WithEnvs 设置命令的环境变量。
func WithEnvs(envs map[string]string) CommandOption {
	return func(o *commandOpts) { o.envs = envs }
}

// WithCwd 设置命令的工作目录。
func WithCwd(cwd string) CommandOption {
	return func(o *commandOpts) { o.cwd = cwd }
}

// WithCommandUser 设置执行命令的用户。
func WithCommandUser(user string) CommandOption {
	return func(o *commandOpts) { o.user = user }
}

// WithTag 设置进程标签，用于后续通过标签定位进程。
func WithTag(tag string) CommandOption {
	return func(o *commandOpts) { o.tag = tag }
}

// WithOnStdout 设置 stdout 数据回调。
// 回调按到达顺序同步接收每个输出片段，与最终聚合结果一致。
func WithOnStdout(fn func(data []byte)) CommandOption {
	return func(o *commandOpts) { o.onStdout = fn }
}

// WithOnStderr 设置 stderr 数据回调。
func WithOnStderr(fn func(data []byte)) CommandOption {
	return func(o *commandOpts) { o.onStderr = fn }
}

// WithTimeout 设置命令超时时间。
func WithTimeout(timeout time.Duration) CommandOption {
	return func(o *commandOpts) { o.timeout = timeout }
}

func applyCommandOpts(opts []CommandOption) *commandOpts {
	o := &commandOpts{user: DefaultUser}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// ---------------------------------------------------------------------------
// agent runtime wire 类型
// ---------------------------------------------------------------------------

type startCommandRequest struct {
	Cmd  string            `json:"cmd"`
	Envs map[string]string `json:"envs,omitempty"`
	Cwd  string            `json:"cwd,omitempty"`
	Tag  string            `json:"tag,omitempty"`
}

// commandEvent 是命令事件流中的单条事件（NDJSON，每行一条）。
type commandEvent struct {
	Event    string `json:"event"` // start | stdout | stderr | end
	PID      uint32 `json:"pid,omitempty"`
	Data     string `json:"data,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Commands 提供沙箱命令执行能力。
type Commands struct {
	sandbox *Sandbox
}

// newCommands 创建 Commands 实例。
func newCommands(s *Sandbox) *Commands {
	return &Commands{sandbox: s}
}

// Run 在沙箱中执行命令并等待完成。
//
// 命令以非零状态退出时返回 *CommandExitError（携带退出码和 stderr），
// 这是语义结果而非传输故障，不会被重试；传输层失败按执行重试策略
// 做有界重试（最多 5 次，间隔 5 秒）。
//
// 注意: stdout 和 stderr 在内存中累积，长时间运行或大量输出的命令
// 应使用 Start() + WithOnStdout/WithOnStderr 流式回调处理输出。
func (c *Commands) Run(ctx context.Context, cmd string, opts ...CommandOption) (*CommandResult, error) {
	return executeWithRetry(ctx, c.sandbox.client.runRetry, func() (*CommandResult, error) {
		return c.runOnce(ctx, cmd, opts...)
	})
}

func (c *Commands) runOnce(ctx context.Context, cmd string, opts ...CommandOption) (*CommandResult, error) {
	handle, err := c.Start(ctx, cmd, opts...)
	if err != nil {
		return nil, err
	}
	result, err := handle.Wait()
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, &CommandExitError{
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
	}
	return result, nil
}

// Start 在沙箱中后台启动命令。返回 CommandHandle 可用于等待完成或终止。
// cmd 由 agent runtime 以登录 shell 执行，支持 shell 语法（管道、重定向等）。
func (c *Commands) Start(ctx context.Context, cmd string, opts ...CommandOption) (*CommandHandle, error) {
	o := applyCommandOpts(opts)

	cmdCtx := ctx
	var cmdCancel context.CancelFunc
	if o.timeout > 0 {
		cmdCtx, cmdCancel = context.WithTimeout(ctx, o.timeout)
	} else {
		cmdCtx, cmdCancel = context.WithCancel(ctx)
	}

	body, err := json.Marshal(startCommandRequest{
		Cmd:  cmd,
		Envs: o.envs,
		Cwd:  o.cwd,
		Tag:  o.tag,
	})
	if err != nil {
		cmdCancel()
		return nil, fmt.Errorf("encode command request: %w", err)
	}

	stream, err := c.openEventStream(cmdCtx, http.MethodPost, c.sandbox.agentURL()+"/commands", bytes.NewReader(body), o.user)
	if err != nil {
		cmdCancel()
		return nil, fmt.Errorf("start command: %w", err)
	}

	handle := &CommandHandle{
		commands: c,
		cancel:   cmdCancel,
		done:     make(chan struct{}),
		pidCh:    make(chan struct{}),
		onStdout: o.onStdout,
		onStderr: o.onStderr,
	}

	go consumeEventStream(stream, handle)

	return handle, nil
}

// Connect 连接到正在运行的进程，接管其输出流。
func (c *Commands) Connect(ctx context.Context, pid uint32, opts ...CommandOption) (*CommandHandle, error) {
	o := applyCommandOpts(opts)
	connectCtx, connectCancel := context.WithCancel(ctx)

	u := c.commandURL(pid) + "/connect"
	stream, err := c.openEventStream(connectCtx, http.MethodPost, u, nil, o.user)
	if err != nil {
		connectCancel()
		return nil, fmt.Errorf("connect to process: %w", err)
	}

	handle := &CommandHandle{
		PID:      pid,
		commands: c,
		cancel:   connectCancel,
		done:     make(chan struct{}),
		pidCh:    make(chan struct{}),
		onStdout: o.onStdout,
		onStderr: o.onStderr,
	}
	// PID 已知，无需等待 start 事件
	handle.pidOnce.Do(func() { close(handle.pidCh) })

	go consumeEventStream(stream, handle)

	return handle, nil
}

// List 列出所有运行中的进程。
func (c *Commands) List(ctx context.Context) ([]ProcessInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sandbox.agentURL()+"/commands", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setAgentAuth(req, DefaultUser)

	resp, err := c.sandbox.client.dataClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp.StatusCode, data)
	}

	var out struct {
		Processes []ProcessInfo `json:"processes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode process list: %w", err)
	}
	return out.Processes, nil
}

// SendStdin 向进程发送标准输入。
func (c *Commands) SendStdin(ctx context.Context, pid uint32, data []byte) error {
	u := c.commandURL(pid) + "/stdin"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	setAgentAuth(req, DefaultUser)

	resp, err := c.sandbox.client.dataClient.Do(req)
	if err != nil {
		return fmt.Errorf("send stdin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, data)
	}
	return nil
}

// Kill 终止指定进程。
// 进程已退出时 agent 返回 not-found，同样视为成功。
func (c *Commands) Kill(ctx context.Context, pid uint32) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.commandURL(pid), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	setAgentAuth(req, DefaultUser)

	resp, err := c.sandbox.client.dataClient.Do(req)
	if err != nil {
		return fmt.Errorf("kill process: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		data, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, data)
	}
	return nil
}

func (c *Commands) commandURL(pid uint32) string {
	return c.sandbox.agentURL() + "/commands/" + strconv.FormatUint(uint64(pid), 10)
}

// openEventStream 建立命令事件流连接，返回已验证状态码的响应 body。
func (c *Commands) openEventStream(ctx context.Context, method, u string, body io.Reader, user string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	setAgentAuth(req, user)

	resp, err := c.sandbox.client.dataClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, newAPIError(resp.StatusCode, data)
	}
	return resp.Body, nil
}

// setAgentAuth 将数据面认证头设置到请求。
func setAgentAuth(req *http.Request, user string) {
	for k, vs := range agentAuthHeader(user) {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}

// maxEventLine 是事件流单行的最大长度。
const maxEventLine = 4 << 20

// consumeEventStream 逐行消费命令事件流（Start 和 Connect 共用）。
// 输出片段按到达顺序先投递回调再累积，保证回调视图与聚合结果一致。
func consumeEventStream(stream io.ReadCloser, handle *CommandHandle) {
	defer close(handle.done)
	defer handle.cancel()
	defer stream.Close()

	var stdout, stderr []byte

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event commandEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		switch event.Event {
		case "start":
			handle.pidOnce.Do(func() {
				handle.PID = event.PID
				close(handle.pidCh)
			})
		case "stdout":
			data := []byte(event.Data)
			stdout = append(stdout, data...)
			handle.mu.Lock()
			fn := handle.onStdout
			handle.mu.Unlock()
			if fn != nil {
				fn(data)
			}
		case "stderr":
			data := []byte(event.Data)
			stderr = append(stderr, data...)
			handle.mu.Lock()
			fn := handle.onStderr
			handle.mu.Unlock()
			if fn != nil {
				fn(data)
			}
		case "end":
			exitCode := 0
			if event.ExitCode != nil {
				exitCode = *event.ExitCode
			}
			handle.result = &CommandResult{
				ExitCode: exitCode,
				Stdout:   string(stdout),
				Stderr:   string(stderr),
				Error:    event.Error,
			}
		}
	}

	if handle.result != nil {
		return
	}

	// 传输故障导致流中断属于暂态失败，作为错误上报以便重试；
	// 流正常结束但缺失 end 事件时才构造 -1 结果。
	if err := scanner.Err(); err != nil {
		handle.streamErr = fmt.Errorf("command event stream interrupted: %w", err)
		return
	}
	handle.result = &CommandResult{
		ExitCode: -1,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
	}
}
