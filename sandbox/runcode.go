package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ExecutionError 代码执行期间的运行时错误（异常名、消息和回溯）。
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Value)
}

// OutputMessage 代码执行的单条输出。
type OutputMessage struct {
	Line  string `json:"line"`
	Error bool   `json:"error,omitempty"`
}

// Logs 代码执行过程中的 stdout/stderr 输出，按到达顺序保存。
type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

// Result 代码执行产生的富结果（最后一个表达式的值、图表、图片等）。
type Result struct {
	Text     string                 `json:"text,omitempty"`
	HTML     string                 `json:"html,omitempty"`
	Markdown string                 `json:"markdown,omitempty"`
	PNG      string                 `json:"png,omitempty"`
	JPEG     string                 `json:"jpeg,omitempty"`
	SVG      string                 `json:"svg,omitempty"`
	JSON     map[string]interface{} `json:"json,omitempty"`
	Chart    map[string]interface{} `json:"chart,omitempty"`
	IsMain   bool                   `json:"is_main_result,omitempty"`
}

// Execution 一次代码执行的完整结果。
type Execution struct {
	Results []Result `json:"results"`
	Logs    Logs     `json:"logs"`
	// Error 非空表示代码执行抛出了异常。异常是语义结果，
	// 不会触发重试，需要调用方自行检查。
	Error *ExecutionError `json:"error,omitempty"`
	Text  string          `json:"text,omitempty"`
}

// TextOutput 返回执行的主要文本结果（优先主结果，否则拼接 stdout）。
func (e *Execution) TextOutput() string {
	for _, r := range e.Results {
		if r.IsMain && r.Text != "" {
			return r.Text
		}
	}
	if e.Text != "" {
		return e.Text
	}
	return strings.Join(e.Logs.Stdout, "")
}

// RunCodeOption 代码执行选项。
type RunCodeOption func(*runCodeOpts)

type runCodeOpts struct {
	language string
	envs     map[string]string
	onStdout func(msg OutputMessage)
	onStderr func(msg OutputMessage)
	onResult func(result Result)
	onError  func(err ExecutionError)
}

// WithLanguage 设置代码语言（默认 python）。
func WithLanguage(language string) RunCodeOption {
	return func(o *runCodeOpts) { o.language = language }
}

// WithRunCodeEnvs 设置代码执行的环境变量。
func WithRunCodeEnvs(envs map[string]string) RunCodeOption {
	return func(o *runCodeOpts) { o.envs = envs }
}

// WithOnCodeStdout 设置 stdout 输出回调，按输出到达顺序同步调用。
func WithOnCodeStdout(fn func(msg OutputMessage)) RunCodeOption {
	return func(o *runCodeOpts) { o.onStdout = fn }
}

// WithOnCodeStderr 设置 stderr 输出回调。
func WithOnCodeStderr(fn func(msg OutputMessage)) RunCodeOption {
	return func(o *runCodeOpts) { o.onStderr = fn }
}

// WithOnResult 设置富结果回调。
func WithOnResult(fn func(result Result)) RunCodeOption {
	return func(o *runCodeOpts) { o.onResult = fn }
}

// WithOnError 设置执行异常回调。
func WithOnError(fn func(err ExecutionError)) RunCodeOption {
	return func(o *runCodeOpts) { o.onError = fn }
}

type runCodeRequest struct {
	Code     string            `json:"code"`
	Language string            `json:"language,omitempty"`
	Envs     map[string]string `json:"env_vars,omitempty"`
}

// interpreterEvent 代码解释器事件流中的单条事件（NDJSON，每行一条）。
type interpreterEvent struct {
	Type   string          `json:"type"` // stdout | stderr | result | error | end_of_execution
	Text   string          `json:"text,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ExecutionError `json:"error,omitempty"`
}

// CodeInterpreter 提供沙箱内代码解释执行能力。
type CodeInterpreter struct {
	sandbox *Sandbox
}

// newCodeInterpreter 创建 CodeInterpreter 实例。
func newCodeInterpreter(s *Sandbox) *CodeInterpreter {
	return &CodeInterpreter{sandbox: s}
}

// RunCode 在沙箱解释器中执行代码并等待完成。
//
// 传输层失败按执行重试策略做有界重试（最多 5 次，间隔 5 秒）；
// 代码本身抛出的异常记录在 Execution.Error 中，不触发重试。
func (c *CodeInterpreter) RunCode(ctx context.Context, code string, opts ...RunCodeOption) (*Execution, error) {
	o := &runCodeOpts{language: "python"}
	for _, fn := range opts {
		fn(o)
	}
	return executeWithRetry(ctx, c.sandbox.client.runRetry, func() (*Execution, error) {
		return c.runCodeOnce(ctx, code, o)
	})
}

func (c *CodeInterpreter) runCodeOnce(ctx context.Context, code string, o *runCodeOpts) (*Execution, error) {
	body, err := json.Marshal(runCodeRequest{
		Code:     code,
		Language: o.language,
		Envs:     o.envs,
	})
	if err != nil {
		return nil, fmt.Errorf("encode run code request: %w", err)
	}

	u := c.sandbox.interpreterURL() + "/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAgentAuth(req, DefaultUser)

	resp, err := c.sandbox.client.dataClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp.StatusCode, data)
	}

	return c.decodeExecution(resp.Body, o)
}

// decodeExecution 逐行消费解释器事件流，聚合为 Execution。
// 输出片段先投递回调再累积，保证回调视图与聚合结果一致。
func (c *CodeInterpreter) decodeExecution(stream io.Reader, o *runCodeOpts) (*Execution, error) {
	execution := &Execution{}

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event interpreterEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		switch event.Type {
		case "stdout":
			execution.Logs.Stdout = append(execution.Logs.Stdout, event.Text)
			if o.onStdout != nil {
				o.onStdout(OutputMessage{Line: event.Text})
			}
		case "stderr":
			execution.Logs.Stderr = append(execution.Logs.Stderr, event.Text)
			if o.onStderr != nil {
				o.onStderr(OutputMessage{Line: event.Text, Error: true})
			}
		case "result":
			var result Result
			if err := json.Unmarshal(event.Result, &result); err != nil {
				continue
			}
			execution.Results = append(execution.Results, result)
			if o.onResult != nil {
				o.onResult(result)
			}
		case "error":
			execution.Error = event.Error
			if o.onError != nil && event.Error != nil {
				o.onError(*event.Error)
			}
		case "end_of_execution":
			execution.Text = event.Text
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read execution stream: %w", err)
	}

	return execution, nil
}
