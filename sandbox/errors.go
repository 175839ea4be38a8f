package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError 表示控制面 API 返回的非预期 HTTP 响应。
// Body 保留原始响应内容，便于诊断。
type APIError struct {
	StatusCode int
	Body       []byte

	// Code 是从响应 body 中解析出的错误码（如果有）。
	Code string
	// Message 是从响应 body 中解析出的错误消息（如果有）。
	Message string
}

// Error 实现 error 接口。
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status %d, body: %s", e.StatusCode, string(e.Body))
}

// newAPIError 创建 APIError 并尝试从 JSON body 中解析结构化字段。
func newAPIError(statusCode int, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode, Body: body}
	e.Code, e.Message = parseAPIErrorBody(body)
	return e
}

// parseAPIErrorBody 尝试从 JSON body 中解析 code 和 message 字段。
func parseAPIErrorBody(body []byte) (code, message string) {
	if len(body) == 0 {
		return "", ""
	}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Code, parsed.Message
	}
	return "", ""
}

// pausingMessage 是服务端在沙箱暂停过渡期返回的错误消息标识。
// 该消息由网关定义，SDK 端需与服务端保持一致。
const pausingMessage = "sandbox is pausing"

// IsNotFound 判断错误是否为"沙箱不存在"类型。
// 沙箱被终止或因超时被服务端回收后，针对该 ID 的后续操作都会返回此类错误。
// 此类错误是终态，不会被重试。
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsPausing 判断错误是否表示沙箱正处于暂停过渡状态。
// 该状态会自行消解，Connect 路径对此类错误做有界重试。
func IsPausing(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if strings.Contains(apiErr.Message, pausingMessage) {
			return true
		}
		return strings.Contains(string(apiErr.Body), pausingMessage)
	}
	if err != nil {
		return strings.Contains(err.Error(), pausingMessage)
	}
	return false
}

// RetryExhaustedError 表示可重试操作在达到最大尝试次数后仍然失败。
// Err 保留最后一次尝试的错误。
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

// Error 实现 error 接口。
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap 返回最后一次尝试的错误。
func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// CommandExitError 表示命令执行完成但以非零状态码退出。
// 这是语义结果而非传输故障，不会被自动重试。
type CommandExitError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Error 实现 error 接口。
func (e *CommandExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command exited with code %d: %s", e.ExitCode, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("command exited with code %d", e.ExitCode)
}
