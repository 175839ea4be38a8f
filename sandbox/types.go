package sandbox

import (
	"time"
)

// ---------------------------------------------------------------------------
// SDK 自有类型
// ---------------------------------------------------------------------------

// Metadata 沙箱自定义元数据（key-value）。
// SDK 不解释其内容，仅透传给服务端并用于 List 查询过滤。
type Metadata map[string]string

// SandboxState 沙箱状态。
type SandboxState string

// 沙箱状态常量。状态由服务端裁定，SDK 只观测。
// 沙箱被终止或超时回收后，针对其 ID 的操作返回 not-found，不再有状态可观测。
const (
	StateRunning SandboxState = "running"
	StatePausing SandboxState = "pausing"
	StatePaused  SandboxState = "paused"
)

// CreateParams 创建沙箱的请求参数。
type CreateParams struct {
	// TemplateID 模板 ID（必填），决定沙箱的执行镜像。
	TemplateID string `validate:"required"`

	// Timeout 沙箱空闲超时时间（秒），可选。超时由服务端强制执行。
	Timeout *int32

	// AutoPause 超时后自动暂停而非销毁，可选。
	AutoPause *bool

	// EnvVars 环境变量，可选。
	EnvVars map[string]string

	// Metadata 自定义元数据，可选。
	Metadata Metadata

	// AllowInternetAccess 允许沙箱访问互联网，可选。
	AllowInternetAccess *bool
}

// ConnectParams 连接沙箱的请求参数。
type ConnectParams struct {
	// Timeout 重置后的空闲超时时间（秒），可选。
	Timeout *int32
}

// RefreshParams 延长沙箱存活时间的请求参数。
type RefreshParams struct {
	// Duration 延长的秒数，可选。
	Duration *int
}

// Query 列出沙箱的过滤条件。
type Query struct {
	// Metadata 按元数据逐键相等匹配。
	Metadata Metadata

	// State 按一个或多个状态过滤。
	State []SandboxState
}

// SandboxInfo 沙箱详细信息。
type SandboxInfo struct {
	SandboxID  string
	TemplateID string
	Alias      *string
	Domain     *string
	State      SandboxState
	CPUCount   int32
	MemoryMB   int32
	StartedAt  time.Time
	EndAt      time.Time
	Metadata   Metadata
}

// ---------------------------------------------------------------------------
// 控制面 wire 类型
// ---------------------------------------------------------------------------

type apiSandbox struct {
	SandboxID   string  `json:"sandboxID"`
	TemplateID  string  `json:"templateID"`
	Alias       *string `json:"alias,omitempty"`
	Domain      *string `json:"domain,omitempty"`
	AccessToken *string `json:"accessToken,omitempty"`
}

type apiSandboxDetail struct {
	SandboxID  string            `json:"sandboxID"`
	TemplateID string            `json:"templateID"`
	Alias      *string           `json:"alias,omitempty"`
	Domain     *string           `json:"domain,omitempty"`
	State      string            `json:"state"`
	CPUCount   int32             `json:"cpuCount,omitempty"`
	MemoryMB   int32             `json:"memoryMB,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	EndAt      time.Time         `json:"endAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type createSandboxRequest struct {
	TemplateID          string            `json:"templateID"`
	Timeout             *int32            `json:"timeout,omitempty"`
	AutoPause           *bool             `json:"autoPause,omitempty"`
	EnvVars             map[string]string `json:"envVars,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	AllowInternetAccess *bool             `json:"allowInternetAccess,omitempty"`
}

type connectSandboxRequest struct {
	Timeout *int32 `json:"timeout,omitempty"`
}

type setTimeoutRequest struct {
	Timeout int32 `json:"timeout"`
}

type refreshSandboxRequest struct {
	Duration *int `json:"duration,omitempty"`
}

type listSandboxesQuery struct {
	// Metadata 以 URL query 形式编码的元数据过滤（如 "user=abc&app=prod"）。
	Metadata string
	// State 状态过滤。
	State []SandboxState
	// NextToken 分页游标。
	NextToken string
	// Limit 每页最大返回数。
	Limit int32
}

type listSandboxesResponse struct {
	Sandboxes []apiSandboxDetail `json:"sandboxes"`
	NextToken *string            `json:"nextToken,omitempty"`
}

// ---------------------------------------------------------------------------
// 转换函数 — wire → SDK
// ---------------------------------------------------------------------------

func sandboxInfoFromAPI(d *apiSandboxDetail) *SandboxInfo {
	if d == nil {
		return nil
	}
	info := &SandboxInfo{
		SandboxID:  d.SandboxID,
		TemplateID: d.TemplateID,
		Alias:      d.Alias,
		Domain:     d.Domain,
		State:      SandboxState(d.State),
		CPUCount:   d.CPUCount,
		MemoryMB:   d.MemoryMB,
		StartedAt:  d.StartedAt,
		EndAt:      d.EndAt,
	}
	if d.Metadata != nil {
		info.Metadata = Metadata(d.Metadata)
	}
	return info
}

func sandboxInfosFromAPI(details []apiSandboxDetail) []SandboxInfo {
	if details == nil {
		return nil
	}
	result := make([]SandboxInfo, len(details))
	for i := range details {
		result[i] = *sandboxInfoFromAPI(&details[i])
	}
	return result
}

// ---------------------------------------------------------------------------
// 转换函数 — SDK → wire
// ---------------------------------------------------------------------------

func (p *CreateParams) toAPI() createSandboxRequest {
	return createSandboxRequest{
		TemplateID:          p.TemplateID,
		Timeout:             p.Timeout,
		AutoPause:           p.AutoPause,
		EnvVars:             p.EnvVars,
		Metadata:            p.Metadata,
		AllowInternetAccess: p.AllowInternetAccess,
	}
}

func (p *ConnectParams) toAPI() connectSandboxRequest {
	if p == nil {
		return connectSandboxRequest{}
	}
	return connectSandboxRequest{Timeout: p.Timeout}
}

func (p *RefreshParams) toAPI() refreshSandboxRequest {
	if p == nil {
		return refreshSandboxRequest{}
	}
	return refreshSandboxRequest{Duration: p.Duration}
}
