package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/openkruise/agents-sdk-go/internal/clientv2"
)

// controlPlane 抽象控制面 API，便于测试时注入 mock 实现。
// 路由由 EndpointResolver 给出的基础地址派生，SDK 不硬编码任何厂商地址。
type controlPlane interface {
	healthCheck(ctx context.Context) error
	createSandbox(ctx context.Context, body createSandboxRequest) (*apiSandbox, error)
	getSandbox(ctx context.Context, sandboxID string) (*apiSandboxDetail, error)
	deleteSandbox(ctx context.Context, sandboxID string) error
	listSandboxes(ctx context.Context, query listSandboxesQuery) (*listSandboxesResponse, error)
	pauseSandbox(ctx context.Context, sandboxID string) error
	connectSandbox(ctx context.Context, sandboxID string, body connectSandboxRequest) (*apiSandbox, error)
	setSandboxTimeout(ctx context.Context, sandboxID string, body setTimeoutRequest) error
	refreshSandbox(ctx context.Context, sandboxID string, body refreshSandboxRequest) error
}

// httpControlPlane 是 controlPlane 的 HTTP 实现。
type httpControlPlane struct {
	baseURL string
	client  clientv2.Client
}

func newHTTPControlPlane(baseURL string, client clientv2.Client) *httpControlPlane {
	return &httpControlPlane{baseURL: baseURL, client: client}
}

// doJSON 发起一次控制面请求并解码 JSON 响应。
// 非 2xx 响应转换为携带原始 body 的 APIError。
func (cp *httpControlPlane) doJSON(ctx context.Context, method, u string, body interface{}, out interface{}) error {
	params := clientv2.RequestParams{
		Context: ctx,
		Method:  method,
		Url:     u,
	}
	if body != nil {
		getBody, err := clientv2.GetJsonRequestBody(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		params.GetBody = getBody
	}

	resp, err := clientv2.Do(cp.client, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return newAPIError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

func (cp *httpControlPlane) healthCheck(ctx context.Context) error {
	return cp.doJSON(ctx, http.MethodGet, cp.baseURL+"/health", nil, nil)
}

func (cp *httpControlPlane) createSandbox(ctx context.Context, body createSandboxRequest) (*apiSandbox, error) {
	var out apiSandbox
	if err := cp.doJSON(ctx, http.MethodPost, cp.baseURL+"/sandboxes", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (cp *httpControlPlane) getSandbox(ctx context.Context, sandboxID string) (*apiSandboxDetail, error) {
	var out apiSandboxDetail
	u := cp.baseURL + "/sandboxes/" + url.PathEscape(sandboxID)
	if err := cp.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (cp *httpControlPlane) deleteSandbox(ctx context.Context, sandboxID string) error {
	u := cp.baseURL + "/sandboxes/" + url.PathEscape(sandboxID)
	return cp.doJSON(ctx, http.MethodDelete, u, nil, nil)
}

func (cp *httpControlPlane) listSandboxes(ctx context.Context, query listSandboxesQuery) (*listSandboxesResponse, error) {
	q := url.Values{}
	if query.Metadata != "" {
		q.Set("metadata", query.Metadata)
	}
	for _, s := range query.State {
		q.Add("state", string(s))
	}
	if query.NextToken != "" {
		q.Set("nextToken", query.NextToken)
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(int(query.Limit)))
	}

	u := cp.baseURL + "/sandboxes"
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}

	var out listSandboxesResponse
	if err := cp.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (cp *httpControlPlane) pauseSandbox(ctx context.Context, sandboxID string) error {
	u := cp.baseURL + "/sandboxes/" + url.PathEscape(sandboxID) + "/pause"
	return cp.doJSON(ctx, http.MethodPost, u, nil, nil)
}

func (cp *httpControlPlane) connectSandbox(ctx context.Context, sandboxID string, body connectSandboxRequest) (*apiSandbox, error) {
	var out apiSandbox
	u := cp.baseURL + "/sandboxes/" + url.PathEscape(sandboxID) + "/connect"
	if err := cp.doJSON(ctx, http.MethodPost, u, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (cp *httpControlPlane) setSandboxTimeout(ctx context.Context, sandboxID string, body setTimeoutRequest) error {
	u := cp.baseURL + "/sandboxes/" + url.PathEscape(sandboxID) + "/timeout"
	return cp.doJSON(ctx, http.MethodPost, u, body, nil)
}

func (cp *httpControlPlane) refreshSandbox(ctx context.Context, sandboxID string, body refreshSandboxRequest) error {
	u := cp.baseURL + "/sandboxes/" + url.PathEscape(sandboxID) + "/refresh"
	return cp.doJSON(ctx, http.MethodPost, u, body, nil)
}

// encodeMetadataFilter 将元数据过滤条件编码为单个 query 值（"k=v&k2=v2" 形式）。
func encodeMetadataFilter(m Metadata) string {
	if len(m) == 0 {
		return ""
	}
	v := url.Values{}
	for k, val := range m {
		v.Set(k, val)
	}
	return v.Encode()
}
