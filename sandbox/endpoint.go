package sandbox

import (
	"errors"
	"fmt"
)

// GatewayPrefix 是自建部署网关的路由前缀，用于区分控制面 API 和沙箱数据面流量。
const GatewayPrefix = "kruise"

// ErrMissingDomain 表示配置中缺少必填的域名。
var ErrMissingDomain = errors.New("sandbox: domain is required")

// EndpointResolver 根据部署形态解析控制面 API 地址和数据面端口路由。
//
// 两种实现由 Config 在客户端构造时选择：
//   - 自建部署（gatewayResolver）：所有流量经过网关前缀路由；
//   - 公有服务（vendorResolver）：使用服务商默认的子域名路由。
//
// 解析是纯配置函数，不发起网络请求。
type EndpointResolver interface {
	// APIURL 返回控制面 API 的基础地址，用于创建/查询/暂停/终止等调用。
	APIURL() string

	// PortHost 返回访问沙箱指定端口的 host（不含 scheme）。
	PortHost(sandboxID string, port int) string

	// Scheme 返回数据面访问使用的 scheme（http 或 https）。
	Scheme() string
}

// gatewayResolver 解析自建部署的端点。
//
// 路由规则：
//
//	API:  {scheme}://{domain}/kruise/api
//	端口: {domain}/kruise/{sandboxID}/{port}
type gatewayResolver struct {
	domain string
	secure bool
}

func newGatewayResolver(domain string, secure bool) (*gatewayResolver, error) {
	if domain == "" {
		return nil, ErrMissingDomain
	}
	return &gatewayResolver{domain: domain, secure: secure}, nil
}

func (r *gatewayResolver) Scheme() string {
	if r.secure {
		return "https"
	}
	return "http"
}

func (r *gatewayResolver) APIURL() string {
	return fmt.Sprintf("%s://%s/%s/api", r.Scheme(), r.domain, GatewayPrefix)
}

func (r *gatewayResolver) PortHost(sandboxID string, port int) string {
	return fmt.Sprintf("%s/%s/%s/%d", r.domain, GatewayPrefix, sandboxID, port)
}

// vendorResolver 解析公有服务的端点。
//
// 路由规则（与 e2b 兼容）：
//
//	API:  https://api.{domain}
//	端口: {port}-{sandboxID}.{domain}
type vendorResolver struct {
	domain string
}

func newVendorResolver(domain string) (*vendorResolver, error) {
	if domain == "" {
		return nil, ErrMissingDomain
	}
	return &vendorResolver{domain: domain}, nil
}

func (r *vendorResolver) Scheme() string { return "https" }

func (r *vendorResolver) APIURL() string {
	return fmt.Sprintf("https://api.%s", r.domain)
}

func (r *vendorResolver) PortHost(sandboxID string, port int) string {
	return fmt.Sprintf("%d-%s.%s", port, sandboxID, r.domain)
}
