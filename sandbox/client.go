package sandbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openkruise/agents-sdk-go/internal/clientv2"
	"github.com/openkruise/agents-sdk-go/internal/configfile"
	"github.com/openkruise/agents-sdk-go/internal/env"
)

// apiKeyHeader 是控制面身份认证使用的请求头。
const apiKeyHeader = "X-API-Key"

// defaultRequestTimeout 是控制面单次 HTTP 请求的默认超时。
// 数据面的流式请求不受此限制，由调用方通过 context 控制。
const defaultRequestTimeout = 30 * time.Second

var validate = validator.New()

// Config 是沙箱客户端的配置。
// 未显式给出的字段依次从环境变量、配置文件回填。
type Config struct {
	// APIKey 是用于身份认证的 API 密钥（必填）。
	APIKey string

	// Domain 是沙箱服务的域名（必填）。
	// 自建部署时为网关域名；公有服务时为服务商域名。
	Domain string

	// Public 使用公有服务的子域名路由而非自建网关路由。
	Public bool

	// Secure 是否使用 HTTPS 访问自建网关（可选，默认 true）。
	// 设为 false 时网关以 HTTP 提供服务，同时跳过 TLS 证书校验，
	// 以兼容未配置可信证书的自建部署。
	Secure *bool

	// RequestTimeout 控制面单次请求的超时时间（可选，默认 30 秒）。
	RequestTimeout time.Duration

	// HTTPClient 自定义 HTTP 客户端（可选）。
	// 指定后 Secure=false 不再修改其传输层配置。
	HTTPClient *http.Client
}

// configForValidation 是 Config 回填完成后参与校验的快照。
type configForValidation struct {
	APIKey string `validate:"required"`
	Domain string `validate:"required"`
}

// Client 是沙箱 SDK 的高级客户端。
type Client struct {
	config   *Config
	resolver EndpointResolver
	api      controlPlane

	// dataClient 用于数据面访问（命令执行、代码执行、文件传输）。
	// 不设置整体超时，流式响应的生命周期由 context 控制。
	dataClient *http.Client

	connectRetry RetryPolicy
	runRetry     RetryPolicy
}

// NewClient 创建一个新的沙箱客户端。
// APIKey 和 Domain 缺失时返回配置错误，这类错误不会被任何路径重试。
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	applyDefaults(&cfg)

	if err := validate.Struct(configForValidation{APIKey: cfg.APIKey, Domain: cfg.Domain}); err != nil {
		return nil, fmt.Errorf("sandbox: invalid config: %w", err)
	}

	secure := cfg.Secure == nil || *cfg.Secure

	var resolver EndpointResolver
	var err error
	if cfg.Public {
		resolver, err = newVendorResolver(cfg.Domain)
	} else {
		resolver, err = newGatewayResolver(cfg.Domain, secure)
	}
	if err != nil {
		return nil, err
	}

	dataClient := cfg.HTTPClient
	if dataClient == nil {
		transport := http.DefaultTransport
		if !secure {
			// 非安全模式下自建网关不提供可信证书，跳过校验。
			transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
		dataClient = &http.Client{Transport: transport}
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	apiHTTPClient := &http.Client{
		Transport: dataClient.Transport,
		Timeout:   requestTimeout,
	}
	apiClient := clientv2.NewClient(apiHTTPClient,
		clientv2.NewAPIKeyInterceptor(apiKeyHeader, cfg.APIKey))

	return &Client{
		config:       &cfg,
		resolver:     resolver,
		api:          newHTTPControlPlane(resolver.APIURL(), apiClient),
		dataClient:   dataClient,
		connectRetry: defaultConnectRetryPolicy(),
		runRetry:     defaultRunRetryPolicy(),
	}, nil
}

// applyDefaults 按 显式配置 → 环境变量 → 配置文件 的顺序回填缺失字段。
func applyDefaults(cfg *Config) {
	if cfg.APIKey == "" {
		cfg.APIKey = env.APIKeyFromEnvironment()
	}
	if cfg.Domain == "" {
		cfg.Domain = env.DomainFromEnvironment()
	}
	if cfg.Secure == nil {
		if disabled, ok := env.DisableSecureProtocolFromEnvironment(); ok {
			secure := !disabled
			cfg.Secure = &secure
		}
	}

	if cfg.APIKey == "" || cfg.Domain == "" || cfg.Secure == nil {
		profile, err := configfile.Load()
		if err == nil && profile != nil {
			if cfg.APIKey == "" {
				cfg.APIKey = profile.APIKey
			}
			if cfg.Domain == "" {
				cfg.Domain = profile.Domain
			}
			if cfg.Secure == nil && profile.DisableSecureProtocol {
				secure := false
				cfg.Secure = &secure
			}
		}
	}
}

// Endpoint 返回客户端使用的端点解析器。
func (c *Client) Endpoint() EndpointResolver {
	return c.resolver
}

// HealthCheck 对控制面 API 执行健康检查。
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.api.healthCheck(ctx)
}
