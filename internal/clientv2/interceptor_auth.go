package clientv2

import (
	"net/http"
)

// apiKeyInterceptor 在请求头中携带 API 密钥完成身份认证。
type apiKeyInterceptor struct {
	header string
	key    string
}

func NewAPIKeyInterceptor(header, key string) Interceptor {
	return &apiKeyInterceptor{
		header: header,
		key:    key,
	}
}

func (interceptor *apiKeyInterceptor) Priority() InterceptorPriority {
	return InterceptorPriorityAuth
}

func (interceptor *apiKeyInterceptor) Intercept(req *http.Request, handler Handler) (*http.Response, error) {
	if interceptor == nil || req == nil {
		return handler(req)
	}

	if interceptor.key != "" && req.Header.Get(interceptor.header) == "" {
		req.Header.Set(interceptor.header, interceptor.key)
	}

	return handler(req)
}
