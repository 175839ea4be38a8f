package clientv2

import (
	"fmt"
	"net/http"
	"runtime"
)

// sdkVersion 随 SDK 版本发布更新。
const sdkVersion = "0.1.0"

type defaultHeaderInterceptor struct {
}

func newDefaultHeaderInterceptor() Interceptor {
	return &defaultHeaderInterceptor{}
}

func (interceptor *defaultHeaderInterceptor) Priority() InterceptorPriority {
	return InterceptorPrioritySetHeader
}

func (interceptor *defaultHeaderInterceptor) Intercept(req *http.Request, handler Handler) (*http.Response, error) {
	if req != nil && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent",
			fmt.Sprintf("agents-sdk-go/%s (%s; %s; %s)", sdkVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH))
	}
	return handler(req)
}
