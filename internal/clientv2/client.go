package clientv2

import (
	"errors"
	"net/http"
	"sort"
)

type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

type Handler func(req *http.Request) (*http.Response, error)

type client struct {
	coreClient   Client
	interceptors []Interceptor
}

func NewClient(cli Client, interceptors ...Interceptor) Client {
	if cli == nil {
		cli = http.DefaultClient
	}

	var is interceptorList = interceptors
	is = append(is, newDefaultHeaderInterceptor())
	is = append(is, newDebugInterceptor())
	sort.Sort(is)

	// 反转
	for i, j := 0, len(is)-1; i < j; i, j = i+1, j-1 {
		is[i], is[j] = is[j], is[i]
	}

	return &client{
		coreClient:   cli,
		interceptors: is,
	}
}

func (c *client) Do(req *http.Request) (*http.Response, error) {
	handler := func(req *http.Request) (*http.Response, error) {
		return c.coreClient.Do(req)
	}

	interceptors := c.interceptors
	for _, interceptor := range interceptors {
		h := handler
		i := interceptor
		handler = func(r *http.Request) (*http.Response, error) {
			return i.Intercept(r, h)
		}
	}

	return handleResponse(handler(req))
}

// Do 根据 options 构造请求并通过 c 发送。
// 非 2xx 的响应原样返回，状态码的语义判定由调用方负责。
func Do(c Client, options RequestParams) (*http.Response, error) {
	req, err := NewRequest(options)
	if err != nil {
		return nil, err
	}

	return handleResponse(c.Do(req))
}

func handleResponse(resp *http.Response, err error) (*http.Response, error) {
	if err != nil {
		return resp, err
	}

	if resp == nil {
		return nil, errors.New("clientv2: no response")
	}

	return resp, nil
}
