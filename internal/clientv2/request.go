package clientv2

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	RequestMethodGet    = http.MethodGet
	RequestMethodPut    = http.MethodPut
	RequestMethodPost   = http.MethodPost
	RequestMethodHead   = http.MethodHead
	RequestMethodDelete = http.MethodDelete
)

type GetRequestBody func(options *RequestParams) (io.ReadCloser, error)

func GetJsonRequestBody(object interface{}) (GetRequestBody, error) {
	reqBody, err := json.Marshal(object)
	if err != nil {
		return nil, err
	}
	return func(o *RequestParams) (io.ReadCloser, error) {
		o.Header.Set("Content-Type", "application/json")
		return io.NopCloser(bytes.NewReader(reqBody)), nil
	}, nil
}

func GetFormRequestBody(info map[string][]string) GetRequestBody {
	body := url.Values(info).Encode()
	return func(o *RequestParams) (io.ReadCloser, error) {
		o.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

type RequestParams struct {
	Context context.Context
	Method  string
	Url     string
	Header  http.Header
	GetBody GetRequestBody
}

func (o *RequestParams) init() {
	if o.Context == nil {
		o.Context = context.Background()
	}

	if len(o.Method) == 0 {
		o.Method = RequestMethodGet
	}

	if o.Header == nil {
		o.Header = http.Header{}
	}

	if o.GetBody == nil {
		o.GetBody = func(options *RequestParams) (io.ReadCloser, error) {
			return nil, nil
		}
	}
}

func NewRequest(options RequestParams) (req *http.Request, err error) {
	options.init()

	body, err := options.GetBody(&options)
	if err != nil {
		return nil, err
	}
	req, err = http.NewRequestWithContext(options.Context, options.Method, options.Url, body)
	if err != nil {
		return
	}
	req.Header = options.Header
	if options.GetBody != nil && body != nil && body != http.NoBody {
		req.GetBody = func() (io.ReadCloser, error) {
			return options.GetBody(&options)
		}
	}
	return
}
