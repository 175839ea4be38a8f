package clientv2

import (
	"fmt"
	"net/http"
	"net/http/httputil"

	"github.com/openkruise/agents-sdk-go/internal/log"
)

var (
	printRequest        *bool = nil
	printRequestDetail  *bool = nil
	printResponse       *bool = nil
	printResponseDetail *bool = nil
)

func PrintRequest(isPrint bool) {
	printRequest = &isPrint
}

func IsPrintRequest() bool {
	if printRequest != nil {
		return *printRequest
	}
	return false
}

func PrintRequestDetail(isPrint bool) {
	printRequestDetail = &isPrint
}

func IsPrintRequestDetail() bool {
	if printRequestDetail != nil {
		return *printRequestDetail
	}
	return false
}

func PrintResponse(isPrint bool) {
	printResponse = &isPrint
}

func IsPrintResponse() bool {
	if printResponse != nil {
		return *printResponse
	}
	return false
}

func PrintResponseDetail(isPrint bool) {
	printResponseDetail = &isPrint
}

func IsPrintResponseDetail() bool {
	if printResponseDetail != nil {
		return *printResponseDetail
	}
	return false
}

type debugInterceptor struct {
}

func newDebugInterceptor() Interceptor {
	return &debugInterceptor{}
}

func (r *debugInterceptor) Priority() InterceptorPriority {
	return InterceptorPriorityDebug
}

func (r *debugInterceptor) Intercept(req *http.Request, handler Handler) (*http.Response, error) {
	label := r.requestLabel(req)

	if e := r.printRequest(label, req); e != nil {
		return nil, e
	}

	resp, err := handler(req)

	if e := r.printResponse(label, resp); e != nil {
		return nil, e
	}

	return resp, err
}

func (r *debugInterceptor) requestLabel(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return fmt.Sprintf("Url:%s", req.URL.String())
}

func (r *debugInterceptor) printRequest(label string, req *http.Request) error {
	printReq := IsPrintRequest()
	printReqDetail := IsPrintRequestDetail()
	if !printReq && !printReqDetail {
		return nil
	}

	info := label + " request:\n"
	i, dErr := httputil.DumpRequest(req, printReqDetail)
	if dErr != nil {
		return dErr
	}
	info += string(i) + "\n"

	log.Debug(info)
	return nil
}

func (r *debugInterceptor) printResponse(label string, resp *http.Response) error {
	if resp == nil {
		return nil
	}

	printResp := IsPrintResponse()
	printRespDetail := IsPrintResponseDetail()
	if !printResp && !printRespDetail {
		return nil
	}

	info := label + " response:\n"
	i, dErr := httputil.DumpResponse(resp, printRespDetail)
	if dErr != nil {
		return dErr
	}
	info += string(i) + "\n"

	log.Debug(info)
	return nil
}
