package gee

// ErrorResponse 所有 4xx/5xx 的 JSON 体
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestId string `json:"request_id"` // ReqID 中间件没装时为空
}

func NewErrorResponse(c *Context, code int, message string) ErrorResponse {
	return ErrorResponse{Code: code, Message: message, RequestId: c.Req.Header.Get("X-Request-ID")}
}
