package contract

// UpstreamError 承载上游 API 错误的最小诊断信息（状态码 + 简短消息）。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
