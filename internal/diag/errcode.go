package diag

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"llmxml/pkg/contract"
)

// Code 是日志与指标里的错误分类，与退出码无关。
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeNetwork       Code = "network"
	CodeProtocol      Code = "protocol"
	CodeInvariant     Code = "invariant"
	CodeBudget        Code = "budget"
	CodeCancel        Code = "cancel"
	CodeIO            Code = "io"
	CodeParse         Code = "parse"
	CodeUnsupported   Code = "encoding_unsupported"
	CodeExternal      Code = "external"
	CodeCountMismatch Code = "count_mismatch"
)

// rule 按顺序匹配，首个命中即返回。
type rule struct {
	code  Code
	match func(error) bool
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

func upstreamStatus(err error) int {
	var u contract.UpstreamError
	if errors.As(err, &u) {
		return u.UpstreamStatus()
	}
	return 0
}

var rules = []rule{
	{CodeCancel, is(context.Canceled, context.DeadlineExceeded)},
	{CodeBudget, is(contract.ErrBudgetExceeded, contract.ErrRateLimited)},
	{CodeBudget, func(err error) bool { return upstreamStatus(err) == http.StatusTooManyRequests }},
	{CodeProtocol, is(contract.ErrResponseInvalid)},
	{CodeParse, is(contract.ErrParseFailure)},
	{CodeUnsupported, is(contract.ErrEncodingUnsupported)},
	{CodeInvariant, is(contract.ErrInvariantViolation, contract.ErrInvalidInput, contract.ErrPathInvalid)},
	{CodeIO, func(err error) bool {
		var pe *os.PathError
		return errors.Is(err, contract.ErrFileIO) || errors.As(err, &pe)
	}},
	{CodeNetwork, func(err error) bool {
		if upstreamStatus(err) >= 500 {
			return true
		}
		var ne net.Error
		return errors.As(err, &ne)
	}},
	{CodeExternal, is(contract.ErrExternalCall)},
}

// Classify 只看哨兵错误与错误类型，不匹配消息文本。
// 外部调用失败先归到具体原因，最后才是 external。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	for _, r := range rules {
		if r.match(err) {
			return r.code
		}
	}
	return CodeUnknown
}
