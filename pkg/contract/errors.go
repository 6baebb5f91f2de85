package contract

import "errors"

// 领域错误分类（配合 errors.Is 使用）。
var (
	// ErrParseFailure: 标记或内嵌结构无法解析；节点级跳过，整篇损坏时为文档级失败。
	ErrParseFailure = errors.New("parse failure")
	// ErrEncodingUnsupported: 节点不符合任何已识别的编码形态，写回跳过。
	ErrEncodingUnsupported = errors.New("encoding unsupported")
	// ErrExternalCall: 外部改写调用失败或返回不可用形态；整篇降级为空输出。
	ErrExternalCall = errors.New("external call failure")
	// ErrFileIO: 源不可读或输出不可写；按文件记录，不中断批次。
	ErrFileIO = errors.New("file io")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如 token 预算、上游配额）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
