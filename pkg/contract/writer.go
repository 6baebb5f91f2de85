package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件标识（相对路径或对象键），与 FileID 同一表示。
type ArtifactID = FileID

// Writer: 将输出文档与清单持久化到目标介质（文件系统/对象存储）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改业务内容；
//  3. ctx 取消/超时需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
