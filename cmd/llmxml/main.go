package main

import (
	"os"
)

// 退出码
const (
	exitOK      = 0
	exitRun     = 1 // 运行级失败（读取器/清单写出/取消）
	exitPartial = 2 // 运行完成但有文件失败
	exitConfig  = 3 // 配置/装配失败
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 执行一次 CLI 调用并返回退出码。
func run(args []string) int {
	code := exitOK
	cmd := newRootCmd(&code)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		// cobra 的用法错误（未知旗标等）
		if code == exitOK {
			code = exitConfig
		}
	}
	return code
}
