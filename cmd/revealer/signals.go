//go:build !windows

package main

import (
	"os"
	"syscall"
)

// stopSignals: 触发优雅退出（取消运行 ctx）的信号。
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
