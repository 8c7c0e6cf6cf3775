//go:build windows

package main

import "os"

// Windows 仅支持 Ctrl+C 中断。
var stopSignals = []os.Signal{os.Interrupt}
