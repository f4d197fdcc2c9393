package gpu

import (
	"errors"
)

// ErrUnavailable GPU 运行时不可用（缺少驱动、库或未启用 cuda 构建）
var ErrUnavailable = errors.New("gpu runtime not available")

// Device GPU 设备信息
type Device struct {
	Index  int    // 设备序号，同时用作 worker 序号
	Name   string // e.g., "NVIDIA GeForce RTX 4090"
	Memory uint64 // 显存总量（字节）
}

// Detect 探测可用的 GPU 设备
// 需要同时满足：二进制启用了 cuda 构建、NVML 库可加载、驱动正常
// 探测失败只代表能力缺失，由调用方降级处理，不应视为致命错误
func Detect() ([]Device, error) {
	if !runtimeCompiled {
		return nil, ErrUnavailable
	}
	return detect()
}
