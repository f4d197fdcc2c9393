package worker

import (
	"fmt"
	"time"
)

// Kind worker 种类
type Kind string

const (
	KindCPU Kind = "cpu" // CPU 矩阵乘法 worker
	KindGPU Kind = "gpu" // GPU 矩阵乘法 worker
)

// Label 返回用于终端输出的种类名称
func (k Kind) Label() string {
	switch k {
	case KindCPU:
		return "CPU"
	case KindGPU:
		return "GPU"
	default:
		return string(k)
	}
}

// Params 单个 worker 进程的运行参数，由监督进程通过环境变量传入
type Params struct {
	Kind     Kind
	Index    int       // worker 序号，从 0 开始
	Size     int       // 方阵边长
	Deadline time.Time // 绝对截止时间，每个进程用本地时钟独立判断
	Device   int       // GPU 设备序号，仅 KindGPU 使用
	RunID    string    // 本次运行 ID，仅用于日志关联
}

// Report worker 退出时的迭代报告
// 只通过子进程的标准输出上报，监督进程不做结构化回收
type Report struct {
	Kind       Kind
	Index      int
	Iterations int
}

func (r *Report) String() string {
	return fmt.Sprintf("[%s worker %d] finished, iterations: %d", r.Kind.Label(), r.Index, r.Iterations)
}
