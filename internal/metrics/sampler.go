package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot 单次系统指标采样结果
type Snapshot struct {
	CPUPercent    float64 // 全系统 CPU 使用率，所有核心合并
	MemoryPercent float64 // 内存使用率
	MemoryUsed    uint64  // 已用内存（字节）
	MemoryTotal   uint64  // 总内存（字节）
	Load1         float64 // 1 分钟平均负载
}

// Sampler 系统指标采样接口
// 采样失败返回错误，由调用方决定降级方式，不应导致运行失败
type Sampler interface {
	Sample(ctx context.Context) (*Snapshot, error)
}

// SystemSampler 基于 gopsutil 的系统指标采样实现
// CPU 使用率为相对上一次采样的增量值，进程内第一次调用返回 0
type SystemSampler struct{}

// NewSystemSampler 创建系统指标采样器
func NewSystemSampler() *SystemSampler {
	return &SystemSampler{}
}

// Sample 采集一次 CPU、内存和负载指标
func (s *SystemSampler) Sample(ctx context.Context) (*Snapshot, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("sample cpu: %w", err)
	}
	if len(percents) == 0 {
		return nil, fmt.Errorf("sample cpu: no data")
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample memory: %w", err)
	}

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample load: %w", err)
	}

	return &Snapshot{
		CPUPercent:    percents[0],
		MemoryPercent: vm.UsedPercent,
		MemoryUsed:    vm.Used,
		MemoryTotal:   vm.Total,
		Load1:         avg.Load1,
	}, nil
}
