package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/9triver/fornax/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Config 监控进程配置
type Config struct {
	Duration time.Duration // 监控总时长，从 Run 被调用时起算
	Interval time.Duration // 采样间隔
}

// Monitor 周期性采样系统指标并打印时间戳行
// 作为独立进程运行，采样退化或整个监控缺失都不影响负载本身
type Monitor struct {
	cfg     Config
	sampler metrics.Sampler
	out     io.Writer

	warnedOnce bool // 采样失败只告警一次，降级行每个周期照常打印
}

// New 创建监控器
func New(cfg Config, sampler metrics.Sampler, out io.Writer) *Monitor {
	return &Monitor{cfg: cfg, sampler: sampler, out: out}
}

// Run 执行监控主循环，返回实际完成的采样次数
// 到达时长上限或上下文被取消时返回，先打印后休眠，第一条样本在启动时立即产生
func (m *Monitor) Run(ctx context.Context) int {
	logrus.Infof("Monitor started: interval %v, duration %v", m.cfg.Interval, m.cfg.Duration)

	end := time.Now().Add(m.cfg.Duration)
	samples := 0

	for ctx.Err() == nil && time.Now().Before(end) {
		m.printSample(ctx)
		samples++

		remaining := time.Until(end)
		if remaining <= 0 {
			break
		}
		wait := m.cfg.Interval
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}

	logrus.Infof("Monitor stopped after %d samples", samples)
	return samples
}

// printSample 采集并打印一行指标，采样失败时打印降级行
func (m *Monitor) printSample(ctx context.Context) {
	ts := time.Now().Format("15:04:05")

	snap, err := m.sampler.Sample(ctx)
	if err != nil {
		if !m.warnedOnce {
			logrus.Warnf("System metrics unavailable, monitor output degraded: %v", err)
			m.warnedOnce = true
		}
		fmt.Fprintf(m.out, "[%s] system metrics unavailable\n", ts)
		return
	}

	fmt.Fprintf(m.out, "[%s] CPU%%: %.1f | Mem: %.1f%% (%dMB/%dMB) | load1:%.2f\n",
		ts, snap.CPUPercent, snap.MemoryPercent,
		snap.MemoryUsed/1024/1024, snap.MemoryTotal/1024/1024, snap.Load1)
}
