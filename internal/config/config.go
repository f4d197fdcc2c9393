package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config 运行配置
// 一次负载运行所需的全部参数，运行开始后不再修改
type Config struct {
	DurationSeconds        int     `yaml:"duration_seconds"`         // e.g., 30 - total load duration
	Workers                int     `yaml:"workers"`                  // e.g., 7 - CPU worker processes, default NumCPU-1
	MatrixSize             int     `yaml:"matrix_size"`              // e.g., 800 - square matrix edge for CPU workers
	GPU                    bool    `yaml:"gpu"`                      // e.g., true - spawn one GPU worker per detected device
	GPUMatrixSize          int     `yaml:"gpu_matrix_size"`          // e.g., 4096 - square matrix edge for GPU workers
	MonitorIntervalSeconds float64 `yaml:"monitor_interval_seconds"` // e.g., 2.0 - monitor sampling interval
	SpawnStaggerMillis     int     `yaml:"spawn_stagger_ms"`         // e.g., 100 - delay between child launches
	GracePeriodSeconds     int     `yaml:"grace_period_seconds"`     // e.g., 2 - per-worker join timeout while draining
	LogDir                 string  `yaml:"log_dir"`                  // e.g., "./logs" - mirror logs into a file when set
}

// Duration 负载总时长
func (c *Config) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// MonitorInterval 监控采样间隔
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSeconds * float64(time.Second))
}

// SpawnStagger 子进程启动间隔
func (c *Config) SpawnStagger() time.Duration {
	return time.Duration(c.SpawnStaggerMillis) * time.Millisecond
}

// GracePeriod 排空阶段每个 worker 的等待上限
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate 校验配置项取值
// duration_seconds 允许为 0（立即到期，用于冒烟验证）
func (c *Config) Validate() error {
	if c.DurationSeconds < 0 {
		return fmt.Errorf("duration_seconds must not be negative, got %d", c.DurationSeconds)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MatrixSize < 1 {
		return fmt.Errorf("matrix_size must be at least 1, got %d", c.MatrixSize)
	}
	if c.GPUMatrixSize < 1 {
		return fmt.Errorf("gpu_matrix_size must be at least 1, got %d", c.GPUMatrixSize)
	}
	if c.MonitorIntervalSeconds <= 0 {
		return fmt.Errorf("monitor_interval_seconds must be positive, got %g", c.MonitorIntervalSeconds)
	}
	if c.SpawnStaggerMillis < 0 {
		return fmt.Errorf("spawn_stagger_ms must not be negative, got %d", c.SpawnStaggerMillis)
	}
	if c.GracePeriodSeconds < 0 {
		return fmt.Errorf("grace_period_seconds must not be negative, got %d", c.GracePeriodSeconds)
	}
	return nil
}

// DefaultWorkers 默认 CPU worker 数量（保留一个核心给系统和监控）
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}
