package runner

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/9triver/fornax/internal/monitor"
	"github.com/9triver/fornax/internal/worker"
)

// 子进程契约使用的环境变量
// 监督进程写入，子进程入口读取，数值全部按十进制字符串传递，
// 截止时间按 Unix 纳秒时间戳传值，子进程用本地时钟独立判断
const (
	EnvRole       = "FORNAX_ROLE"
	EnvRunID      = "FORNAX_RUN_ID"
	EnvKind       = "FORNAX_WORKER_KIND"
	EnvIndex      = "FORNAX_WORKER_INDEX"
	EnvMatrixSize = "FORNAX_MATRIX_SIZE"
	EnvDeadline   = "FORNAX_DEADLINE_UNIX_NANO"
	EnvDevice     = "FORNAX_DEVICE_INDEX"

	EnvMonitorDurationMS = "FORNAX_MONITOR_DURATION_MS"
	EnvMonitorIntervalMS = "FORNAX_MONITOR_INTERVAL_MS"
)

// 角色取值，未设置时按监督进程运行
const (
	RoleWorker  = "worker"
	RoleMonitor = "monitor"
)

// WorkerParamsFromEnv 从子进程环境解析 worker 运行参数
func WorkerParamsFromEnv() (worker.Params, error) {
	p := worker.Params{RunID: os.Getenv(EnvRunID)}

	kind := worker.Kind(os.Getenv(EnvKind))
	switch kind {
	case worker.KindCPU, worker.KindGPU:
		p.Kind = kind
	default:
		return p, fmt.Errorf("%s: invalid worker kind %q", EnvKind, kind)
	}

	index, err := envInt(EnvIndex, 0)
	if err != nil {
		return p, err
	}
	p.Index = index

	size, err := envInt(EnvMatrixSize, 1)
	if err != nil {
		return p, err
	}
	p.Size = size

	raw := os.Getenv(EnvDeadline)
	if raw == "" {
		return p, fmt.Errorf("%s is not set", EnvDeadline)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return p, fmt.Errorf("%s: %w", EnvDeadline, err)
	}
	p.Deadline = time.Unix(0, nanos)

	// 设备序号仅 GPU worker 需要，缺省为 0
	if os.Getenv(EnvDevice) != "" {
		device, err := envInt(EnvDevice, 0)
		if err != nil {
			return p, err
		}
		p.Device = device
	}

	return p, nil
}

// MonitorConfigFromEnv 从子进程环境解析监控配置
func MonitorConfigFromEnv() (monitor.Config, error) {
	cfg := monitor.Config{}

	durationMS, err := envInt(EnvMonitorDurationMS, 0)
	if err != nil {
		return cfg, err
	}
	cfg.Duration = time.Duration(durationMS) * time.Millisecond

	intervalMS, err := envInt(EnvMonitorIntervalMS, 1)
	if err != nil {
		return cfg, err
	}
	cfg.Interval = time.Duration(intervalMS) * time.Millisecond

	return cfg, nil
}

func envInt(name string, minValue int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is not set", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if v < minValue {
		return 0, fmt.Errorf("%s must be at least %d, got %d", name, minValue, v)
	}
	return v, nil
}
