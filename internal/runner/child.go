package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/9triver/fornax/internal/metrics"
	"github.com/9triver/fornax/internal/monitor"
	"github.com/9triver/fornax/internal/util"
	"github.com/9triver/fornax/internal/worker"
	"github.com/sirupsen/logrus"
)

// WorkerMain worker 子进程入口：解析环境变量，循环计算到截止时间
// SIGTERM 提前结束循环，报告仍会打印；返回进程退出码
func WorkerMain() int {
	util.InitLogger()

	p, err := WorkerParamsFromEnv()
	if err != nil {
		logrus.Errorf("Invalid worker environment: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logrus.Debugf("%s worker %d starting: matrix %d, deadline %s, run %s",
		p.Kind.Label(), p.Index, p.Size, p.Deadline.Format(time.TimeOnly), p.RunID)

	switch p.Kind {
	case worker.KindGPU:
		worker.RunGPU(ctx, p, os.Stdout)
	default:
		worker.RunCompute(ctx, p, os.Stdout)
	}
	return 0
}

// MonitorMain 监控子进程入口：按间隔采样系统指标直到时长耗尽
// SIGTERM 立即结束；返回进程退出码
func MonitorMain() int {
	util.InitLogger()

	cfg, err := MonitorConfigFromEnv()
	if err != nil {
		logrus.Errorf("Invalid monitor environment: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := monitor.New(cfg, metrics.NewSystemSampler(), os.Stdout)
	m.Run(ctx)
	return 0
}
