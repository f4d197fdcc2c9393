package worker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/9triver/fornax/internal/gpu"
	"github.com/sirupsen/logrus"
)

// 每 10 次迭代同步一次设备，兼顾吞吐和对截止时间的响应
const gpuSyncEvery = 10

// RunGPU 运行 GPU worker 主循环直到截止时间
// 设备会话打开失败按 worker 级故障处理：记录日志并以 0 次迭代正常退出
func RunGPU(ctx context.Context, p Params, out io.Writer) *Report {
	report := &Report{Kind: KindGPU, Index: p.Index}

	sess, err := gpu.OpenSession(p.Device, p.Size)
	if err != nil {
		logrus.Errorf("GPU worker %d: open session on device %d: %v", p.Index, p.Device, err)
		fmt.Fprintln(out, report)
		return report
	}
	defer sess.Close()

	runGPULoop(ctx, p, sess, report)

	fmt.Fprintln(out, report)
	return report
}

// runGPULoop 在已打开的会话上执行预热和计时循环，迭代数累加进 report
func runGPULoop(ctx context.Context, p Params, sess gpu.Session, report *Report) {
	// 预热并等待设备就绪
	err := sess.Step()
	if err == nil {
		err = sess.Synchronize()
	}
	if err != nil {
		logrus.Errorf("GPU worker %d: warmup on device %d: %v", p.Index, p.Device, err)
		return
	}

	for ctx.Err() == nil && time.Now().Before(p.Deadline) {
		if err := sess.Step(); err != nil {
			logrus.Errorf("GPU worker %d fault after %d iterations: %v", p.Index, report.Iterations, err)
			return
		}
		report.Iterations++

		if report.Iterations%gpuSyncEvery == 0 {
			if err := sess.Synchronize(); err != nil {
				logrus.Errorf("GPU worker %d fault after %d iterations: %v", p.Index, report.Iterations, err)
				return
			}
		}
	}

	// 结束前再同步一次，让迭代数对应设备上已完成的计算
	if err := sess.Synchronize(); err != nil {
		logrus.Warnf("GPU worker %d: final synchronize: %v", p.Index, err)
	}
}
