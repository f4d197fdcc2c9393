package worker

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// computeBuffers CPU 乘法的预分配缓冲，整个循环周期复用
// float32 与 GPU 侧精度一致，同时减小内存带宽压力
type computeBuffers struct {
	n       int
	a, b, c blas32.General
}

func newComputeBuffers(n int, rnd *rand.Rand) *computeBuffers {
	if n < 1 {
		panic(fmt.Sprintf("invalid matrix size %d", n))
	}

	newMat := func(fill bool) blas32.General {
		data := make([]float32, n*n)
		if fill {
			for i := range data {
				data[i] = rnd.Float32()
			}
		}
		return blas32.General{Rows: n, Cols: n, Stride: n, Data: data}
	}

	return &computeBuffers{
		n: n,
		a: newMat(true),
		b: newMat(true),
		c: newMat(false),
	}
}

// step 执行一次 C = A x B，然后对 A 做一次滚动扰动
func (buf *computeBuffers) step() {
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, buf.a, buf.b, 0, buf.c)
	perturb(buf.a.Data, buf.n)
}

// perturb 将按行滚动一位的矩阵以 1e-6 系数叠加回输入
// 让每次迭代的输入都略有不同，防止重复计算被优化掉
func perturb(data []float32, cols int) {
	n := len(data)
	for i := 0; i < n; i++ {
		data[i] += (data[(i+n-cols)%n] - 0.5) * 1e-6
	}
}

// RunCompute 运行 CPU worker 主循环直到截止时间
// 数值故障只影响当前 worker：记录日志后带着已完成的迭代数正常退出，
// 截止时间已过则直接报告 0 次迭代
func RunCompute(ctx context.Context, p Params, out io.Writer) *Report {
	report := &Report{Kind: KindCPU, Index: p.Index}

	func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("CPU worker %d fault after %d iterations: %v", p.Index, report.Iterations, r)
			}
		}()

		rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(p.Index)))
		buf := newComputeBuffers(p.Size, rnd)

		// 预热一次，让计时循环内的单次耗时稳定
		buf.step()

		for ctx.Err() == nil && time.Now().Before(p.Deadline) {
			buf.step()
			report.Iterations++
		}
	}()

	fmt.Fprintln(out, report)
	return report
}
