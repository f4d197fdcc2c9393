package runner

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/9triver/fornax/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		DurationSeconds:        0,
		Workers:                2,
		MatrixSize:             16,
		GPUMatrixSize:          16,
		MonitorIntervalSeconds: 0.05,
		// 错峰不能太短：SIGTERM 必须晚于子进程装好信号处理，
		// 否则按默认处置终止，报告行不会打印
		SpawnStaggerMillis: 100,
		GracePeriodSeconds: 2,
	}
}

func TestRunImmediateDeadline(t *testing.T) {
	out := &syncBuffer{}
	s := New(testConfig(), testLauncher(out))

	require.Equal(t, StateIdle, s.State())
	require.True(t, strings.HasPrefix(s.RunID(), "run-"))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateTerminated, s.State())

	// 两个 CPU worker 加一个监控进程，没有 GPU
	assert.Equal(t, 2, summary.Spawned["cpu"])
	assert.Equal(t, 1, summary.Spawned["monitor"])
	assert.Zero(t, summary.Spawned["gpu"])

	// 账目守恒：每种句柄 spawned == joined + abandoned
	assert.True(t, summary.Conserved())
	assert.Equal(t, 2, summary.Joined["cpu"])
	assert.Equal(t, 1, summary.Joined["monitor"])

	for _, h := range s.Handles() {
		assert.Equal(t, HandleJoined, h.State(), "handle %s (%s %d)", h.ID, h.Kind, h.Index)
		assert.NoError(t, h.ExitErr())
	}

	// 截止时间已过，worker 必须报告 0 次迭代
	text := out.String()
	assert.Contains(t, text, "[CPU worker 0] finished, iterations: 0")
	assert.Contains(t, text, "[CPU worker 1] finished, iterations: 0")
}

func TestRunUntilDeadline(t *testing.T) {
	out := &syncBuffer{}
	cfg := testConfig()
	cfg.DurationSeconds = 1
	cfg.Workers = 1
	cfg.MatrixSize = 8
	s := New(cfg, testLauncher(out))

	start := time.Now()
	summary, err := s.Run(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, summary.Conserved())
	assert.Equal(t, 1, summary.Joined["cpu"])
	assert.Equal(t, 1, summary.Joined["monitor"])

	// 结束时间上界：时长 + 错峰总和 + 宽限期，再留出调度余量
	maxExpected := cfg.Duration() + time.Duration(cfg.Workers)*cfg.SpawnStagger() + cfg.GracePeriod() + 3*time.Second
	assert.Less(t, elapsed, maxExpected)

	// worker 在截止前应完成至少一次迭代
	m := regexp.MustCompile(`\[CPU worker 0\] finished, iterations: (\d+)`).FindStringSubmatch(out.String())
	require.NotNil(t, m, "missing worker report in output:\n%s", out.String())
	iterations, convErr := strconv.Atoi(m[1])
	require.NoError(t, convErr)
	assert.Greater(t, iterations, 0)

	// 监控至少产生一行输出，正常行或降级行均可
	text := out.String()
	assert.True(t,
		strings.Contains(text, "CPU%:") || strings.Contains(text, "system metrics unavailable"),
		"missing monitor output:\n%s", text)
}

func TestRunCancellation(t *testing.T) {
	out := &syncBuffer{}
	cfg := testConfig()
	cfg.DurationSeconds = 30
	s := New(cfg, testLauncher(out))

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(400*time.Millisecond, cancel)
	defer timer.Stop()

	start := time.Now()
	summary, err := s.Run(ctx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, StateTerminated, s.State())

	// 取消后不等 30 秒时长，直接进入排空
	assert.Less(t, elapsed, 10*time.Second)
	assert.True(t, summary.Conserved())
	assert.Equal(t, 2, summary.Joined["cpu"])

	// worker 被 SIGTERM 提前结束，报告仍然打印
	assert.Contains(t, out.String(), "finished, iterations:")
}

func TestRunCancelledDuringSpawn(t *testing.T) {
	out := &syncBuffer{}
	cfg := testConfig()
	cfg.DurationSeconds = 30
	cfg.Workers = 5
	cfg.SpawnStaggerMillis = 200
	s := New(cfg, testLauncher(out))

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(250*time.Millisecond, cancel)
	defer timer.Stop()

	summary, err := s.Run(ctx)

	// 中途取消不是错误：停止启动剩余 worker，已启动的照常排空
	require.NoError(t, err)
	require.Equal(t, StateTerminated, s.State())
	assert.GreaterOrEqual(t, summary.Spawned["cpu"], 1)
	assert.Less(t, summary.Spawned["cpu"], 5)
	assert.True(t, summary.Conserved())
	assert.Equal(t, summary.Spawned["cpu"], summary.Joined["cpu"])
}

func TestStubbornChildAbandoned(t *testing.T) {
	out := &syncBuffer{}
	cfg := testConfig()
	// 非零时长，确保子进程在排空开始前已装上 SIGTERM 屏蔽
	cfg.DurationSeconds = 1
	cfg.Workers = 1
	cfg.GracePeriodSeconds = 1

	l := testLauncher(out)
	l.BaseEnv = append(os.Environ(), envTestHang+"=1")
	s := New(cfg, l)

	start := time.Now()
	summary, err := s.Run(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, StateTerminated, s.State())

	// worker 忽略 SIGTERM：宽限期后放弃回收，不升级为 SIGKILL
	assert.Equal(t, 1, summary.Spawned["cpu"])
	assert.Zero(t, summary.Joined["cpu"])
	assert.Equal(t, 1, summary.Abandoned["cpu"])
	assert.True(t, summary.Conserved())

	// 监督进程在宽限期后即返回，不等滞留进程自然退出（3 秒）
	assert.Less(t, elapsed, 3*time.Second)
	assert.Equal(t, 1, summary.Joined["monitor"])

	for _, h := range s.Handles() {
		if h.Kind == "cpu" {
			assert.Equal(t, HandleAbandoned, h.State())
		}
	}
}

func TestRunSpawnFailure(t *testing.T) {
	out := &syncBuffer{}
	l := testLauncher(out)
	l.ExecPath = filepath.Join(t.TempDir(), "missing-binary")
	s := New(testConfig(), l)

	summary, err := s.Run(context.Background())

	// 启动失败是监督级错误，但状态机仍须走完并到达 terminated
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn monitor")
	require.Equal(t, StateTerminated, s.State())
	assert.Empty(t, summary.Spawned)
	assert.True(t, summary.Conserved())
}

func TestSummaryConserved(t *testing.T) {
	sum := &Summary{
		Spawned:   map[string]int{"cpu": 2, "monitor": 1},
		Joined:    map[string]int{"cpu": 1, "monitor": 1},
		Abandoned: map[string]int{"cpu": 1},
	}
	assert.True(t, sum.Conserved())

	sum.Abandoned["cpu"] = 0
	assert.False(t, sum.Conserved())
}
