package runner

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/9triver/fornax/internal/config"
	"github.com/9triver/fornax/internal/gpu"
	"github.com/9triver/fornax/internal/util"
	"github.com/9triver/fornax/internal/worker"
	"github.com/sirupsen/logrus"
)

// State 监督状态机状态
type State string

const (
	StateIdle              State = "idle"               // 尚未开始
	StateComputingDeadline State = "computing_deadline" // 计算绝对截止时间
	StateSpawning          State = "spawning"           // 逐个启动子进程
	StateRunning           State = "running"            // 等待截止时间或取消
	StateDraining          State = "draining"           // 终止并回收子进程
	StateTerminated        State = "terminated"         // 运行结束
)

// 监控进程的排空等待上限，比 worker 的宽限期短
const monitorGrace = time.Second

// Summary 一次运行的进程账目，按句柄种类聚合
type Summary struct {
	Spawned   map[string]int
	Joined    map[string]int
	Abandoned map[string]int
	Elapsed   time.Duration
}

// Conserved 校验每种句柄 spawned == joined + abandoned
func (sum *Summary) Conserved() bool {
	for kind, n := range sum.Spawned {
		if n != sum.Joined[kind]+sum.Abandoned[kind] {
			return false
		}
	}
	return true
}

// Supervisor 负载运行监督器
// 单线程推进状态机：计算截止时间、错峰启动子进程、阻塞等待、限时排空；
// Running 是唯一的阻塞点，worker 各自在截止时间自行停止，排空只是兜底
type Supervisor struct {
	cfg      *config.Config
	launcher *Launcher
	runID    string

	mu       sync.RWMutex
	state    State
	handles  []*Handle
	deadline time.Time

	// GPU 能力探测，测试中可替换
	detectDevices func() ([]gpu.Device, error)
}

// New 创建监督器，配置须已通过校验
func New(cfg *config.Config, launcher *Launcher) *Supervisor {
	return &Supervisor{
		cfg:           cfg,
		launcher:      launcher,
		runID:         util.GenIDWith("run-"),
		state:         StateIdle,
		detectDevices: gpu.Detect,
	}
}

// RunID 本次运行的标识
func (s *Supervisor) RunID() string {
	return s.runID
}

// State 获取当前状态（线程安全）
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	logrus.Debugf("Run %s state: %s -> %s", s.runID, prev, next)
}

// Deadline 本次运行的绝对截止时间，进入 computing_deadline 之后有效
func (s *Supervisor) Deadline() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deadline
}

// Handles 返回句柄快照
func (s *Supervisor) Handles() []*Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Handle{}, s.handles...)
}

// Run 执行一次完整的负载运行，任何路径最终都到达 terminated
// 子进程启动失败视为监督级错误：停止后续启动，排空已启动的进程后返回错误
func (s *Supervisor) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	logrus.Infof("Run %s starting: duration %v, %d CPU workers (matrix %d), gpu=%v",
		s.runID, s.cfg.Duration(), s.cfg.Workers, s.cfg.MatrixSize, s.cfg.GPU)

	// 截止时间只计算一次，之后按值传给每个子进程
	s.setState(StateComputingDeadline)
	s.mu.Lock()
	s.deadline = start.Add(s.cfg.Duration())
	s.mu.Unlock()

	s.setState(StateSpawning)
	spawnErr := s.spawnAll(ctx)

	if spawnErr == nil && ctx.Err() == nil {
		s.setState(StateRunning)
		s.waitDeadline(ctx)
	}

	s.setState(StateDraining)
	s.drain()

	s.setState(StateTerminated)
	summary := s.summarize(time.Since(start))
	s.logSummary(summary)

	return summary, spawnErr
}

// spawnAll 启动监控进程和全部 worker，相邻启动之间间隔 stagger
// 上下文被取消时停止启动剩余子进程，已启动的交给排空阶段处理
func (s *Supervisor) spawnAll(ctx context.Context) error {
	deadline := s.Deadline()

	// 监控进程最先启动，负载开始前就能看到基线指标
	monCmd := s.launcher.MonitorCommand(s.runID, s.cfg.Duration(), s.cfg.MonitorInterval())
	if err := s.startChild(KindMonitor, 0, monCmd); err != nil {
		return fmt.Errorf("spawn monitor: %w", err)
	}

	// GPU 能力探测只做一次，失败降级为纯 CPU 运行
	var devices []gpu.Device
	if s.cfg.GPU {
		var err error
		devices, err = s.detectDevices()
		if err != nil {
			logrus.Warnf("GPU runtime not available, skipping GPU workers: %v", err)
			devices = nil
		} else if len(devices) == 0 {
			logrus.Warnf("No GPU device detected, skipping GPU workers")
		} else {
			for _, d := range devices {
				logrus.Infof("GPU %d: %s (%d MB)", d.Index, d.Name, d.Memory/1024/1024)
			}
		}
	}

	for i := 0; i < s.cfg.Workers; i++ {
		if ctx.Err() != nil {
			logrus.Warnf("Cancelled while spawning, started %d of %d CPU workers", i, s.cfg.Workers)
			return nil
		}
		cmd := s.launcher.WorkerCommand(worker.Params{
			Kind:     worker.KindCPU,
			Index:    i,
			Size:     s.cfg.MatrixSize,
			Deadline: deadline,
			RunID:    s.runID,
		})
		if err := s.startChild(string(worker.KindCPU), i, cmd); err != nil {
			return fmt.Errorf("spawn cpu worker %d: %w", i, err)
		}
		s.sleepStagger(ctx)
	}

	// 每块设备一个 GPU worker，worker 序号即设备序号
	for _, d := range devices {
		if ctx.Err() != nil {
			logrus.Warnf("Cancelled while spawning, skipping remaining GPU workers")
			return nil
		}
		cmd := s.launcher.WorkerCommand(worker.Params{
			Kind:     worker.KindGPU,
			Index:    d.Index,
			Size:     s.cfg.GPUMatrixSize,
			Deadline: deadline,
			Device:   d.Index,
			RunID:    s.runID,
		})
		if err := s.startChild(string(worker.KindGPU), d.Index, cmd); err != nil {
			return fmt.Errorf("spawn gpu worker %d: %w", d.Index, err)
		}
		s.sleepStagger(ctx)
	}

	return nil
}

// startChild 启动子进程并登记句柄
func (s *Supervisor) startChild(kind string, index int, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	h := newHandle(util.GenIDWith("h-"), kind, index, cmd)
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	logrus.Infof("Started %s child %d (pid %d, handle %s)", kind, index, h.PID, h.ID)
	return nil
}

// sleepStagger 相邻子进程启动之间的错峰延迟
func (s *Supervisor) sleepStagger(ctx context.Context) {
	stagger := s.cfg.SpawnStagger()
	if stagger <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(stagger):
	}
}

// waitDeadline 阻塞到截止时间或上下文取消，每次最多休眠 1 秒
func (s *Supervisor) waitDeadline(ctx context.Context) {
	deadline := s.Deadline()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			logrus.Infof("Run %s reached its deadline", s.runID)
			return
		}
		wait := remaining
		if wait > time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			logrus.Infof("Run %s interrupted, attempting graceful shutdown", s.runID)
			return
		case <-time.After(wait):
		}
	}
}

// drain 先向所有存活子进程发送 SIGTERM，再逐个在宽限期内等待退出
// 超时的进程被放弃回收，不升级为 SIGKILL，句柄保持 abandoned
// worker 先回收，监控进程最后停，排空期间仍有指标行输出
func (s *Supervisor) drain() {
	handles := s.Handles()

	for _, h := range handles {
		h.signalTerm()
	}

	ordered := make([]*Handle, 0, len(handles))
	for _, h := range handles {
		if h.Kind != KindMonitor {
			ordered = append(ordered, h)
		}
	}
	for _, h := range handles {
		if h.Kind == KindMonitor {
			ordered = append(ordered, h)
		}
	}

	for _, h := range ordered {
		grace := s.cfg.GracePeriod()
		if h.Kind == KindMonitor {
			grace = monitorGrace
		}
		if h.waitExit(grace) {
			h.setState(HandleJoined)
			logrus.Infof("Joined %s child %d (pid %d)", h.Kind, h.Index, h.PID)
		} else {
			h.setState(HandleAbandoned)
			logrus.Warnf("%s child %d (pid %d) did not exit within %v, abandoning", h.Kind, h.Index, h.PID, grace)
		}
	}
}

// summarize 按句柄种类聚合进程账目
func (s *Supervisor) summarize(elapsed time.Duration) *Summary {
	summary := &Summary{
		Spawned:   map[string]int{},
		Joined:    map[string]int{},
		Abandoned: map[string]int{},
		Elapsed:   elapsed,
	}
	for _, h := range s.Handles() {
		summary.Spawned[h.Kind]++
		switch h.State() {
		case HandleJoined:
			summary.Joined[h.Kind]++
		case HandleAbandoned:
			summary.Abandoned[h.Kind]++
		}
	}
	return summary
}

func (s *Supervisor) logSummary(sum *Summary) {
	logrus.Infof("Run %s finished in %v", s.runID, sum.Elapsed.Round(time.Millisecond))
	for _, kind := range []string{string(worker.KindCPU), string(worker.KindGPU), KindMonitor} {
		if sum.Spawned[kind] == 0 {
			continue
		}
		logrus.Infof("  %s: spawned %d, joined %d, abandoned %d",
			kind, sum.Spawned[kind], sum.Joined[kind], sum.Abandoned[kind])
	}
	if !sum.Conserved() {
		logrus.Errorf("Handle accounting mismatch: %+v", sum)
	}
}
