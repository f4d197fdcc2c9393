package runner

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 监控进程的句柄种类，worker 句柄直接使用 worker.Kind 的字符串值
const KindMonitor = "monitor"

// HandleState 子进程句柄状态
type HandleState string

const (
	HandleLive      HandleState = "live"      // 进程已启动且尚未确认退出
	HandleJoined    HandleState = "joined"    // 已确认退出并完成回收
	HandleAbandoned HandleState = "abandoned" // 宽限期内未退出，放弃回收
)

// Handle 一个子进程的生命周期句柄
// 由监督进程独占持有：启动时创建，排空阶段定稿为 joined 或 abandoned
type Handle struct {
	ID    string
	Kind  string // "cpu" | "gpu" | "monitor"
	Index int
	PID   int

	cmd  *exec.Cmd
	done chan struct{} // cmd.Wait 返回后关闭
	err  error         // Wait 的返回值，含非零退出码

	stateMu sync.RWMutex // 保护 state 字段的锁
	state   HandleState
}

func newHandle(id, kind string, index int, cmd *exec.Cmd) *Handle {
	h := &Handle{
		ID:    id,
		Kind:  kind,
		Index: index,
		PID:   cmd.Process.Pid,
		cmd:   cmd,
		done:  make(chan struct{}),
		state: HandleLive,
	}
	go h.watch()
	return h
}

// watch 回收子进程，Wait 返回后关闭 done
func (h *Handle) watch() {
	h.err = h.cmd.Wait()
	close(h.done)
}

// State 获取句柄状态（线程安全）
func (h *Handle) State() HandleState {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

// setState 设置句柄状态（线程安全，内部方法）
func (h *Handle) setState(state HandleState) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	h.state = state
}

// Exited 进程是否已退出并被回收
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitErr 返回进程退出错误，仅在 Exited 为真后有意义
func (h *Handle) ExitErr() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// signalTerm 发送 SIGTERM，进程已退出时直接跳过
func (h *Handle) signalTerm() {
	if h.Exited() {
		return
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logrus.Warnf("Signal %s child %d (pid %d): %v", h.Kind, h.Index, h.PID, err)
	}
}

// waitExit 在限期内等待进程退出，返回是否等到
func (h *Handle) waitExit(grace time.Duration) bool {
	select {
	case <-h.done:
		return true
	case <-time.After(grace):
		return false
	}
}
