package runner

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/9triver/fornax/internal/worker"
)

// Launcher 用监督进程自身的二进制构造子进程命令
// 子进程始终是真实的操作系统进程；测试中只替换二进制路径和输出目标
type Launcher struct {
	ExecPath string    // 子进程二进制路径，默认当前可执行文件
	BaseEnv  []string  // 基础环境变量，默认继承当前进程
	Stdout   io.Writer // 子进程标准输出，worker 报告和监控行经由这里透传
	Stderr   io.Writer // 子进程标准错误，承载子进程日志
}

// NewLauncher 创建指向当前二进制的 Launcher
func NewLauncher() (*Launcher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &Launcher{
		ExecPath: exe,
		BaseEnv:  os.Environ(),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}, nil
}

// WorkerCommand 构造一个 worker 子进程命令，启动由调用方负责
func (l *Launcher) WorkerCommand(p worker.Params) *exec.Cmd {
	env := append(l.baseEnv(),
		EnvRole+"="+RoleWorker,
		EnvRunID+"="+p.RunID,
		EnvKind+"="+string(p.Kind),
		EnvIndex+"="+strconv.Itoa(p.Index),
		EnvMatrixSize+"="+strconv.Itoa(p.Size),
		EnvDeadline+"="+strconv.FormatInt(p.Deadline.UnixNano(), 10),
		EnvDevice+"="+strconv.Itoa(p.Device),
	)
	return l.command(env)
}

// MonitorCommand 构造监控子进程命令
func (l *Launcher) MonitorCommand(runID string, duration, interval time.Duration) *exec.Cmd {
	env := append(l.baseEnv(),
		EnvRole+"="+RoleMonitor,
		EnvRunID+"="+runID,
		EnvMonitorDurationMS+"="+strconv.FormatInt(duration.Milliseconds(), 10),
		EnvMonitorIntervalMS+"="+strconv.FormatInt(interval.Milliseconds(), 10),
	)
	return l.command(env)
}

func (l *Launcher) baseEnv() []string {
	return append([]string{}, l.BaseEnv...)
}

func (l *Launcher) command(env []string) *exec.Cmd {
	// 不用 CommandContext：取消时只允许 SIGTERM，由监督进程的排空逻辑负责
	cmd := exec.Command(l.ExecPath)
	cmd.Env = env
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	return cmd
}
