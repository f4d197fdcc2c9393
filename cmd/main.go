package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/9triver/fornax/internal/config"
	"github.com/9triver/fornax/internal/runner"
	"github.com/9triver/fornax/internal/util"
	"github.com/sirupsen/logrus"
)

func main() {
	// 子进程角色分流：worker 和 monitor 由环境变量驱动，不解析命令行
	switch os.Getenv(runner.EnvRole) {
	case runner.RoleWorker:
		os.Exit(runner.WorkerMain())
	case runner.RoleMonitor:
		os.Exit(runner.MonitorMain())
	}

	duration := flag.Int("duration", 30, "Run duration in seconds")
	workers := flag.Int("workers", config.DefaultWorkers(), "Number of CPU workers")
	matrixSize := flag.Int("matrix-size", 800, "CPU matrix size (N for NxN)")
	gpu := flag.Bool("gpu", false, "Also run one GPU worker per detected device")
	gpuMatrixSize := flag.Int("gpu-matrix-size", 4096, "GPU matrix size (N for NxN)")
	monitorInterval := flag.Float64("monitor-interval", 2.0, "Monitor sample interval in seconds")
	configFile := flag.String("config", "", "Path to config file (optional)")
	logDir := flag.String("log-dir", "", "Directory for log files (optional)")
	flag.Parse()

	cfg := &config.Config{}
	if *configFile != "" {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
		cfg = loaded
	} else {
		config.ApplyDefaults(cfg)
	}

	// 命令行显式给出的参数覆盖配置文件
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "duration":
			cfg.DurationSeconds = *duration
		case "workers":
			cfg.Workers = *workers
		case "matrix-size":
			cfg.MatrixSize = *matrixSize
		case "gpu":
			cfg.GPU = *gpu
		case "gpu-matrix-size":
			cfg.GPUMatrixSize = *gpuMatrixSize
		case "monitor-interval":
			cfg.MonitorIntervalSeconds = *monitorInterval
		case "log-dir":
			cfg.LogDir = *logDir
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	util.InitLogger()
	if cfg.LogDir != "" {
		if path, err := util.InitLoggerWithFile(cfg.LogDir); err != nil {
			logrus.Warnf("File logging disabled: %v", err)
		} else {
			logrus.Infof("Logging to %s", path)
		}
		defer util.CloseLogFile()
	}

	fmt.Println("=== Controlled Workload Runner ===")
	fmt.Println("READ THIS: Use only on systems you own. Start with small durations.")
	fmt.Printf("Start time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Printf("Duration: %ds, CPU workers: %d, CPU matrix: %d\n",
		cfg.DurationSeconds, cfg.Workers, cfg.MatrixSize)
	if cfg.GPU {
		fmt.Printf("GPU matrix size: %d\n", cfg.GPUMatrixSize)
	}

	// 优雅关闭：SIGINT/SIGTERM 只取消上下文，排空由监督逻辑完成
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	launcher, err := runner.NewLauncher()
	if err != nil {
		logrus.Fatalf("Failed to create launcher: %v", err)
	}

	sup := runner.New(cfg, launcher)
	if _, err := sup.Run(ctx); err != nil {
		logrus.Fatalf("Run %s failed: %v", sup.RunID(), err)
	}

	fmt.Println("All workers stopped. End time:", time.Now().Format(time.RFC3339))
	fmt.Println("Done.")
}
