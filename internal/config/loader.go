package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// LoadConfig 从文件加载配置并应用默认值
func LoadConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 应用默认值
	ApplyDefaults(cfg)

	return cfg, nil
}

// ApplyDefaults 为配置项设置默认值
func ApplyDefaults(cfg *Config) {
	// 负载时长默认值
	if cfg.DurationSeconds == 0 {
		cfg.DurationSeconds = 30 // 默认 30 秒
	}

	// worker 数量默认值
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers()
	}

	// 矩阵规模默认值
	if cfg.MatrixSize == 0 {
		cfg.MatrixSize = 800 // 800x800 单次乘法约数亿次浮点运算
	}
	if cfg.GPUMatrixSize == 0 {
		cfg.GPUMatrixSize = 4096 // GPU 上用更大的矩阵才能打满算力
	}

	// 监控配置默认值
	if cfg.MonitorIntervalSeconds == 0 {
		cfg.MonitorIntervalSeconds = 2.0 // 默认 2 秒
	}

	// 进程生命周期默认值
	if cfg.SpawnStaggerMillis == 0 {
		cfg.SpawnStaggerMillis = 100 // 默认 100 毫秒
	}
	if cfg.GracePeriodSeconds == 0 {
		cfg.GracePeriodSeconds = 2 // 默认 2 秒
	}
}
