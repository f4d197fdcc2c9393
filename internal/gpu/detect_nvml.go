//go:build linux && cgo

package gpu

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// detect 通过 NVML 枚举设备
// NVML 在运行时动态加载 libnvidia-ml，没有驱动的机器上 Init 会失败
func detect() ([]Device, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("%w: nvml init: %s", ErrUnavailable, nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("%w: device count: %s", ErrUnavailable, nvml.ErrorString(ret))
	}

	devices := make([]Device, 0, count)
	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			return nil, fmt.Errorf("device %d handle: %s", i, nvml.ErrorString(ret))
		}

		d := Device{Index: i}
		if name, ret := dev.GetName(); ret == nvml.SUCCESS {
			d.Name = name
		}
		if info, ret := dev.GetMemoryInfo(); ret == nvml.SUCCESS {
			d.Memory = info.Total
		}
		devices = append(devices, d)
	}

	return devices, nil
}
