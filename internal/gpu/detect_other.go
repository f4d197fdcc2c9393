//go:build !linux || !cgo

package gpu

// detect NVML 仅支持 linux + cgo 构建，其余平台一律视为能力缺失
func detect() ([]Device, error) {
	return nil, ErrUnavailable
}
