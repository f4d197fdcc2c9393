//go:build !cuda

package gpu

const runtimeCompiled = false

// OpenSession 未启用 cuda 构建标签时 GPU 会话不可用
func OpenSession(deviceIndex, size int) (Session, error) {
	return nil, ErrUnavailable
}
