//go:build cuda

package gpu

import (
	"fmt"
	"math/rand"
	"runtime"
	"time"
	"unsafe"

	"gonum.org/v1/gonum/blas"
	"gorgonia.org/cu"
	cublas "gorgonia.org/cu/blas"
)

const runtimeCompiled = true

// cudaSession 基于 CUDA driver API + cuBLAS 的会话实现
// OpenSession 成功后当前 OS 线程被锁定，设备上下文在 Close 前一直保持当前
type cudaSession struct {
	ctx  cu.CUContext
	impl *cublas.Standard
	size int

	a, b, c, ones     cu.DevicePtr
	av, bv, cv, onesv []float32 // 设备内存的切片视图，供 BLAS 接口使用
}

// OpenSession 在指定设备上创建会话并预分配全部矩阵缓冲
func OpenSession(deviceIndex, size int) (Session, error) {
	if size < 1 {
		return nil, fmt.Errorf("matrix size must be at least 1, got %d", size)
	}

	runtime.LockOSThread()

	dev := cu.Device(deviceIndex)
	cctx, err := dev.MakeContext(cu.SchedAuto)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("create context on device %d: %w", deviceIndex, err)
	}

	s := &cudaSession{ctx: cctx, size: size}

	n := size * size
	byteSize := int64(n) * 4
	host := make([]float32, n)
	rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(deviceIndex)))

	// 申请设备内存并从主机端填充初始值
	alloc := func(fill func() float32) (cu.DevicePtr, []float32, error) {
		ptr, err := cu.MemAlloc(byteSize)
		if err != nil {
			return 0, nil, err
		}
		for i := range host {
			host[i] = fill()
		}
		if err := cu.MemcpyHtoD(ptr, unsafe.Pointer(&host[0]), byteSize); err != nil {
			cu.MemFree(ptr)
			return 0, nil, err
		}
		view := unsafe.Slice((*float32)(unsafe.Pointer(uintptr(ptr))), n)
		return ptr, view, nil
	}

	if s.a, s.av, err = alloc(rnd.Float32); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocate device buffer a: %w", err)
	}
	if s.b, s.bv, err = alloc(rnd.Float32); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocate device buffer b: %w", err)
	}
	if s.c, s.cv, err = alloc(func() float32 { return 0 }); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocate device buffer c: %w", err)
	}
	if s.ones, s.onesv, err = alloc(func() float32 { return 1 }); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocate device buffer ones: %w", err)
	}

	s.impl = cublas.New()
	return s, nil
}

// Step 提交 C = A x B，随后对 A 做加性扰动
func (s *cudaSession) Step() error {
	n := s.size
	s.impl.Sgemm(blas.NoTrans, blas.NoTrans, n, n, n, 1, s.av, n, s.bv, n, 0, s.cv, n)
	// A += 1e-6，防止重复输入被设备侧优化
	s.impl.Saxpy(n*n, 1e-6, s.onesv, 1, s.av, 1)
	return s.impl.Err()
}

// Synchronize 等待设备完成全部已提交的计算
func (s *cudaSession) Synchronize() error {
	return cu.Synchronize()
}

// Close 释放设备缓冲并销毁上下文
func (s *cudaSession) Close() error {
	if s.impl != nil {
		s.impl.Close()
		s.impl = nil
	}
	for _, p := range []cu.DevicePtr{s.a, s.b, s.c, s.ones} {
		if p != 0 {
			cu.MemFree(p)
		}
	}
	s.a, s.b, s.c, s.ones = 0, 0, 0, 0

	err := cu.DestroyContext(&s.ctx)
	runtime.UnlockOSThread()
	return err
}
