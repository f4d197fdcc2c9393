package gpu

// Session 一块 GPU 设备上的矩阵乘法会话
// 持有设备上下文和预分配的缓冲，迭代间复用，由单个 worker 进程独占
type Session interface {
	// Step 提交一次矩阵乘法，并对输入做微小扰动避免结果被缓存
	Step() error
	// Synchronize 等待设备完成全部已提交的计算
	Synchronize() error
	// Close 释放设备缓冲和上下文
	Close() error
}
