package util

import (
	"github.com/lithammer/shortuuid/v4"
)

// GenID 生成短随机 ID
func GenID() string {
	return shortuuid.New()
}

// GenIDWith 生成带前缀的短随机 ID，例如 run-、h-
func GenIDWith(prefix string) string {
	return prefix + shortuuid.New()
}
