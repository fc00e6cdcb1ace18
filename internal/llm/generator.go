package llm

import (
	"context"
	"fmt"
)

// Generator 定义回信生成器。
//
// 无状态；失败或低质量输出由调用方决策，本层不做自动重试。
type Generator interface {
	// Generate 根据来信正文生成一段回信文本
	Generate(ctx context.Context, messageBody string) (string, error)
}

// GenerationError 生成失败（超时、内容策略、服务商错误或空输出）。
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("reply generation: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
