package domain

import "errors"

var (
	// ErrInvalidState 调用方试图执行非法的状态迁移
	ErrInvalidState = errors.New("draft is not in a valid state for this operation")
	// ErrEmptyReply 生成的回信内容为空
	ErrEmptyReply = errors.New("generated reply is empty")
)
