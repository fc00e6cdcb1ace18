package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/gateway"
	"autoreply/backend/internal/llm"
	"autoreply/backend/internal/storage"
)

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgDraftNotFound  = "草稿不存在"
	MsgInvalidState   = "草稿已处于终态，无法再次操作"
	MsgGatewayFailed  = "邮箱服务暂时不可用，请稍后重试"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)

// RespondError 将业务错误映射为统一响应
//
// 映射规则：
//   - 草稿不存在                -> 404
//   - 状态机拒绝（已是终态）    -> 409
//   - 邮箱网关 / 生成服务失败   -> 502
//   - 其他                      -> 500
func RespondError(c *gin.Context, err error) {
	var gwErr *gateway.GatewayError
	var genErr *llm.GenerationError

	switch {
	case errors.Is(err, domain.ErrEmptyReply):
		BadRequest(c, MsgInvalidRequest)
	case errors.Is(err, storage.ErrDraftNotFound):
		NotFound(c, MsgDraftNotFound)
	case errors.Is(err, domain.ErrInvalidState):
		Conflict(c, MsgInvalidState)
	case errors.As(err, &gwErr), gateway.IsNotFound(err):
		BadGatewayResp(c, MsgGatewayFailed)
	case errors.As(err, &genErr):
		BadGatewayResp(c, MsgGatewayFailed)
	default:
		InternalError(c, MsgInternalError)
	}
}
