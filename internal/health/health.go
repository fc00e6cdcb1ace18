package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"autoreply/backend/internal/gateway"
	"autoreply/backend/internal/storage"
)

// Checker 健康检查器
//
// 存活检查只看草稿存储；就绪检查额外要求邮箱网关可达，
// 网关短暂不可达时进程不重启，只是暂时摘出流量。
type Checker struct {
	handler healthcheck.Handler
	log     *zap.Logger
}

// NewChecker 创建健康检查器。gw 可为 nil（例如测试环境）。
func NewChecker(store storage.DraftRepository, gw gateway.Gateway, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Checker{
		handler: healthcheck.NewHandler(),
		log:     log,
	}

	c.handler.AddLivenessCheck("store", store.Health)
	c.handler.AddReadinessCheck("store", store.Health)
	if gw != nil {
		c.handler.AddReadinessCheck("mail-gateway", gw.Health)
	}
	return c
}

// LiveEndpoint 存活检查入口
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查入口
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}
