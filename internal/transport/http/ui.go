package httptransport

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoreply/backend/internal/domain"
)

// draftsPage 评审页面模板
//
// 页面为服务端渲染的待评审列表，发送 / 拒绝通过页面内脚本调用
// JSON API，完成后刷新页面。
const draftsPage = `<!DOCTYPE html>
<html lang="zh">
<head>
<meta charset="utf-8">
<title>回信草稿评审</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem auto; max-width: 56rem; color: #222; }
h1 { font-size: 1.4rem; }
.draft { border: 1px solid #ddd; border-radius: 6px; padding: 1rem; margin-bottom: 1rem; }
.meta { color: #666; font-size: 0.85rem; margin-bottom: 0.5rem; }
textarea { width: 100%; min-height: 7rem; font: inherit; padding: 0.5rem; box-sizing: border-box; }
button { margin-right: 0.5rem; margin-top: 0.5rem; padding: 0.4rem 1rem; cursor: pointer; }
.empty { color: #888; }
.status { display: inline-block; padding: 0 0.4rem; border-radius: 4px; background: #f0ad4e; color: #fff; font-size: 0.8rem; }
</style>
</head>
<body>
<h1>回信草稿评审 <small>（{{len .Drafts}} 条待处理）</small></h1>
{{if not .Drafts}}<p class="empty">当前没有待评审的草稿。</p>{{end}}
{{range .Drafts}}
<div class="draft" id="draft-{{.ID}}">
  <div class="meta">
    <span class="status">{{.Status}}</span>
    来自 <strong>{{.Sender}}</strong> · {{.Subject}} · {{.CreatedAt.Format "2006-01-02 15:04"}}
  </div>
  <textarea id="body-{{.ID}}">{{.Body}}</textarea>
  <div>
    <button onclick="decide('{{.ID}}', 'send')">发送</button>
    <button onclick="decide('{{.ID}}', 'reject')">拒绝</button>
  </div>
</div>
{{end}}
<script>
async function decide(id, action) {
  const payload = action === 'send'
    ? JSON.stringify({body: document.getElementById('body-' + id).value})
    : null;
  const resp = await fetch('/api/v1/drafts/' + id + '/' + action, {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: payload,
  });
  if (resp.ok) {
    location.reload();
  } else {
    const data = await resp.json().catch(() => ({}));
    alert(data.msg || '操作失败');
  }
}
</script>
</body>
</html>`

// reviewTemplate 解析后的评审页面模板
var reviewTemplate = template.Must(template.New("drafts").Parse(draftsPage))

// reviewPage 渲染待评审草稿页面
//
// GET /drafts
func (h *Handler) reviewPage(c *gin.Context) {
	drafts, err := h.drafts.List(c.Request.Context(), domain.StatusPending, 0)
	if err != nil {
		c.String(http.StatusInternalServerError, MsgInternalError)
		return
	}
	c.HTML(http.StatusOK, "drafts", gin.H{"Drafts": drafts})
}
