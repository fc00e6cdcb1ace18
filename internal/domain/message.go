package domain

// InboundMessage 表示邮箱网关返回的一封未读来信。
//
// 正文只作为生成回信的输入，除写入草稿所需的字段外不做任何持久化。
type InboundMessage struct {
	MessageID string `json:"messageId"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}
