package imapgw

import (
	"bytes"
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// submit 通过 SMTP 提交端口发出报文。
func (g *IMAPGateway) submit(ctx context.Context, to string, raw []byte) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	auth := sasl.NewPlainClient("", g.cfg.Username, g.cfg.Password)
	err := smtp.SendMail(g.cfg.SMTPAddr, auth, g.cfg.FromAddress, []string{to}, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("submitting via %s: %w", g.cfg.SMTPAddr, err)
	}
	return nil
}
