// Package notify sends failure alert mail. Everything here is
// best-effort: a broken SMTP relay must never stall a toggle path.
package notify

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/evacnet/poekeeper/config"
)

type Mailer struct {
	cfg config.SmtpConfig
}

func NewMailer(cfg config.SmtpConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// ToggleFailed mails one toggle failure. Sent from a goroutine so
// callers never block on the relay.
func (m *Mailer) ToggleFailed(deviceID int64, ipaddr string, port int, errMsg string) {
	if m == nil || !m.cfg.Enable {
		return
	}
	go func() {
		msg := gomail.NewMessage()
		msg.SetHeader("From", m.cfg.From)
		msg.SetHeader("To", m.cfg.To)
		msg.SetHeader("Subject", fmt.Sprintf("[poekeeper] toggle failed on %s port %d", ipaddr, port))
		msg.SetBody("text/plain", fmt.Sprintf(
			"Device %d on switch %s port %d failed to toggle at %s:\n\n%s\n",
			deviceID, ipaddr, port, time.Now().Format(time.RFC3339), errMsg))

		dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
		if err := dialer.DialAndSend(msg); err != nil {
			zap.L().Warn("alert mail failed", zap.Error(err))
		}
	}()
}
