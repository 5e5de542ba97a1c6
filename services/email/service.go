package emailsvc

import "github.com/trezcool/soko/core"

// NewService returns the email backend selected by conf.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.Email.Backend {
	case core.EmailSendgrid:
		return NewSendgridService(conf, logger)
	case core.EmailSMTP:
		return NewSMTPService(conf, logger)
	default:
		return NewConsoleService(conf, logger)
	}
}
