package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"
	"text/template"

	"github.com/dajohi/goemail"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
)

const tokenSubject = "Your voting token"

var tokenBody = template.Must(template.New("token").Parse(`Hello,

You have been registered to vote in session {{.SessionID}}.

Your personal voting token is:

    {{.Token}}

The token can be used exactly once. Cast your vote at {{.URL}}.
`))

type SMTPConfig struct {
	Host       string
	User       string
	Password   string
	From       string
	SkipVerify bool
	// VotingURL is included in the message body.
	VotingURL string
}

type sender interface {
	Send(msg *goemail.Message) error
}

// SMTPDispatcher mails tokens through an SMTPS server.
type SMTPDispatcher struct {
	smtp      sender
	fromName  string
	fromAddr  string
	votingURL string
	disabled  bool
	logger    logging.Logger
}

var _ Dispatcher = (*SMTPDispatcher)(nil)

// NewSMTPDispatcher returns a dispatcher for cfg. Mail is disabled when any
// credential is missing; a disabled dispatcher fails every send with
// ErrDisabled so the tickets stay retryable.
func NewSMTPDispatcher(cfg SMTPConfig, logger logging.Logger) (*SMTPDispatcher, error) {
	logger = logger.With("module", "notify")
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		logger.Info(context.Background(), "mail disabled")
		return &SMTPDispatcher{disabled: true, logger: logger}, nil
	}

	u, err := url.Parse(fmt.Sprintf("smtps://%v:%v@%v", url.PathEscape(cfg.User), url.PathEscape(cfg.Password), cfg.Host))
	if err != nil {
		return nil, err
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("mail from address: %w", err)
	}

	s, err := goemail.NewSMTP(u.String(), &tls.Config{InsecureSkipVerify: cfg.SkipVerify})
	if err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "mail enabled", "host", cfg.Host, "from", from.Address)

	return &SMTPDispatcher{
		smtp:      s,
		fromName:  from.Name,
		fromAddr:  from.Address,
		votingURL: cfg.VotingURL,
		logger:    logger,
	}, nil
}

func (d *SMTPDispatcher) IsEnabled() bool {
	return !d.disabled
}

func (d *SMTPDispatcher) SendVotingToken(ctx context.Context, email, sessionID, token string) error {
	if d.disabled {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderTokenBody(sessionID, token, d.votingURL)
	if err != nil {
		return err
	}

	msg := goemail.NewMessage(d.fromAddr, tokenSubject, body)
	if msg == nil {
		return fmt.Errorf("build token mail: invalid sender %q", d.fromAddr)
	}
	msg.SetName(d.fromName)
	msg.AddTo(email)

	if err := d.smtp.Send(msg); err != nil {
		d.logger.Warn(ctx, "token mail failed", "session_id", sessionID, "error", err)
		return fmt.Errorf("send token mail: %w", err)
	}
	return nil
}

func renderTokenBody(sessionID, token, votingURL string) (string, error) {
	var body bytes.Buffer
	err := tokenBody.Execute(&body, struct {
		SessionID, Token, URL string
	}{sessionID, token, votingURL})
	return body.String(), err
}
