package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendgridEndpoint = "/v3/mail/send"

// SendGridNotifier emails every recipient that has an address.
type SendGridNotifier struct {
	key     string
	host    string
	from    *sgmail.Email
	subject string
}

func NewSendGridNotifier(key, fromName, fromEmail string) *SendGridNotifier {
	return &SendGridNotifier{
		key:     key,
		host:    "https://api.sendgrid.com",
		from:    sgmail.NewEmail(fromName, fromEmail),
		subject: "[" + fromName + "] ",
	}
}

// WithHost points the client at another API host.
func (s *SendGridNotifier) WithHost(host string) *SendGridNotifier {
	s.host = strings.TrimSuffix(host, "/")
	return s
}

func (*SendGridNotifier) Name() string { return "sendgrid" }

func (s *SendGridNotifier) prepare(m Message, to Recipient) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subject + m.Title
	p.AddTos(sgmail.NewEmail(to.Name, to.Email))

	mail := sgmail.NewV3Mail()
	mail.SetFrom(s.from)
	mail.AddPersonalizations(p)
	mail.AddContent(
		sgmail.NewContent("text/plain", m.Body),
		sgmail.NewContent("text/html", "<p>"+strings.ReplaceAll(html.EscapeString(m.Body), "\n", "<br>")+"</p>"),
	)
	return mail
}

func (s *SendGridNotifier) Notify(ctx context.Context, m Message) error {
	var errs []error
	sent := 0
	for _, r := range m.Recipients {
		if r.Email == "" {
			continue
		}
		req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
		req.Method = http.MethodPost
		req.Body = sgmail.GetRequestBody(s.prepare(m, r))
		res, err := sendgrid.MakeRequestWithContext(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Email, err))
			continue
		}
		if res.StatusCode >= http.StatusBadRequest {
			errs = append(errs, fmt.Errorf("%s: sendgrid returned %d", r.Email, res.StatusCode))
			continue
		}
		sent++
	}
	if sent == 0 && len(errs) == 0 {
		return errors.New("no recipient has an email address")
	}
	return errors.Join(errs...)
}
