package mail

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

var confirmationTemplate = template.Must(template.New("confirm").Parse(`Hello {{.Username}},

thanks for signing up. Confirm your e-mail address by opening the link below:

{{.Link}}

The link expires on {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}.
If you did not sign up, ignore this message.
`))

var digestTemplate = template.Must(template.New("digest").Parse(`Hello {{.Username}},

upcoming birthdays in the next {{.Days}} days:
{{range .Entries}}
  {{.Date.Format "Jan 2"}}  {{.Name}}{{if .Email}} <{{.Email}}>{{end}}{{if .Phone}}  {{.Phone}}{{end}}{{end}}
`))

type ConfirmationData struct {
	Username  string
	Link      string
	ExpiresAt time.Time
}

func ConfirmationMessage(to string, data ConfirmationData) (Message, error) {
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Confirm your email",
		Body:    buf.String(),
	}, nil
}

type DigestEntry struct {
	Name  string
	Email string
	Phone string
	Date  time.Time
}

type DigestData struct {
	Username string
	Days     int
	Entries  []DigestEntry
}

func BirthdayDigestMessage(to string, data DigestData) (Message, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render digest: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%d upcoming birthdays", len(data.Entries)),
		Body:    buf.String(),
	}, nil
}
