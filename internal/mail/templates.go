package mail

import (
	"bytes"
	"text/template"
	"time"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

var verificationTemplate = template.Must(template.New("verification").Parse(
	`Hi {{.Name}},

Confirm your MediTrack account by entering this code:

    {{.Token}}

The code expires in {{.TTL}}. If you did not create this account, you
can ignore this message.
`))

var passwordResetTemplate = template.Must(template.New("reset").Parse(
	`Hi {{.Name}},

A password reset was requested for your MediTrack account. Use this
code to choose a new password:

    {{.Token}}

The code expires in {{.TTL}}. If you did not request a reset, your
password is unchanged and no action is needed.
`))

var lowStockTemplate = template.Must(template.New("lowstock").Parse(
	`Hi {{.Name}},

The following medicines are running low:
{{range .Items}}
  - {{.Name}}: about {{.DaysLeft}} day(s) of stock left{{end}}

Consider refilling soon.
`))

// LowStockItem is one line of the low-stock warning mail.
type LowStockItem struct {
	Name     string
	DaysLeft int
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", apperr.Operation("failed to render mail template", err)
	}
	return buf.String(), nil
}

// Verification builds the account confirmation message.
func Verification(to, name, token string, ttl time.Duration) (Message, error) {
	body, err := render(verificationTemplate, map[string]any{
		"Name": name, "Token": token, "TTL": ttl.String(),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    "verification",
		To:      to,
		Subject: "Confirm your MediTrack account",
		Body:    body,
	}, nil
}

// PasswordReset builds the reset-code message.
func PasswordReset(to, name, token string, ttl time.Duration) (Message, error) {
	body, err := render(passwordResetTemplate, map[string]any{
		"Name": name, "Token": token, "TTL": ttl.String(),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    "password_reset",
		To:      to,
		Subject: "Reset your MediTrack password",
		Body:    body,
	}, nil
}

// LowStock builds the refill warning message.
func LowStock(to, name string, items []LowStockItem) (Message, error) {
	body, err := render(lowStockTemplate, map[string]any{
		"Name": name, "Items": items,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    "low_stock",
		To:      to,
		Subject: "MediTrack: medicines running low",
		Body:    body,
	}, nil
}
