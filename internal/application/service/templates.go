package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// recipient selects who receives a notice
type recipient int

const (
	toSubmitter recipient = iota
	toManager
	toFinance
)

// notice is one message template for one recipient kind
type notice struct {
	to      recipient
	subject string
	body    string
}

// noticeData is what templates can reference
type noticeData struct {
	RecipientName string
	ActorName     string
	Title         string
	Amount        string
	Comment       string
	Status        string
	Link          string
}

// notices maps an action and the status it led to onto the messages to send
func notices(action domainwf.Action, newStatus domainwf.State) []notice {
	switch action {
	case domainwf.ActionSubmit:
		if newStatus == domainwf.StatePendingFinance {
			return []notice{
				{toSubmitter, "Request auto-approved: {{.Title}}",
					"Your request \"{{.Title}}\" ({{.Amount}}) was below the auto-approval threshold and went straight to finance."},
				{toFinance, "Awaiting finance review: {{.Title}}",
					"The request \"{{.Title}}\" ({{.Amount}}) from {{.ActorName}} was auto-approved and awaits finance review."},
			}
		}
		return []notice{
			{toSubmitter, "Request submitted: {{.Title}}",
				"Your request \"{{.Title}}\" ({{.Amount}}) was submitted and awaits your manager's approval."},
			{toManager, "Approval needed: {{.Title}}",
				"{{.ActorName}} submitted \"{{.Title}}\" ({{.Amount}}) for your approval."},
		}
	case domainwf.ActionManagerApprove:
		return []notice{
			{toSubmitter, "Approved by manager: {{.Title}}",
				"Your request \"{{.Title}}\" ({{.Amount}}) was approved by {{.ActorName}} and moved to finance.{{if .Comment}} Comment: {{.Comment}}{{end}}"},
			{toFinance, "Awaiting finance review: {{.Title}}",
				"The request \"{{.Title}}\" ({{.Amount}}) was approved by {{.ActorName}} and awaits finance review."},
		}
	case domainwf.ActionManagerRequestChanges:
		return []notice{
			{toSubmitter, "Changes requested: {{.Title}}",
				"{{.ActorName}} asked for changes to \"{{.Title}}\" ({{.Amount}}): {{.Comment}}"},
		}
	case domainwf.ActionManagerReject:
		return []notice{
			{toSubmitter, "Rejected by manager: {{.Title}}",
				"Your request \"{{.Title}}\" ({{.Amount}}) was rejected by {{.ActorName}}: {{.Comment}}"},
		}
	case domainwf.ActionFinanceApprove:
		return []notice{
			{toSubmitter, "Approved by finance: {{.Title}}",
				"Your request \"{{.Title}}\" ({{.Amount}}) was approved by finance and will be paid.{{if .Comment}} Comment: {{.Comment}}{{end}}"},
		}
	case domainwf.ActionFinanceReject:
		return []notice{
			{toSubmitter, "Rejected by finance: {{.Title}}",
				"Your request \"{{.Title}}\" ({{.Amount}}) was rejected by finance: {{.Comment}}"},
		}
	case domainwf.ActionMarkPaid:
		return []notice{
			{toSubmitter, "Paid: {{.Title}}",
				"Your request \"{{.Title}}\" ({{.Amount}}) has been paid."},
		}
	}
	return nil
}

var htmlLayout = htmltemplate.Must(htmltemplate.New("layout").Parse(
	`<p>Hello {{.RecipientName}},</p><p>{{.Body}}</p>{{if .Link}}<p><a href="{{.Link}}">Open request</a></p>{{end}}`))

// render produces subject, plain text and HTML bodies
func (n notice) render(data noticeData) (subject, text, html string, err error) {
	subject, err = execText(n.subject, data)
	if err != nil {
		return "", "", "", err
	}
	body, err := execText(n.body, data)
	if err != nil {
		return "", "", "", err
	}

	text = fmt.Sprintf("Hello %s,\n\n%s\n", data.RecipientName, body)
	if data.Link != "" {
		text += "\n" + data.Link + "\n"
	}

	var buf bytes.Buffer
	if err := htmlLayout.Execute(&buf, struct {
		RecipientName string
		Body          string
		Link          string
	}{data.RecipientName, body, data.Link}); err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}

	return strings.TrimSpace(subject), text, buf.String(), nil
}

func execText(tmpl string, data noticeData) (string, error) {
	t, err := texttemplate.New("notice").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
