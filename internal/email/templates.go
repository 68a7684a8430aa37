package email

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// StepData is the variable set available to sequence step templates.
type StepData struct {
	CustomerName     string
	OrganizationName string
	InvoiceNumber    string
	AmountFormatted  string
	DueDate          string
	DaysOverdue      int
}

// InvoiceLine is one invoice row inside a consolidated reminder.
type InvoiceLine struct {
	Number          string
	AmountFormatted string
	DueDate         string
	DaysOverdue     int
}

// ConsolidatedData is the variable set for consolidated reminder bodies.
type ConsolidatedData struct {
	CustomerName     string
	OrganizationName string
	Invoices         []InvoiceLine
	TotalFormatted   string
	InvoiceCount     int
}

// RenderStep renders a step's subject and body templates. Templates come
// from sequence definitions and are validated here at render time; a
// malformed template fails the render, it never panics the run.
func RenderStep(subjectTmpl, bodyTmpl string, data StepData) (string, string, error) {
	subject, err := render("subject", subjectTmpl, data)
	if err != nil {
		return "", "", fmt.Errorf("subject template: %w", err)
	}
	body, err := render("body", bodyTmpl, data)
	if err != nil {
		return "", "", fmt.Errorf("body template: %w", err)
	}
	return subject, body, nil
}

func render(name, tmpl string, data any) (string, error) {
	parsed, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// FormatAmount renders an amount in minor units with its currency, e.g.
// "AED 1,250.00".
func FormatAmount(cents int64, currency string) string {
	if currency == "" {
		currency = "AED"
	}
	whole := cents / 100
	frac := cents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%s %s.%02d", currency, groupThousands(whole), frac)
}

// FormatDate renders a civil date for email bodies.
func FormatDate(t time.Time) string {
	return t.Format("2 Jan 2006")
}

func groupThousands(v int64) string {
	s := fmt.Sprintf("%d", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}

// Consolidated reminder content. Subjects escalate with tone; bodies list
// each open invoice. An Arabic content path mirrors the English one because
// UAE businesses commonly correspond in either.

var consolidatedSubjects = map[string]map[string]string{
	"en": {
		"gentle": "Payment reminder: %d open invoice(s)",
		"firm":   "Reminder: %d invoice(s) now past due",
		"urgent": "Urgent: %d overdue invoice(s) require attention",
		"final":  "Final notice: %d overdue invoice(s) before escalation",
	},
	"ar": {
		"gentle": "تذكير بالدفع: %d فاتورة مستحقة",
		"firm":   "تذكير: %d فاتورة تجاوزت موعد الاستحقاق",
		"urgent": "عاجل: %d فاتورة متأخرة تتطلب اهتمامكم",
		"final":  "إشعار نهائي: %d فاتورة متأخرة قبل التصعيد",
	},
}

// ConsolidatedSubject returns the localized subject line for a consolidated
// reminder at the given escalation level.
func ConsolidatedSubject(level, language string, invoiceCount int) string {
	lang := language
	if _, ok := consolidatedSubjects[lang]; !ok {
		lang = "en"
	}
	tmpl, ok := consolidatedSubjects[lang][level]
	if !ok {
		tmpl = consolidatedSubjects[lang]["gentle"]
	}
	return fmt.Sprintf(tmpl, invoiceCount)
}

const consolidatedBodyEN = `Dear {{.CustomerName}},

Our records show {{.InvoiceCount}} open invoice(s) with {{.OrganizationName}}:

{{range .Invoices}}- Invoice {{.Number}}: {{.AmountFormatted}}, due {{.DueDate}} ({{.DaysOverdue}} days overdue)
{{end}}
Total outstanding: {{.TotalFormatted}}

Please arrange payment at your earliest convenience. If payment has already
been made, kindly disregard this message.

Kind regards,
{{.OrganizationName}}`

const consolidatedBodyAR = `عزيزي {{.CustomerName}}،

تُظهر سجلاتنا {{.InvoiceCount}} فاتورة مستحقة لدى {{.OrganizationName}}:

{{range .Invoices}}- فاتورة {{.Number}}: {{.AmountFormatted}}، تاريخ الاستحقاق {{.DueDate}} (متأخرة {{.DaysOverdue}} يومًا)
{{end}}
إجمالي المبلغ المستحق: {{.TotalFormatted}}

يرجى ترتيب الدفع في أقرب وقت ممكن. إذا كان قد تم الدفع بالفعل، يرجى تجاهل هذه الرسالة.

مع أطيب التحيات،
{{.OrganizationName}}`

// RenderConsolidated renders the consolidated reminder body in the
// customer's language, falling back to English.
func RenderConsolidated(language string, data ConsolidatedData) (string, error) {
	tmpl := consolidatedBodyEN
	if language == "ar" {
		tmpl = consolidatedBodyAR
	}
	return render("consolidated", tmpl, data)
}
