package email

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSimulatorIsDeterministic(t *testing.T) {
	sim := NewSimulator(42, 0.9)
	msg := Message{Recipient: "finance@alnoor.ae", Subject: "Payment reminder"}

	firstID, firstErr := sim.Send(context.Background(), msg)
	for i := 0; i < 10; i++ {
		id, err := sim.Send(context.Background(), msg)
		if (err == nil) != (firstErr == nil) || id != firstID {
			t.Fatalf("outcome changed between identical sends: (%q,%v) vs (%q,%v)", firstID, firstErr, id, err)
		}
	}
}

func TestSimulatorSeedChangesOutcomes(t *testing.T) {
	// With a 50% rate and enough distinct messages, two seeds should not
	// produce identical outcome sets.
	a := NewSimulator(1, 0.5)
	b := NewSimulator(2, 0.5)

	diff := false
	for i := 0; i < 64; i++ {
		msg := Message{Recipient: "x@example.ae", Subject: strings.Repeat("s", i+1)}
		_, errA := a.Send(context.Background(), msg)
		_, errB := b.Send(context.Background(), msg)
		if (errA == nil) != (errB == nil) {
			diff = true
			break
		}
	}
	if !diff {
		t.Fatal("expected different seeds to change at least one outcome")
	}
}

func TestSimulatorRateZeroAlwaysFails(t *testing.T) {
	sim := NewSimulator(7, 0)
	if _, err := sim.Send(context.Background(), Message{Recipient: "a@b.ae", Subject: "s"}); err == nil {
		t.Fatal("expected failure at zero delivery rate")
	}
}

func TestRenderStep(t *testing.T) {
	subject, body, err := RenderStep(
		"Reminder: invoice {{.InvoiceNumber}}",
		"Dear {{.CustomerName}}, {{.AmountFormatted}} was due {{.DueDate}}.",
		StepData{
			CustomerName:    "Al Noor Trading",
			InvoiceNumber:   "INV-1042",
			AmountFormatted: "AED 12,500.00",
			DueDate:         "1 Jun 2026",
		},
	)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Reminder: invoice INV-1042" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "AED 12,500.00") {
		t.Fatalf("body missing amount: %q", body)
	}
}

func TestRenderStepRejectsMalformedTemplate(t *testing.T) {
	if _, _, err := RenderStep("{{.Broken", "body", StepData{}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, _, err := RenderStep("{{.NoSuchField}}", "body", StepData{}); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{125000, "AED 1,250.00"},
		{5, "AED 0.05"},
		{123456789, "AED 1,234,567.89"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.cents, "AED"); got != tc.want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestRenderConsolidatedListsInvoices(t *testing.T) {
	body, err := RenderConsolidated("en", ConsolidatedData{
		CustomerName:     "Gulf Builders LLC",
		OrganizationName: "Tahseel Demo",
		InvoiceCount:     2,
		TotalFormatted:   "AED 30,000.00",
		Invoices: []InvoiceLine{
			{Number: "INV-1", AmountFormatted: "AED 10,000.00", DueDate: FormatDate(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)), DaysOverdue: 40},
			{Number: "INV-2", AmountFormatted: "AED 20,000.00", DueDate: FormatDate(time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)), DaysOverdue: 21},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"INV-1", "INV-2", "AED 30,000.00", "Gulf Builders LLC"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}

	arabic, err := RenderConsolidated("ar", ConsolidatedData{CustomerName: "شركة الخليج", OrganizationName: "تحصيل", InvoiceCount: 1, TotalFormatted: "AED 1.00"})
	if err != nil {
		t.Fatalf("render ar: %v", err)
	}
	if !strings.Contains(arabic, "شركة الخليج") {
		t.Fatal("arabic body missing customer name")
	}
}

func TestConsolidatedSubjectFallsBackToEnglish(t *testing.T) {
	got := ConsolidatedSubject("urgent", "fr", 3)
	if !strings.Contains(got, "3") || !strings.Contains(got, "Urgent") {
		t.Fatalf("unexpected subject %q", got)
	}
}
