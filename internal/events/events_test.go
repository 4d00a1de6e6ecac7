package events

import (
	"errors"
	"testing"
)

type invoiceCreatedPayload struct {
	InvoiceID   string `json:"invoice_id"`
	AmountCents int64  `json:"amount_cents"`
}

func TestTopicBuildsLowercaseSubject(t *testing.T) {
	if got := Topic("Billing", "Invoices", "Created"); got != "billing.invoices.created" {
		t.Fatalf("unexpected topic %q", got)
	}
}

func TestNewBuildsValidatedEnvelope(t *testing.T) {
	e, err := New("billing.invoices.created", "/momentum/billing", "invoice-42", "acme", "acme/invoice-42", invoiceCreatedPayload{
		InvoiceID:   "invoice-42",
		AmountCents: 1999,
	})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}

	if e.ID() == "" {
		t.Fatal("expected generated event id")
	}
	if e.Type() != "billing.invoices.created" {
		t.Fatalf("unexpected type %q", e.Type())
	}
	if e.Source() != "/momentum/billing" {
		t.Fatalf("unexpected source %q", e.Source())
	}
	if e.Subject() != "invoice-42" {
		t.Fatalf("unexpected subject %q", e.Subject())
	}
	if Tenant(e) != "acme" {
		t.Fatalf("unexpected tenant %q", Tenant(e))
	}
	if PartitionKey(e) != "acme/invoice-42" {
		t.Fatalf("unexpected partition key %q", PartitionKey(e))
	}
}

func TestEncodeDecodeRoundTripsEnvelope(t *testing.T) {
	original, err := New("billing.invoices.created", "/momentum/billing", "invoice-42", "acme", "", invoiceCreatedPayload{
		InvoiceID:   "invoice-42",
		AmountCents: 500,
	})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}

	wire, err := Encode(original)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if decoded.ID() != original.ID() {
		t.Fatalf("id drifted: %q != %q", decoded.ID(), original.ID())
	}
	if Tenant(decoded) != "acme" {
		t.Fatalf("tenant extension lost, got %q", Tenant(decoded))
	}

	var payload invoiceCreatedPayload
	if err := decoded.DataAs(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.AmountCents != 500 {
		t.Fatalf("unexpected amount %d", payload.AmountCents)
	}
}

func TestDecodeRejectsInvalidEnvelope(t *testing.T) {
	if _, err := Decode([]byte(`{"specversion":"1.0"}`)); err == nil {
		t.Fatal("expected incomplete envelope to be rejected")
	}
	if _, err := Decode([]byte(`not-json`)); err == nil {
		t.Fatal("expected malformed JSON to be rejected")
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(Definition{Topic: "  "}); !errors.Is(err, ErrTopicRequired) {
		t.Fatalf("expected ErrTopicRequired, got %v", err)
	}
	if err := registry.Register(Definition{Topic: "billing.invoices.created"}); !errors.Is(err, ErrPayloadFactoryRequired) {
		t.Fatalf("expected ErrPayloadFactoryRequired, got %v", err)
	}

	def := Definition{
		Topic:   "billing.invoices.created",
		Payload: func() any { return &invoiceCreatedPayload{} },
	}
	if err := registry.Register(def); err != nil {
		t.Fatalf("register definition: %v", err)
	}
	if err := registry.Register(def); !errors.Is(err, ErrTopicDuplicate) {
		t.Fatalf("expected ErrTopicDuplicate, got %v", err)
	}
}

func TestRegistryDecodePayload(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Definition{
		Topic:   "billing.invoices.created",
		Payload: func() any { return &invoiceCreatedPayload{} },
	})

	e, err := New("billing.invoices.created", "/momentum/billing", "invoice-1", "acme", "", invoiceCreatedPayload{
		InvoiceID:   "invoice-1",
		AmountCents: 100,
	})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}

	decoded, err := registry.DecodePayload(e)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	payload, ok := decoded.(*invoiceCreatedPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", decoded)
	}
	if payload.InvoiceID != "invoice-1" {
		t.Fatalf("unexpected invoice id %q", payload.InvoiceID)
	}

	unknown, err := New("billing.invoices.cancelled", "/momentum/billing", "invoice-1", "acme", "", nil)
	if err != nil {
		t.Fatalf("build unknown event: %v", err)
	}
	if _, err := registry.DecodePayload(unknown); !errors.Is(err, ErrTopicUnknown) {
		t.Fatalf("expected ErrTopicUnknown, got %v", err)
	}
}

func TestRegistryTopicsSorted(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Definition{Topic: "billing.invoices.paid", Payload: func() any { return &struct{}{} }})
	registry.MustRegister(Definition{Topic: "billing.cashiers.created", Payload: func() any { return &struct{}{} }})

	topics := registry.Topics()
	if len(topics) != 2 || topics[0] != "billing.cashiers.created" || topics[1] != "billing.invoices.paid" {
		t.Fatalf("unexpected topics order %v", topics)
	}
}
