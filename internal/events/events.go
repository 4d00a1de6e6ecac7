// Package events defines the CloudEvents envelope conventions shared by
// every Momentum service: topic naming, required extensions, and the
// structured-JSON encoding used on the wire.
package events

import (
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/cloudevents/sdk-go/v2/types"
	"github.com/google/uuid"
)

// Envelope extensions carried on every integration event.
const (
	// ExtensionTenant scopes an event to one tenant.
	ExtensionTenant = "tenantid"
	// ExtensionPartitionKey keeps related events ordered at the broker.
	ExtensionPartitionKey = "partitionkey"
)

// Topic builds the broker subject for an event: <app>.<aggregate>.<event>,
// all lowercase, e.g. "billing.invoices.created".
func Topic(app, aggregate, name string) string {
	return strings.ToLower(strings.Join([]string{app, aggregate, name}, "."))
}

// New builds a validated CloudEvent envelope around a JSON payload.
// The event type doubles as the broker topic. The subject identifies the
// aggregate instance, and partitionKey keeps per-aggregate ordering.
func New(topic, source, subject, tenant, partitionKey string, payload any) (event.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetType(topic)
	e.SetSource(source)
	e.SetSubject(subject)
	e.SetTime(time.Now().UTC())

	if tenant != "" {
		e.SetExtension(ExtensionTenant, tenant)
	}
	if partitionKey != "" {
		e.SetExtension(ExtensionPartitionKey, partitionKey)
	}

	if payload != nil {
		if err := e.SetData(cloudevents.ApplicationJSON, payload); err != nil {
			return event.Event{}, fmt.Errorf("set event data: %w", err)
		}
	}

	if err := e.Validate(); err != nil {
		return event.Event{}, fmt.Errorf("validate event: %w", err)
	}
	return e, nil
}

// Encode serializes an event in CloudEvents structured JSON mode.
func Encode(e event.Event) ([]byte, error) {
	data, err := e.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// Decode parses structured JSON into a validated event.
func Decode(data []byte) (event.Event, error) {
	var e event.Event
	if err := e.UnmarshalJSON(data); err != nil {
		return event.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return event.Event{}, fmt.Errorf("validate decoded event: %w", err)
	}
	return e, nil
}

// Tenant returns the tenant extension, or empty when absent.
func Tenant(e event.Event) string {
	return stringExtension(e, ExtensionTenant)
}

// PartitionKey returns the partition key extension, or empty when absent.
func PartitionKey(e event.Event) string {
	return stringExtension(e, ExtensionPartitionKey)
}

func stringExtension(e event.Event, name string) string {
	raw, ok := e.Extensions()[name]
	if !ok {
		return ""
	}
	value, err := types.ToString(raw)
	if err != nil {
		return ""
	}
	return value
}
