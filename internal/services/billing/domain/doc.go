// Package domain holds the billing service's cashier and invoice aggregates
// and the integration event contracts they publish. Consumers in other
// services import this package for event payloads and topic names.
package domain
