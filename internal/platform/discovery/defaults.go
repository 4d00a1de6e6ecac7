// Package discovery centralizes internal service-discovery conventions.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceBilling is the billing REST API service identity.
	ServiceBilling = "billing"
	// ServiceBackoffice is the back-office worker service identity.
	ServiceBackoffice = "backoffice"
	// ServiceLedger is the ledger actor service identity.
	ServiceLedger = "ledger"
	// ServiceNATS is the NATS JetStream broker identity.
	ServiceNATS = "nats"
	// ServiceJaeger is the jaeger trace UI identity.
	ServiceJaeger = "jaeger"
)

// gRPC ports carry the health endpoints; HTTP ports carry the REST APIs.
var grpcPorts = map[string]int{
	ServiceBilling:    8180,
	ServiceBackoffice: 8181,
	ServiceLedger:     8182,
}

var httpPorts = map[string]int{
	ServiceBilling:    8080,
	ServiceBackoffice: 8081,
	ServiceLedger:     8082,
	ServiceNATS:       4222,
	ServiceJaeger:     16686,
}

// DefaultGRPCAddr returns the canonical in-network gRPC address for a service.
func DefaultGRPCAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), grpcPorts)
}

// GRPCPort returns the conventional gRPC port for a service, or zero when the
// service has no gRPC endpoint. Callers that run services outside the compose
// network combine it with their own host.
func GRPCPort(service string) int {
	return grpcPorts[strings.TrimSpace(service)]
}

// DefaultHTTPAddr returns the canonical in-network HTTP address for a service.
func DefaultHTTPAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), httpPorts)
}

// OrDefaultGRPCAddr returns value when set, otherwise the service convention.
func OrDefaultGRPCAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultGRPCAddr(service)
}

// OrDefaultHTTPAddr returns value when set, otherwise the service convention.
func OrDefaultHTTPAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultHTTPAddr(service)
}

// OrDefaultHTTPBaseURL returns value when set, otherwise http://<service-host:port>.
func OrDefaultHTTPBaseURL(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	addr := DefaultHTTPAddr(service)
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// OrDefaultNATSURL returns value when set, otherwise nats://<broker convention>.
func OrDefaultNATSURL(value string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	addr := DefaultHTTPAddr(ServiceNATS)
	if addr == "" {
		return ""
	}
	return "nats://" + addr
}

func defaultAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return service + ":" + strconv.Itoa(port)
}
