package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultGRPCAddr(t *testing.T) {
	cases := map[string]string{
		ServiceBilling:    "billing:8180",
		ServiceBackoffice: "backoffice:8181",
		ServiceLedger:     "ledger:8182",
	}
	for service, want := range cases {
		if got := DefaultGRPCAddr(service); got != want {
			t.Fatalf("DefaultGRPCAddr(%q) = %q, want %q", service, got, want)
		}
	}
}

func TestGRPCPort(t *testing.T) {
	if got := GRPCPort(" billing "); got != 8180 {
		t.Fatalf("GRPCPort(billing) = %d, want 8180", got)
	}
	if got := GRPCPort(ServiceNATS); got != 0 {
		t.Fatalf("expected zero port for service without grpc, got %d", got)
	}
}

func TestDefaultHTTPAddr(t *testing.T) {
	cases := map[string]string{
		ServiceBilling:    "billing:8080",
		ServiceBackoffice: "backoffice:8081",
		ServiceLedger:     "ledger:8082",
		ServiceNATS:       "nats:4222",
		ServiceJaeger:     "jaeger:16686",
	}
	for service, want := range cases {
		if got := DefaultHTTPAddr(service); got != want {
			t.Fatalf("DefaultHTTPAddr(%q) = %q, want %q", service, got, want)
		}
	}
}

func TestOrDefaultGRPCAddr(t *testing.T) {
	if got := OrDefaultGRPCAddr(" custom:9000 ", ServiceBilling); got != "custom:9000" {
		t.Fatalf("expected explicit grpc addr to win, got %q", got)
	}
	if got := OrDefaultGRPCAddr("", ServiceBilling); got != "billing:8180" {
		t.Fatalf("expected default grpc addr, got %q", got)
	}
}

func TestOrDefaultHTTPBaseURL(t *testing.T) {
	if got := OrDefaultHTTPBaseURL(" https://billing.example.com ", ServiceBilling); got != "https://billing.example.com" {
		t.Fatalf("expected explicit base url to win, got %q", got)
	}
	if got := OrDefaultHTTPBaseURL("", ServiceLedger); got != "http://ledger:8082" {
		t.Fatalf("expected default ledger base url, got %q", got)
	}
}

func TestOrDefaultNATSURL(t *testing.T) {
	if got := OrDefaultNATSURL(" nats://broker:4333 "); got != "nats://broker:4333" {
		t.Fatalf("expected explicit nats url to win, got %q", got)
	}
	if got := OrDefaultNATSURL(""); got != "nats://nats:4222" {
		t.Fatalf("expected default nats url, got %q", got)
	}
}

func TestDiscoveryDefaultsMatchTopologyCatalog(t *testing.T) {
	grpcFromCatalog, httpFromCatalog := readTopologyPorts(t)

	for service, port := range grpcFromCatalog {
		want := fmt.Sprintf("%s:%d", service, port)
		if got := DefaultGRPCAddr(service); got != want {
			t.Fatalf("catalog grpc default mismatch for %q: got %q, want %q", service, got, want)
		}
	}
	for service, port := range httpFromCatalog {
		want := fmt.Sprintf("%s:%d", service, port)
		if got := DefaultHTTPAddr(service); got != want {
			t.Fatalf("catalog http default mismatch for %q: got %q, want %q", service, got, want)
		}
	}

	for service := range grpcPorts {
		if _, ok := grpcFromCatalog[service]; !ok {
			t.Fatalf("grpc defaults include service %q not present in topology catalog", service)
		}
	}
	for service := range httpPorts {
		if _, ok := httpFromCatalog[service]; !ok {
			t.Fatalf("http defaults include service %q not present in topology catalog", service)
		}
	}
}

func readTopologyPorts(t *testing.T) (map[string]int, map[string]int) {
	t.Helper()

	type topologyService struct {
		Name     string `json:"name"`
		GRPCPort int    `json:"grpc_port"`
		HTTPPort int    `json:"http_port"`
	}
	type topologyCatalog struct {
		Services []topologyService `json:"services"`
	}

	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("resolve caller path")
	}

	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", "..", ".."))
	data, err := os.ReadFile(filepath.Join(root, "topology", "services.json"))
	if err != nil {
		t.Fatalf("read topology/services.json: %v", err)
	}

	var parsed topologyCatalog
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("parse topology/services.json: %v", err)
	}

	grpcPortsFromCatalog := make(map[string]int, len(parsed.Services))
	httpPortsFromCatalog := make(map[string]int, len(parsed.Services))
	for _, svc := range parsed.Services {
		if svc.GRPCPort > 0 {
			grpcPortsFromCatalog[svc.Name] = svc.GRPCPort
		}
		if svc.HTTPPort > 0 {
			httpPortsFromCatalog[svc.Name] = svc.HTTPPort
		}
	}
	return grpcPortsFromCatalog, httpPortsFromCatalog
}
