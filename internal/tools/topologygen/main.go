// Command topologygen renders local-dev artifacts from the service
// topology catalog. The catalog is the single source of truth for service
// names and ports: internal/platform/discovery is tested against it, and
// the rendered compose fragment keeps container environments on the same
// conventions.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/momentum-oss/momentum/internal/platform/config"
)

type service struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	GRPCPort    int    `json:"grpc_port"`
	HTTPPort    int    `json:"http_port"`
}

type catalog struct {
	Services []service `json:"services"`
}

func main() {
	catalogPath := flag.String("catalog", filepath.Join("topology", "services.json"), "Path to the topology catalog")
	outDir := flag.String("out", filepath.Join("topology", "generated"), "Directory for rendered artifacts")
	flag.Parse()

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		config.Exitf("read catalog: %v", err)
	}
	parsed, err := parseCatalog(data)
	if err != nil {
		config.Exitf("parse catalog: %v", err)
	}
	if err := validateCatalog(parsed); err != nil {
		config.Exitf("validate catalog: %v", err)
	}

	compose, err := renderComposeDiscovery(parsed)
	if err != nil {
		config.Exitf("render compose discovery: %v", err)
	}
	ports, err := renderPortsTable(parsed)
	if err != nil {
		config.Exitf("render ports table: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		config.Exitf("create output dir: %v", err)
	}
	outputs := map[string]string{
		"docker-compose.discovery.generated.yml": compose,
		"ports.generated.md":                     ports,
	}
	for name, content := range outputs {
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			config.Exitf("write %s: %v", path, err)
		}
		log.Printf("wrote %s", path)
	}
}

// parseCatalog decodes the catalog document and rejects content after it,
// so a stray paste into the file fails loudly instead of being ignored.
func parseCatalog(data []byte) (catalog, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var parsed catalog
	if err := decoder.Decode(&parsed); err != nil {
		return catalog{}, fmt.Errorf("parse topology catalog: %w", err)
	}
	if decoder.More() {
		return catalog{}, fmt.Errorf("parse topology catalog: trailing content after catalog document")
	}
	return parsed, nil
}

// validateCatalog rejects catalogs that would produce ambiguous discovery
// conventions: duplicate service names (after hostname normalization) and
// port numbers claimed by more than one endpoint. Everything binds on one
// host in local dev, so ports share a single namespace.
func validateCatalog(parsed catalog) error {
	if len(parsed.Services) == 0 {
		return fmt.Errorf("catalog declares no services")
	}

	names := map[string]string{}
	ports := map[int]string{}
	for _, svc := range parsed.Services {
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			return fmt.Errorf("catalog service with empty name")
		}
		normalized := normalizeName(name)
		if previous, ok := names[normalized]; ok {
			return fmt.Errorf("duplicate service name %q collides with %q", name, previous)
		}
		names[normalized] = name

		if svc.GRPCPort <= 0 && svc.HTTPPort <= 0 {
			return fmt.Errorf("service %q declares no ports", name)
		}
		for _, port := range []int{svc.GRPCPort, svc.HTTPPort} {
			if port <= 0 {
				continue
			}
			if owner, ok := ports[port]; ok {
				return fmt.Errorf("service %q claims port %d already assigned to %q", name, port, owner)
			}
			ports[port] = name
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

// renderComposeDiscovery renders the x-momentum-discovery fragment merged
// into docker-compose invocations. Output is sorted by service name so
// reruns never churn the generated file.
func renderComposeDiscovery(parsed catalog) (string, error) {
	services := sortedServices(parsed)

	var out strings.Builder
	out.WriteString("# Code generated by topologygen from topology/services.json. DO NOT EDIT.\n")
	out.WriteString("x-momentum-discovery:\n")
	for _, svc := range services {
		if svc.GRPCPort > 0 {
			fmt.Fprintf(&out, "  %s_grpc_addr: %s:%d\n", normalizeKey(svc.Name), svc.Name, svc.GRPCPort)
		}
		if svc.HTTPPort > 0 {
			fmt.Fprintf(&out, "  %s_http_addr: %s:%d\n", normalizeKey(svc.Name), svc.Name, svc.HTTPPort)
		}
	}
	return out.String(), nil
}

// renderPortsTable renders the service/port reference table for docs.
func renderPortsTable(parsed catalog) (string, error) {
	services := sortedServices(parsed)

	var out strings.Builder
	out.WriteString("<!-- Code generated by topologygen from topology/services.json. DO NOT EDIT. -->\n\n")
	out.WriteString("| Service | Description | gRPC | HTTP |\n")
	out.WriteString("| --- | --- | --- | --- |\n")
	for _, svc := range services {
		fmt.Fprintf(&out, "| %s | %s | %s | %s |\n",
			svc.Name, svc.Description, portCell(svc.GRPCPort), portCell(svc.HTTPPort))
	}
	return out.String(), nil
}

func sortedServices(parsed catalog) []service {
	services := make([]service, len(parsed.Services))
	copy(services, parsed.Services)
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services
}

func normalizeKey(name string) string {
	return strings.ReplaceAll(normalizeName(name), "-", "_")
}

func portCell(port int) string {
	if port <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", port)
}
