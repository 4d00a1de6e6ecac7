package jobs

import (
	"fmt"
	"strings"

	"github.com/momentum-oss/momentum/internal/platform/config"
)

// TenantScenario configures simulated billing traffic for one tenant.
type TenantScenario struct {
	Tenant         string `yaml:"tenant"`
	CashierName    string `yaml:"cashier_name"`
	CashierEmail   string `yaml:"cashier_email"`
	Currency       string `yaml:"currency"`
	MinAmountCents int64  `yaml:"min_amount_cents"`
	MaxAmountCents int64  `yaml:"max_amount_cents"`
}

// Scenario configures the payment simulator.
type Scenario struct {
	Schedule string           `yaml:"schedule"`
	Tenants  []TenantScenario `yaml:"tenants"`
}

// DefaultScenario returns the built-in single-tenant scenario.
func DefaultScenario() Scenario {
	return Scenario{
		Schedule: DefaultSimulatorSchedule,
		Tenants: []TenantScenario{{
			Tenant:         "default",
			CashierName:    "Simulated Cashier",
			CashierEmail:   "simulator@momentum.local",
			Currency:       "USD",
			MinAmountCents: 1000,
			MaxAmountCents: 25000,
		}},
	}
}

// LoadScenario reads a YAML scenario file, falling back to defaults for
// a missing file or omitted fields.
func LoadScenario(path string) (Scenario, error) {
	var scenario Scenario
	if strings.TrimSpace(path) != "" {
		if err := config.LoadYAML(path, &scenario); err != nil {
			return Scenario{}, err
		}
	}
	return scenario.normalized(), nil
}

func (s Scenario) normalized() Scenario {
	defaults := DefaultScenario()
	if strings.TrimSpace(s.Schedule) == "" {
		s.Schedule = defaults.Schedule
	}
	if len(s.Tenants) == 0 {
		s.Tenants = defaults.Tenants
	}
	for i := range s.Tenants {
		tenant := &s.Tenants[i]
		tenant.Tenant = strings.TrimSpace(tenant.Tenant)
		if tenant.Tenant == "" {
			tenant.Tenant = defaults.Tenants[0].Tenant
		}
		if strings.TrimSpace(tenant.CashierName) == "" {
			tenant.CashierName = defaults.Tenants[0].CashierName
		}
		if strings.TrimSpace(tenant.CashierEmail) == "" {
			tenant.CashierEmail = fmt.Sprintf("simulator@%s.momentum.local", tenant.Tenant)
		}
		if strings.TrimSpace(tenant.Currency) == "" {
			tenant.Currency = defaults.Tenants[0].Currency
		}
		if tenant.MinAmountCents <= 0 {
			tenant.MinAmountCents = defaults.Tenants[0].MinAmountCents
		}
		if tenant.MaxAmountCents < tenant.MinAmountCents {
			tenant.MaxAmountCents = tenant.MinAmountCents
		}
	}
	return s
}
