// Package momentum runs the full local stack as one supervised process
// tree: it spawns the billing, backoffice, and ledger service binaries,
// gates the event consumers on billing's gRPC health endpoint, and fans
// shutdown signals out to every child.
package momentum

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	entrypoint "github.com/momentum-oss/momentum/internal/platform/cmd"
	"github.com/momentum-oss/momentum/internal/platform/discovery"
	platformgrpc "github.com/momentum-oss/momentum/internal/platform/grpc"
)

// Config holds dev host configuration.
type Config struct {
	// BinDir locates the service binaries. Empty resolves to the
	// directory holding the running executable.
	BinDir          string        `env:"MOMENTUM_HOST_BIN_DIR"`
	BillingGRPCAddr string        `env:"MOMENTUM_HOST_BILLING_GRPC_ADDR"`
	HealthTimeout   time.Duration `env:"MOMENTUM_HOST_HEALTH_TIMEOUT" envDefault:"30s"`
	GracePeriod     time.Duration `env:"MOMENTUM_HOST_GRACE_PERIOD" envDefault:"10s"`
	LedgerEnabled   bool          `env:"MOMENTUM_HOST_LEDGER" envDefault:"true"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.BinDir, "bin-dir", cfg.BinDir, "Directory holding the service binaries (empty uses the host binary's directory)")
	fs.StringVar(&cfg.BillingGRPCAddr, "billing-grpc-addr", cfg.BillingGRPCAddr, "Billing health gRPC address the gate dials")
	fs.DurationVar(&cfg.HealthTimeout, "health-timeout", cfg.HealthTimeout, "How long to wait for billing to report healthy")
	fs.DurationVar(&cfg.GracePeriod, "grace-period", cfg.GracePeriod, "Grace period before forcing child exit")
	fs.BoolVar(&cfg.LedgerEnabled, "ledger", cfg.LedgerEnabled, "Run the ledger actor service")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ExitError reports the child whose exit brought the stack down.
type ExitError struct {
	Name string
	Code int
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
}

// childProcess describes a managed child command.
type childProcess struct {
	name string
	cmd  *exec.Cmd
}

// processExit reports a child process exit result.
type processExit struct {
	name string
	err  error
}

// Run spawns the stack and supervises it until ctx is cancelled or a
// child exits. A child exit is returned as an *ExitError carrying the
// child's exit code so callers can propagate it.
func Run(ctx context.Context, cfg Config) error {
	binDir, err := resolveBinDir(cfg.BinDir)
	if err != nil {
		return err
	}

	names := serviceNames(cfg)
	exitCh := make(chan processExit, len(names))

	billing, err := startChild(names[0], binDir)
	if err != nil {
		return err
	}
	children := []*childProcess{billing}
	go waitChild(billing, exitCh)

	// Backoffice and ledger consume billing's event stream. Holding
	// them back until billing reports healthy keeps their first pull
	// from racing the schema migrations billing applies on boot.
	if err := awaitBillingHealth(ctx, billingGateAddr(cfg), cfg.HealthTimeout, exitCh); err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			terminateChildren(children)
			waitForChildren(exitCh, len(children), cfg.GracePeriod, children)
		}
		return err
	}

	for _, name := range names[1:] {
		child, err := startChild(name, binDir)
		if err != nil {
			terminateChildren(children)
			waitForChildren(exitCh, len(children), cfg.GracePeriod, children)
			return err
		}
		children = append(children, child)
		go waitChild(child, exitCh)
	}
	log.Printf("stack up: %s", strings.Join(names, ", "))

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
		terminateChildren(children)
		waitForChildren(exitCh, len(children), cfg.GracePeriod, children)
		return nil
	case exit := <-exitCh:
		log.Printf("%s exited: %v", exit.name, exit.err)
		terminateChildren(children)
		waitForChildren(exitCh, len(children)-1, cfg.GracePeriod, children)
		return &ExitError{Name: exit.name, Code: exitCode(exit.err)}
	}
}

// serviceNames lists the children in start order. Billing comes first
// because the rest of the stack gates on its health endpoint.
func serviceNames(cfg Config) []string {
	names := []string{entrypoint.ServiceBilling, entrypoint.ServiceBackoffice}
	if cfg.LedgerEnabled {
		names = append(names, entrypoint.ServiceLedger)
	}
	return names
}

// billingGateAddr picks the address the health gate dials. Children run
// on this host, so the default uses localhost rather than the in-network
// service hostname.
func billingGateAddr(cfg Config) string {
	if addr := strings.TrimSpace(cfg.BillingGRPCAddr); addr != "" {
		return addr
	}
	return fmt.Sprintf("localhost:%d", discovery.GRPCPort(discovery.ServiceBilling))
}

// resolveBinDir defaults the binary directory to the running
// executable's directory so `go build -o bin/ ./cmd/...` just works.
func resolveBinDir(configured string) (string, error) {
	if dir := strings.TrimSpace(configured); dir != "" {
		return dir, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate service binaries: %w", err)
	}
	return filepath.Dir(exe), nil
}

// startChild starts a service binary with inherited stdio streams. The
// child also inherits this process's environment, so MOMENTUM_* settings
// flow through to every service.
func startChild(name, binDir string) (*childProcess, error) {
	cmd := exec.Command(filepath.Join(binDir, name))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return &childProcess{name: name, cmd: cmd}, nil
}

// awaitBillingHealth blocks until billing's health endpoint serves. A
// billing exit during the wait short-circuits as an *ExitError instead
// of letting the gate run out its full timeout.
func awaitBillingHealth(ctx context.Context, addr string, timeout time.Duration, exitCh <-chan processExit) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialErr := make(chan error, 1)
	go func() {
		conn, err := platformgrpc.DialWithHealth(dialCtx, nil, addr, timeout, log.Printf, platformgrpc.DefaultClientDialOptions()...)
		if err == nil {
			err = conn.Close()
		}
		dialErr <- err
	}()

	select {
	case err := <-dialErr:
		if err != nil {
			return fmt.Errorf("billing health gate at %s: %w", addr, err)
		}
		log.Printf("billing healthy at %s", addr)
		return nil
	case exit := <-exitCh:
		cancel()
		<-dialErr
		log.Printf("%s exited before passing the health gate: %v", exit.name, exit.err)
		return &ExitError{Name: exit.name, Code: exitCode(exit.err)}
	}
}

// waitChild waits for a child process and reports its exit.
func waitChild(child *childProcess, exitCh chan<- processExit) {
	err := child.cmd.Wait()
	exitCh <- processExit{name: child.name, err: err}
}

// terminateChildren sends SIGTERM to all child processes.
func terminateChildren(children []*childProcess) {
	for _, child := range children {
		if child == nil || child.cmd == nil || child.cmd.Process == nil {
			continue
		}
		_ = child.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// waitForChildren waits for the remaining exits or forces shutdown.
func waitForChildren(exitCh <-chan processExit, remaining int, timeout time.Duration, children []*childProcess) {
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for remaining > 0 {
		select {
		case <-exitCh:
			remaining--
		case <-timer.C:
			forceKill(children)
			return
		}
	}
}

// forceKill sends SIGKILL to any child still running.
func forceKill(children []*childProcess) {
	for _, child := range children {
		if child == nil || child.cmd == nil || child.cmd.Process == nil {
			continue
		}
		if child.cmd.ProcessState != nil {
			continue
		}
		_ = child.cmd.Process.Kill()
	}
}

// exitCode derives a process exit code from a wait error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return 1
}
