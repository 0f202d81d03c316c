package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/metrics"
)

// Executor runs the external scanner for a validated target and profile.
// The command is always `<binary> <profile args> -oX - <target>`; nothing
// caller-supplied other than the validated target reaches the argv.
type Executor struct {
	binary    string
	validator *Validator
	logger    *logging.Logger
}

// NewExecutor creates an executor for the given scanner binary name or
// path. An empty binary defaults to "nmap".
func NewExecutor(binary string, validator *Validator) *Executor {
	if binary == "" {
		binary = "nmap"
	}
	return &Executor{
		binary:    binary,
		validator: validator,
		logger:    logging.Default().WithComponent("executor"),
	}
}

// Binary returns the configured scanner binary.
func (e *Executor) Binary() string {
	return e.binary
}

// Available reports whether the scanner binary is resolvable.
func (e *Executor) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Command builds the full argv for a target and profile.
func (e *Executor) Command(target string, profile Profile) ([]string, error) {
	spec, ok := profile.Spec()
	if !ok {
		return nil, fmt.Errorf("unknown scan profile %q", profile)
	}
	argv := make([]string, 0, len(spec.Args)+4)
	argv = append(argv, e.binary)
	argv = append(argv, spec.Args...)
	argv = append(argv, "-oX", "-", target)
	return argv, nil
}

// Execute runs one scan. The call blocks until the process exits, the
// profile timeout expires, or ctx is canceled. On timeout the process is
// forcibly terminated.
func (e *Executor) Execute(ctx context.Context, target string, profile Profile) ExecutionResult {
	start := time.Now()

	spec, ok := profile.Spec()
	if !ok {
		return ExecutionResult{
			Status:       ExecutionError,
			Elapsed:      time.Since(start),
			ErrorMessage: fmt.Sprintf("unknown scan profile %q", profile),
		}
	}

	binaryPath, err := exec.LookPath(e.binary)
	if err != nil {
		return ExecutionResult{
			Status:       ExecutionToolNotFound,
			Elapsed:      time.Since(start),
			ErrorMessage: fmt.Sprintf("scanner binary %q not found on system", e.binary),
		}
	}

	// Defense in depth: re-validate even though the lifecycle manager
	// already did.
	validation := e.validator.Validate(ctx, target)
	if !validation.IsValid {
		return ExecutionResult{
			Status:       ExecutionInvalidTarget,
			Elapsed:      time.Since(start),
			ErrorMessage: fmt.Sprintf("invalid target: %s", validation.Message),
		}
	}

	argv, err := e.Command(target, profile)
	if err != nil {
		return ExecutionResult{
			Status:       ExecutionError,
			Elapsed:      time.Since(start),
			ErrorMessage: err.Error(),
		}
	}
	commandLine := strings.Join(argv, " ")

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, binaryPath, argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.InfoScan("executing scan", target, "profile", profile, "command", commandLine)
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		e.logger.ErrorScan("scan timed out", target, runCtx.Err(), "elapsed", elapsed)
		metrics.Global().IncrementScanErrors(string(profile), "TIMEOUT")
		return ExecutionResult{
			Status:       ExecutionTimeout,
			Elapsed:      elapsed,
			CommandLine:  commandLine,
			ErrorMessage: fmt.Sprintf("scan timed out after %s", spec.Timeout),
		}
	}

	result := ExecutionResult{
		RawOutput:   stdout.Bytes(),
		Stderr:      stderr.String(),
		Elapsed:     elapsed,
		CommandLine: commandLine,
	}

	if runErr == nil {
		result.Status = ExecutionSuccess
		result.ExitCode = 0
		e.logger.InfoScan("scan completed", target, "elapsed", elapsed)
		metrics.Global().RecordScanDuration(string(profile), elapsed)
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		// Partial stdout is preserved; callers decide whether it is usable.
		result.Status = ExecutionError
		result.ExitCode = exitErr.ExitCode()
		result.ErrorMessage = fmt.Sprintf("scanner exited with code %d: %s",
			exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		e.logger.ErrorScan("scan exited non-zero", target, runErr, "exit_code", exitErr.ExitCode())
		metrics.Global().IncrementScanErrors(string(profile), "EXECUTION_FAILED")
		return result
	}

	result.Status = ExecutionError
	result.ExitCode = -1
	result.ErrorMessage = fmt.Sprintf("scan execution failed: %v", runErr)
	e.logger.ErrorScan("scan execution failed", target, runErr)
	metrics.Global().IncrementScanErrors(string(profile), "EXECUTION_FAILED")
	return result
}

// Version runs the scanner's version probe with a short timeout, used by
// readiness diagnostics.
func (e *Executor) Version(ctx context.Context) (string, error) {
	binaryPath, err := exec.LookPath(e.binary)
	if err != nil {
		return "", fmt.Errorf("scanner binary %q not found: %w", e.binary, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, binaryPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("version probe failed: %w", err)
	}

	firstLine, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return firstLine, nil
}
