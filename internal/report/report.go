// Package report collects the outcome of every action in a run and sends
// one alert when something failed.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"

	"github.com/nibzard/borg-summon/internal/config"
	"github.com/nibzard/borg-summon/internal/hooks"
	"github.com/nibzard/borg-summon/internal/layered"
	"github.com/nibzard/borg-summon/internal/runner"
)

// Result is the outcome of one action on one target.
type Result struct {
	Action string
	Target []string
	Err    error
}

// String renders the result as the tab-separated line used in alert bodies:
// action, comma-joined target, then success or fail and the error.
func (r Result) String() string {
	line := r.Action + "\t" + strings.Join(r.Target, ",")
	if r.Err == nil {
		return line + "\tsuccess"
	}
	return line + "\tfail\t" + r.Err.Error()
}

// Reporter is the report context of one run. It is safe for concurrent use.
type Reporter struct {
	logger *log.Logger
	// Hostname names the machine in the alert header.
	Hostname func() (string, error)

	mu        sync.Mutex
	successes int
	failures  []Result
	sent      bool
}

// New returns an empty reporter that logs each result to logger.
func New(logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Reporter{logger: logger, Hostname: os.Hostname}
}

// Success records a successful action.
func (r *Reporter) Success(action string, target ...string) {
	res := Result{Action: action, Target: target}
	r.mu.Lock()
	r.successes++
	r.mu.Unlock()
	r.logger.Info(res.Action, "target", strings.Join(res.Target, ","), "result", "success")
}

// Failure records a failed action. A nil err is recorded as an unknown error.
func (r *Reporter) Failure(action string, err error, target ...string) {
	if err == nil {
		err = errors.New("unknown error")
	}
	res := Result{Action: action, Target: target, Err: err}
	r.mu.Lock()
	r.failures = append(r.failures, res)
	r.mu.Unlock()
	r.logger.Error(res.Action, "target", strings.Join(res.Target, ","), "result", "fail", "err", res.Err)
}

// Failures returns the recorded failures in order.
func (r *Reporter) Failures() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.failures...)
}

// Successes is the number of successful actions.
func (r *Reporter) Successes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes
}

// Err combines every failure into one error, or returns nil.
func (r *Reporter) Err() error {
	var err error
	for _, f := range r.Failures() {
		err = multierr.Append(err, fmt.Errorf("%s %s: %w", f.Action, strings.Join(f.Target, ","), f.Err))
	}
	return err
}

// Header is the first line of an alert for n failures.
func Header(hostname string, n int) string {
	return fmt.Sprintf("borg-summon @ %s - %d errors occurred", hostname, n)
}

// Body lists the failures, one per line.
func Body(failures []Result) string {
	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = f.String()
	}
	return fmt.Sprintf("Here follows a summary of the errors. For more information, check your logs.\n\n%s\n",
		strings.Join(lines, "\n"))
}

// Send runs the alert_hook of root with the header and body as its last two
// arguments. Nothing is sent when there are no failures, when root has no
// alert_hook, or when Send already ran.
func (r *Reporter) Send(ctx context.Context, root config.Tree, run runner.Runner) error {
	failures := r.Failures()
	r.mu.Lock()
	sent := r.sent
	r.mu.Unlock()
	if sent || len(failures) == 0 {
		return nil
	}
	if _, ok := root[hooks.Alert]; !ok {
		r.logger.Debug("no alert hook configured", "failures", len(failures))
		return nil
	}

	view, err := layered.New(root, hooks.Alert)
	if err != nil {
		return fmt.Errorf("alert hook: %w", err)
	}
	hostname, err := r.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	r.mu.Lock()
	r.sent = true
	r.mu.Unlock()
	if err := hooks.Run(ctx, run, view, Header(hostname, len(failures)), Body(failures)); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	r.logger.Info("alert sent", "failures", len(failures))
	return nil
}
