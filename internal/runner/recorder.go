package runner

import (
	"context"
	"sync"
)

// Recorder is a Runner that stores invocations instead of running them.
type Recorder struct {
	// Fail, when set, decides the result of each recorded invocation.
	Fail func(inv Invocation) error

	mu    sync.Mutex
	calls []Invocation
}

var _ Runner = (*Recorder)(nil)

// Run records inv.
func (r *Recorder) Run(_ context.Context, inv Invocation) error {
	r.mu.Lock()
	r.calls = append(r.calls, cloneInvocation(inv))
	r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail(inv)
	}
	return nil
}

// Calls returns the recorded invocations in order.
func (r *Recorder) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.calls...)
}

// Argvs returns the command line of every recorded invocation.
func (r *Recorder) Argvs() [][]string {
	calls := r.Calls()
	out := make([][]string, len(calls))
	for i, inv := range calls {
		out[i] = inv.Argv()
	}
	return out
}

func cloneInvocation(inv Invocation) Invocation {
	out := inv
	out.Args = append([]string(nil), inv.Args...)
	out.Secrets = append([]string(nil), inv.Secrets...)
	if inv.Env != nil {
		out.Env = make(map[string]string, len(inv.Env))
		for k, v := range inv.Env {
			out.Env[k] = v
		}
	}
	return out
}
