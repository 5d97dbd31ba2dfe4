// Package runner wires the configured checks together: it resolves the
// check names from configuration against the registry, runs them in
// order, and hands the findings of failed checks to the report sinks.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/counselops/reconcile/internal/check"
	"github.com/counselops/reconcile/internal/logging"
	"github.com/counselops/reconcile/internal/report"
)

// Constructor builds one check from the shared dependencies.
type Constructor func(deps *check.Deps) check.Check

// Registry maps check names to constructors. Registration order is the
// default execution order.
type Registry struct {
	order  []string
	byName map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Constructor)}
}

// Register adds a named check constructor.
func (r *Registry) Register(name string, c Constructor) error {
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("check %q already registered", name)
	}
	r.order = append(r.order, name)
	r.byName[name] = c
	return nil
}

// Names returns all registered check names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve validates the configured names against the registry. Unknown
// names fail here, before anything connects or runs. An empty list
// means all registered checks.
func (r *Registry) Resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		return r.Names(), nil
	}
	var unknown []string
	for _, name := range names {
		if _, ok := r.byName[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown checks configured: %v (known: %v)", unknown, r.Names())
	}
	return names, nil
}

// Default returns a registry with all built-in checks.
func Default() *Registry {
	r := NewRegistry()
	r.Register(check.ChatToIdentityName, func(d *check.Deps) check.Check { return check.NewChatToIdentity(d) })
	r.Register(check.IdentityToChatName, func(d *check.Deps) check.Check { return check.NewIdentityToChat(d) })
	r.Register(check.StaleSessionsName, func(d *check.Deps) check.Check { return check.NewStaleSessions(d) })
	r.Register(check.TeamAgenciesName, func(d *check.Deps) check.Check { return check.NewTeamAgencies(d) })
	r.Register(check.EventVolumeName, func(d *check.Deps) check.Check { return check.NewEventVolume(d) })
	return r
}

// Runner executes checks and dispatches their findings.
type Runner struct {
	Registry *Registry
	Deps     *check.Deps
	Sink     report.Sink
	Log      *logging.Logger
}

// Run executes the named checks in order and reports true when every
// check passed. A check returning an error aborts the run; later checks
// do not start. Sink failures are logged and never abort.
func (r *Runner) Run(ctx context.Context, names []string, opts check.Options) (bool, error) {
	resolved, err := r.Registry.Resolve(names)
	if err != nil {
		return false, err
	}

	clean := true
	for _, name := range resolved {
		c := r.Registry.byName[name](r.Deps)

		r.Log.Info("Running check %s ...", name)
		started := r.now()
		ok, err := c.Run(ctx, opts)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", name, err)
		}
		if ok {
			r.Log.Success("Check %s passed", name)
			continue
		}

		clean = false
		r.Log.Error("Check %s failed: %s", name, c.Summary())
		r.dispatch(ctx, c, started)
	}
	return clean, nil
}

// dispatch ships a failed check's findings to the sinks. Every sink is
// attempted; a broken sink must never cost the findings of the others.
func (r *Runner) dispatch(ctx context.Context, c check.Check, started time.Time) {
	results := c.Results()
	messages := make([]string, len(results))
	for i, res := range results {
		messages[i] = res.Message
	}

	s := report.Summary{
		Check:       c.Name(),
		Headline:    c.Summary(),
		Passed:      false,
		Started:     started,
		Finished:    r.now(),
		Correlation: uuid.NewString(),
		Messages:    messages,
	}

	if w, err := r.Sink.OpenResultFile(c.Name()); err != nil {
		r.Log.Error("Opening result file for %s: %v", c.Name(), err)
	} else if w != nil {
		if err := writeRows(w, c, results); err != nil {
			r.Log.Error("Writing result file for %s: %v", c.Name(), err)
		}
	}

	if err := r.Sink.Notify(ctx, s); err != nil {
		r.Log.Error("Notifying about %s: %v", c.Name(), err)
	}
	if err := r.Sink.Index(ctx, s, results); err != nil {
		r.Log.Error("Indexing findings of %s: %v", c.Name(), err)
	}
}

func (r *Runner) now() time.Time {
	if r.Deps.Now != nil {
		return r.Deps.Now()
	}
	return time.Now()
}

func writeRows(w report.RowWriter, c check.Check, results []check.Result) error {
	if err := w.Write(c.Header()); err != nil {
		w.Close()
		return err
	}
	for _, res := range results {
		if err := w.Write(c.Row(res)); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
