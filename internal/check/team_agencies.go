package check

import (
	"context"
	"fmt"

	"github.com/counselops/reconcile/internal/store"
)

// TeamAgenciesName identifies the team-flag check in configuration.
const TeamAgenciesName = "team-agencies"

// TeamAgencies reports agencies incorrectly flagged as team agencies.
// The platform does not use team agencies, so any flagged row is a data
// defect. Payload type: store.Agency.
type TeamAgencies struct {
	deps    *Deps
	results ResultList
}

// NewTeamAgencies constructs the check.
func NewTeamAgencies(deps *Deps) *TeamAgencies {
	return &TeamAgencies{deps: deps}
}

// Name implements Check.
func (c *TeamAgencies) Name() string { return TeamAgenciesName }

// Run implements Check.
func (c *TeamAgencies) Run(ctx context.Context, opts Options) (bool, error) {
	deps := c.deps

	deps.Log.Info("Loading team-flagged agencies ...")
	agencies, err := deps.Rel.TeamFlaggedAgencies(ctx)
	if err != nil {
		return false, err
	}

	for _, a := range agencies {
		msg := fmt.Sprintf("Agency %d (%s) is flagged as team agency", a.ID, a.Name)
		deps.Log.Debug("%s", msg)
		c.results.Append(Result{Kind: KindTeamAgency, Message: msg, Payload: a})
	}

	return len(agencies) == 0, nil
}

// Summary implements Check.
func (c *TeamAgencies) Summary() string {
	return fmt.Sprintf("Found %d agencies flagged as team agencies", c.results.Len())
}

// Header implements Check.
func (c *TeamAgencies) Header() []string {
	return []string{"Error", "Error Type", "Agency Id", "Agency Name"}
}

// Row implements Check.
func (c *TeamAgencies) Row(r Result) []string {
	a, ok := r.Payload.(store.Agency)
	if !ok {
		return []string{r.Message, string(r.Kind), "", ""}
	}
	return []string{r.Message, string(r.Kind), fmt.Sprint(a.ID), a.Name}
}

// Results implements Check.
func (c *TeamAgencies) Results() []Result { return c.results.Snapshot() }
