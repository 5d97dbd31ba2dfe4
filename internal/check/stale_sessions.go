package check

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/counselops/reconcile/internal/store"
)

// StaleSessionsName identifies the stale unanswered-sessions check in
// configuration.
const StaleSessionsName = "stale-sessions"

// DefaultStaleAfter is the age at which an unanswered session counts as
// stale.
const DefaultStaleAfter = 14 * 24 * time.Hour

// StaleSessions reports agencies with open or pending sessions older
// than the configured threshold. Results are grouped per agency, not per
// session, because that is how the backlog is worked off. Payload type:
// store.AgencyBacklog.
type StaleSessions struct {
	deps    *Deps
	results ResultList
}

// NewStaleSessions constructs the check.
func NewStaleSessions(deps *Deps) *StaleSessions {
	return &StaleSessions{deps: deps}
}

// Name implements Check.
func (c *StaleSessions) Name() string { return StaleSessionsName }

func (c *StaleSessions) staleAfter() time.Duration {
	if c.deps.StaleAfter > 0 {
		return c.deps.StaleAfter
	}
	return DefaultStaleAfter
}

// Run implements Check.
func (c *StaleSessions) Run(ctx context.Context, opts Options) (bool, error) {
	deps := c.deps
	cutoff := deps.now().Add(-c.staleAfter())

	deps.Log.Info("Loading agencies with unanswered sessions older than %s ...", c.staleAfter())
	backlogs, err := deps.Rel.StaleSessionBacklogs(ctx, cutoff)
	if err != nil {
		return false, err
	}

	for _, b := range backlogs {
		msg := fmt.Sprintf("Agency %d (%s) has %d unanswered sessions", b.AgencyID, b.AgencyName, b.Unanswered)
		deps.Log.Debug("%s", msg)
		c.results.Append(Result{Kind: KindLongUnanswered, Message: msg, Payload: b})
	}

	return len(backlogs) == 0, nil
}

// Summary implements Check.
func (c *StaleSessions) Summary() string {
	total := 0
	for _, r := range c.results.Snapshot() {
		if b, ok := r.Payload.(store.AgencyBacklog); ok {
			total += b.Unanswered
		}
	}
	return fmt.Sprintf("Found %d agencies with %d sessions unanswered for more than %s",
		c.results.Len(), total, c.staleAfter())
}

// Header implements Check.
func (c *StaleSessions) Header() []string {
	return []string{"Error", "Error Type", "Agency Id", "Agency Name", "Unanswered", "Session Ids", "Room Ids"}
}

// Row implements Check.
func (c *StaleSessions) Row(r Result) []string {
	b, ok := r.Payload.(store.AgencyBacklog)
	if !ok {
		return []string{r.Message, string(r.Kind), "", "", "", "", ""}
	}
	return []string{
		r.Message,
		string(r.Kind),
		fmt.Sprint(b.AgencyID),
		b.AgencyName,
		fmt.Sprint(b.Unanswered),
		joinInt64(b.SessionIDs),
		strings.Join(b.RoomIDs, ","),
	}
}

// Results implements Check.
func (c *StaleSessions) Results() []Result { return c.results.Snapshot() }

func joinInt64(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
