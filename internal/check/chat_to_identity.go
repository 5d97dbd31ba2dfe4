package check

import (
	"context"
	"fmt"

	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/scanner"
)

// ChatToIdentityName identifies the chat→identity-provider direction
// check in configuration.
const ChatToIdentityName = "chat-to-identity"

// OrphanedUser is the payload of a ChatToIdentity result: a chat user
// with no (or no unique) identity-provider record. The subscription
// counts are captured at classification time for the repair engine.
type OrphanedUser struct {
	UserID        string
	Username      string
	Decoded       string
	Subscriptions int
	OwnedRooms    int
}

// ChatToIdentity walks all chat users carrying the external-identity
// link flag and classifies each against a full in-memory index of the
// identity provider: zero matches is an orphaned account, more than one
// an ambiguous identity. In repair mode the orphaned accounts are handed
// to the repair engine after the scan completes.
type ChatToIdentity struct {
	deps    *Deps
	results ResultList
}

// NewChatToIdentity constructs the check.
func NewChatToIdentity(deps *Deps) *ChatToIdentity {
	return &ChatToIdentity{deps: deps}
}

// Name implements Check.
func (c *ChatToIdentity) Name() string { return ChatToIdentityName }

// Run implements Check.
func (c *ChatToIdentity) Run(ctx context.Context, opts Options) (bool, error) {
	deps := c.deps
	s := deps.scan()

	deps.Log.Info("Building identity index ...")
	idx, err := identity.BuildIndex(ctx, deps.Identity, identity.IndexOptions{
		PageSize:    s.IndexPageSize,
		Parallelism: s.IndexParallelism,
		Progress: func(done, total int64) {
			deps.Log.Process("Indexing identity users: %d/%d", done, total)
		},
	})
	deps.Log.Finish()
	if err != nil {
		return false, fmt.Errorf("building identity index: %w", err)
	}
	deps.Log.Info("Indexed %d usernames (%d identity records)", idx.Size(), idx.Total())

	total, err := deps.Docs.CountUsers(ctx, true)
	if err != nil {
		return false, fmt.Errorf("counting linked chat users: %w", err)
	}
	total = clampTotal(total, opts)
	deps.Log.Info("Checking %d chat users ...", max(total-opts.Skip, 0))

	progress := scanner.NewProgress(func(done int64) {
		deps.Log.Process("Checking chat users: %d/%d", int(done)+opts.Skip, total)
	})

	err = scanner.Scan(ctx, total, s.ChunkSize, s.Parallelism, opts.Skip, func(ctx context.Context, chunk int) error {
		first, pageMax := scanner.Window(opts.Skip, chunk, s.ChunkSize)
		if first+pageMax > total {
			pageMax = total - first
		}
		users, err := deps.Docs.ListUsersPage(ctx, true, pageMax, first)
		if err != nil {
			return fmt.Errorf("listing chat users at offset %d: %w", first, err)
		}

		for _, u := range users {
			progress.Add()

			matches := idx.Count(u.Username)
			if matches == 1 {
				continue
			}

			subs, owned, err := deps.Docs.SubscriptionCounts(ctx, u.ID)
			if err != nil {
				return fmt.Errorf("loading subscription counts for %s: %w", u.ID, err)
			}

			decoded := identity.DecodeUsername(u.Username)
			kind := KindNotFound
			msg := fmt.Sprintf("User not found in identity provider: %s / %s / %s", decoded, u.Username, u.ID)
			if matches > 1 {
				kind = KindMultipleFound
				msg = fmt.Sprintf("Multiple identity records found for: %s / %s / %s", decoded, u.Username, u.ID)
			}
			deps.Log.Debug("%s (subscriptions: %d, owned: %d)", msg, subs, owned)

			c.results.Append(Result{
				Kind:    kind,
				Message: msg,
				Payload: &OrphanedUser{
					UserID:        u.ID,
					Username:      u.Username,
					Decoded:       decoded,
					Subscriptions: subs,
					OwnedRooms:    owned,
				},
			})
		}
		return nil
	})
	deps.Log.Finish()
	if err != nil {
		return false, err
	}

	passed := c.results.Len() == 0
	if opts.Repair && deps.Repairer != nil && c.results.CountKind(KindNotFound) > 0 {
		if err := deps.Repairer.Repair(ctx, &c.results); err != nil {
			return false, fmt.Errorf("repairing orphaned chat accounts: %w", err)
		}
	}

	return passed, nil
}

// Summary implements Check.
func (c *ChatToIdentity) Summary() string {
	return fmt.Sprintf(
		"Inconsistency between chat service and identity provider found. Missing users: %d. Non unique users: %d",
		c.results.CountKind(KindNotFound),
		c.results.CountKind(KindMultipleFound),
	)
}

// Header implements Check.
func (c *ChatToIdentity) Header() []string {
	return []string{"Error", "Error Type", "Id", "Username", "Username (decoded)", "Subscriptions", "Owned rooms"}
}

// Row implements Check.
func (c *ChatToIdentity) Row(r Result) []string {
	u, ok := r.Payload.(*OrphanedUser)
	if !ok {
		return []string{r.Message, string(r.Kind), "", "", "", "", ""}
	}
	return []string{
		r.Message,
		string(r.Kind),
		u.UserID,
		u.Username,
		u.Decoded,
		fmt.Sprint(u.Subscriptions),
		fmt.Sprint(u.OwnedRooms),
	}
}

// Results implements Check.
func (c *ChatToIdentity) Results() []Result { return c.results.Snapshot() }
