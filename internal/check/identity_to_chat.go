package check

import (
	"context"
	"fmt"

	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/scanner"
)

// IdentityToChatName identifies the identity-provider→chat direction
// check in configuration.
const IdentityToChatName = "identity-to-chat"

// UnmatchedIdentity is the payload of an IdentityToChat result: an
// identity-provider record without exactly one chat account.
type UnmatchedIdentity struct {
	IdentityID string
	Username   string
	Decoded    string
}

// IdentityToChat walks all identity-provider users page by page and
// counts the chat accounts carrying each username by exact match.
type IdentityToChat struct {
	deps    *Deps
	results ResultList
}

// NewIdentityToChat constructs the check.
func NewIdentityToChat(deps *Deps) *IdentityToChat {
	return &IdentityToChat{deps: deps}
}

// Name implements Check.
func (c *IdentityToChat) Name() string { return IdentityToChatName }

// Run implements Check.
func (c *IdentityToChat) Run(ctx context.Context, opts Options) (bool, error) {
	deps := c.deps
	s := deps.scan()

	total, err := deps.Identity.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("counting identity provider users: %w", err)
	}
	total = clampTotal(total, opts)
	deps.Log.Info("Checking %d identity provider users ...", max(total-opts.Skip, 0))

	progress := scanner.NewProgress(func(done int64) {
		deps.Log.Process("Checking identity users: %d/%d", int(done)+opts.Skip, total)
	})

	err = scanner.Scan(ctx, total, s.ChunkSize, s.Parallelism, opts.Skip, func(ctx context.Context, chunk int) error {
		first, pageMax := scanner.Window(opts.Skip, chunk, s.ChunkSize)
		if first+pageMax > total {
			pageMax = total - first
		}
		users, err := deps.Identity.ListPage(ctx, first, pageMax)
		if err != nil {
			return fmt.Errorf("listing identity provider users at offset %d: %w", first, err)
		}

		for _, u := range users {
			progress.Add()
			if u.Username == "" {
				continue
			}

			matches, err := deps.Docs.CountUsersByUsername(ctx, u.Username)
			if err != nil {
				return fmt.Errorf("counting chat users named %q: %w", u.Username, err)
			}
			if matches == 1 {
				continue
			}

			decoded := identity.DecodeUsername(u.Username)
			kind := KindNotFound
			msg := fmt.Sprintf("User not found in chat service: %s / %s / %s", decoded, u.Username, u.ID)
			if matches > 1 {
				kind = KindMultipleFound
				msg = fmt.Sprintf("Multiple chat users found for: %s / %s / %s", decoded, u.Username, u.ID)
			}
			deps.Log.Debug("%s", msg)

			c.results.Append(Result{
				Kind:    kind,
				Message: msg,
				Payload: &UnmatchedIdentity{IdentityID: u.ID, Username: u.Username, Decoded: decoded},
			})
		}
		return nil
	})
	deps.Log.Finish()
	if err != nil {
		return false, err
	}

	return c.results.Len() == 0, nil
}

// Summary implements Check.
func (c *IdentityToChat) Summary() string {
	return fmt.Sprintf(
		"Inconsistency between identity provider and chat service found. Missing users: %d. Non unique users: %d",
		c.results.CountKind(KindNotFound),
		c.results.CountKind(KindMultipleFound),
	)
}

// Header implements Check.
func (c *IdentityToChat) Header() []string {
	return []string{"Error", "Error Type", "Id", "Username", "Username (decoded)"}
}

// Row implements Check.
func (c *IdentityToChat) Row(r Result) []string {
	u, ok := r.Payload.(*UnmatchedIdentity)
	if !ok {
		return []string{r.Message, string(r.Kind), "", "", ""}
	}
	return []string{r.Message, string(r.Kind), u.IdentityID, u.Username, u.Decoded}
}

// Results implements Check.
func (c *IdentityToChat) Results() []Result { return c.results.Snapshot() }
