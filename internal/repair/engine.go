// Package repair removes orphaned chat accounts and the private rooms
// they own. The engine is deliberately paranoid: every candidate passes
// a set of read-only gates first, and the destructive phase only starts
// once all of them hold. A room the technical account joined is left
// again on every path that does not delete it.
package repair

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/counselops/reconcile/internal/check"
	"github.com/counselops/reconcile/internal/chat"
	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/logging"
	"github.com/counselops/reconcile/internal/store"
)

// DefaultGeneralRoomID is the chat service's built-in default channel.
// Membership there says nothing about a user, so it never gates and is
// never deleted.
const DefaultGeneralRoomID = "GENERAL"

const leaveRetries = 3

// FatalError means the technical account is stuck as a member of a room
// it could neither delete nor leave. Manual cleanup is required before
// the next repair run, so the whole run must stop.
type FatalError struct {
	RoomID string
	UserID string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("technical account stuck in room %s while repairing user %s: %v", e.RoomID, e.UserID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Outcome counts what one repair pass did.
type Outcome struct {
	Repaired int
	Skipped  int
	Failed   int
}

// Engine implements check.Repairer. Candidates are processed one at a
// time; parallel deletion would let two candidates race on a shared
// room.
type Engine struct {
	docs  store.Documents
	rel   store.Relational
	ident identity.Provider
	chat  chat.Service
	log   *logging.Logger

	// GeneralRoomID overrides the default channel id, for installations
	// that renamed it.
	GeneralRoomID string

	// retryInterval shortens the leave retry backoff in tests.
	retryInterval time.Duration

	outcome Outcome
}

// New constructs a repair engine.
func New(docs store.Documents, rel store.Relational, ident identity.Provider, svc chat.Service, log *logging.Logger) *Engine {
	return &Engine{
		docs:          docs,
		rel:           rel,
		ident:         ident,
		chat:          svc,
		log:           log,
		GeneralRoomID: DefaultGeneralRoomID,
	}
}

// Outcome returns the counts of the last Repair call.
func (e *Engine) Outcome() Outcome { return e.outcome }

// Repair deletes the orphaned chat accounts in results together with
// their private rooms. Successfully repaired entries are removed from
// the result list; entries that fail a gate stay in it and keep the
// check failing. A FatalError aborts the pass immediately.
func (e *Engine) Repair(ctx context.Context, results *check.ResultList) error {
	candidates := candidateSet(results)
	if len(candidates) == 0 {
		return nil
	}

	e.outcome = Outcome{}
	e.log.Info("Repairing %d orphaned chat accounts ...", len(candidates))

	for _, cand := range ordered(candidates) {
		ok, err := e.repairOne(ctx, cand, candidates)
		if err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				return err
			}
			e.outcome.Failed++
			e.log.Error("Repair of %s (%s) failed: %v", cand.Decoded, cand.UserID, err)
			continue
		}
		if !ok {
			e.outcome.Skipped++
			continue
		}

		e.outcome.Repaired++
		removed := results.RemoveWhere(func(r check.Result) bool {
			u, ok := r.Payload.(*check.OrphanedUser)
			return ok && r.Kind == check.KindNotFound && u.UserID == cand.UserID
		})
		e.log.Success("Deleted orphaned account %s (%s), %d result entries cleared", cand.Decoded, cand.UserID, removed)
	}

	e.log.Info("Repair done: %d deleted, %d skipped, %d failed",
		e.outcome.Repaired, e.outcome.Skipped, e.outcome.Failed)
	return nil
}

// repairOne runs the gates and, when all hold, the destructive phase for
// a single candidate. It returns false when a gate blocked the deletion.
func (e *Engine) repairOne(ctx context.Context, cand *check.OrphanedUser, candidates map[string]*check.OrphanedUser) (bool, error) {
	subs, err := e.docs.UserSubscriptions(ctx, cand.UserID)
	if err != nil {
		return false, fmt.Errorf("loading subscriptions: %w", err)
	}

	rooms := make([]string, 0, len(subs))
	for _, s := range subs {
		if s.RoomID == e.generalRoomID() {
			continue
		}
		rooms = append(rooms, s.RoomID)
	}

	// Gate 1: every room member must be the candidate itself, another
	// deletion candidate, or the technical account. A room shared with a
	// live user must survive.
	for _, roomID := range rooms {
		members, err := e.docs.RoomMemberIDs(ctx, roomID)
		if err != nil {
			return false, fmt.Errorf("loading members of room %s: %w", roomID, err)
		}
		for _, id := range members {
			if id == cand.UserID || id == e.chat.UserID() {
				continue
			}
			if _, isCandidate := candidates[id]; isCandidate {
				continue
			}
			e.log.Info("Skipping %s (%s): room %s has live member %s", cand.Decoded, cand.UserID, roomID, id)
			return false, nil
		}
	}

	// Gate 2: no session or chat row in the service database may still
	// reference any of the rooms.
	for _, roomID := range rooms {
		refs, err := e.rel.RoomReferenceCount(ctx, roomID)
		if err != nil {
			return false, fmt.Errorf("counting references of room %s: %w", roomID, err)
		}
		if refs > 0 {
			e.log.Info("Skipping %s (%s): room %s still referenced by %d database rows", cand.Decoded, cand.UserID, roomID, refs)
			return false, nil
		}
	}

	// Gate 3, last before anything destructive: re-verify against the
	// identity provider in case the account came back since the scan.
	matches, err := e.ident.FindByUsername(ctx, cand.Username)
	if err != nil {
		return false, fmt.Errorf("re-verifying %s against identity provider: %w", cand.Username, err)
	}
	if len(matches) > 0 {
		e.log.Info("Skipping %s (%s): identity record exists again", cand.Decoded, cand.UserID)
		return false, nil
	}

	for _, roomID := range rooms {
		ok, err := e.eraseRoom(ctx, roomID, cand, candidates)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if err := e.chat.DeleteUser(ctx, cand.UserID); err != nil {
		return false, fmt.Errorf("deleting chat account %s: %w", cand.UserID, err)
	}
	return true, nil
}

// eraseRoom joins the room as the technical account, re-checks its
// members through the chat API and deletes it. A room-not-found on the
// invite means the room is already gone. A member that joined since the
// scan blocks the deletion, returning false. On every non-deleting path
// after the join the technical account must get back out; failing that
// is fatal.
func (e *Engine) eraseRoom(ctx context.Context, roomID string, cand *check.OrphanedUser, candidates map[string]*check.OrphanedUser) (bool, error) {
	if err := e.chat.InviteToRoom(ctx, roomID, e.chat.UserID()); err != nil {
		if chat.IsRoomNotFound(err) {
			e.log.Debug("Room %s already gone", roomID)
			return true, nil
		}
		return false, fmt.Errorf("joining room %s: %w", roomID, err)
	}

	members, err := e.chat.RoomMembers(ctx, roomID)
	if err != nil {
		if leaveErr := e.leaveRoom(ctx, roomID); leaveErr != nil {
			return false, &FatalError{RoomID: roomID, UserID: cand.UserID, Err: leaveErr}
		}
		return false, fmt.Errorf("listing members of room %s: %w", roomID, err)
	}
	for _, m := range members {
		if m.ID == cand.UserID || m.ID == e.chat.UserID() {
			continue
		}
		if _, isCandidate := candidates[m.ID]; isCandidate {
			continue
		}
		if leaveErr := e.leaveRoom(ctx, roomID); leaveErr != nil {
			return false, &FatalError{RoomID: roomID, UserID: cand.UserID, Err: leaveErr}
		}
		e.log.Info("Skipping %s (%s): room %s gained member %s since the scan", cand.Decoded, cand.UserID, roomID, m.Username)
		return false, nil
	}

	if err := e.chat.EraseRoom(ctx, roomID); err != nil {
		if leaveErr := e.leaveRoom(ctx, roomID); leaveErr != nil {
			return false, &FatalError{RoomID: roomID, UserID: cand.UserID, Err: leaveErr}
		}
		return false, fmt.Errorf("deleting room %s: %w", roomID, err)
	}
	return true, nil
}

func (e *Engine) leaveRoom(ctx context.Context, roomID string) error {
	b := backoff.NewExponentialBackOff()
	if e.retryInterval > 0 {
		b.InitialInterval = e.retryInterval
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, e.chat.LeaveRoom(ctx, roomID)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(leaveRetries))
	return err
}

func (e *Engine) generalRoomID() string {
	if e.GeneralRoomID != "" {
		return e.GeneralRoomID
	}
	return DefaultGeneralRoomID
}

// candidateSet extracts the deletable candidates from a result list,
// keyed by chat user id.
func candidateSet(results *check.ResultList) map[string]*check.OrphanedUser {
	set := make(map[string]*check.OrphanedUser)
	for _, r := range results.Snapshot() {
		if r.Kind != check.KindNotFound {
			continue
		}
		if u, ok := r.Payload.(*check.OrphanedUser); ok {
			set[u.UserID] = u
		}
	}
	return set
}

// ordered returns the candidates in a stable order so reruns process
// them the same way.
func ordered(set map[string]*check.OrphanedUser) []*check.OrphanedUser {
	out := make([]*check.OrphanedUser, 0, len(set))
	for _, u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
