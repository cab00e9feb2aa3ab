package registry

import (
	"fmt"

	"github.com/btree-dev/xao-ai/pkg/agreement"
	"github.com/btree-dev/xao-ai/pkg/wallet"
)

// The status graph is a straight line with role-gated edges:
//
//	Scheduled --artist--> Completed --venue--> Disputed --arbiter--> Resolved
//
// Resolved is terminal, and a record may stay at Completed forever if never
// disputed. There is no rollback edge anywhere.

// transitionRule captures one edge: the only status it may start from and
// who may drive it.
type transitionRule struct {
	from   agreement.Status
	caller func(rec agreement.Record, caller, arbiter string) bool
}

var transitionRules = map[agreement.Status]transitionRule{
	agreement.StatusCompleted: {
		from: agreement.StatusScheduled,
		caller: func(rec agreement.Record, caller, _ string) bool {
			return wallet.Equal(caller, rec.ArtistWallet)
		},
	},
	agreement.StatusDisputed: {
		from: agreement.StatusCompleted,
		caller: func(rec agreement.Record, caller, _ string) bool {
			return wallet.Equal(caller, rec.VenueWallet)
		},
	},
	agreement.StatusResolved: {
		from: agreement.StatusDisputed,
		caller: func(rec agreement.Record, caller, arbiter string) bool {
			// The arbiter must be a third party: even a correctly configured
			// arbiter wallet may not rule on a record it is a party to.
			if wallet.Equal(caller, rec.ArtistWallet) || wallet.Equal(caller, rec.VenueWallet) {
				return false
			}
			return wallet.Equal(caller, arbiter)
		},
	},
}

// CheckTransition verifies that caller may move rec to target right now.
// The role gate is checked before the state gate, and both fail closed.
func CheckTransition(rec agreement.Record, caller, arbiter string, target agreement.Status) error {
	rule, ok := transitionRules[target]
	if !ok {
		return fmt.Errorf("%w: no transition to %s", ErrInvalidTransition, target)
	}
	if !rule.caller(rec, caller, arbiter) {
		return fmt.Errorf("%w: %s -> %s", ErrUnauthorizedCaller, rec.Status, target)
	}
	if rec.Status != rule.from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, target)
	}
	return nil
}

// TransitionFrom returns the only status the edge into target starts from.
func TransitionFrom(target agreement.Status) (agreement.Status, bool) {
	rule, ok := transitionRules[target]
	if !ok {
		return 0, false
	}
	return rule.from, true
}
