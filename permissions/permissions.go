// Package permissions decides whether a privileged operation may proceed.
// The gate asks the platform's capability authority for anything not already
// held, and can escalate a permanent denial into a single settings round-trip
// before resolving.
package permissions

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iNomNom/FilePicker/internal/registry"
)

// Capability names a privileged permission gated by the host platform.
type Capability string

// Authority is the port to the platform's permission subsystem.
type Authority interface {
	// Has reports whether the capability is currently held.
	Has(ctx context.Context, c Capability) bool
	// Request prompts for the given capabilities and returns the per-cap
	// decision once the user has answered.
	Request(ctx context.Context, caps []Capability) (map[Capability]bool, error)
	// CanExplain reports whether the platform still allows showing a
	// rationale for the capability. False after a denial means the user
	// refused permanently and only the settings screen can change it.
	CanExplain(ctx context.Context, c Capability) bool
	// OpenSettings sends the user to the settings screen and blocks until
	// they return.
	OpenSettings(ctx context.Context) error
}

// Outcome is the terminal resolution of a gate check.
type Outcome int

const (
	OutcomeGranted Outcome = iota
	OutcomeDenied
)

func (o Outcome) String() string {
	if o == OutcomeGranted {
		return "granted"
	}
	return "denied"
}

type state int

const (
	stateChecking state = iota
	stateAwaitingDecision
	stateAwaitingSettings
	stateGranted
	stateDenied
)

// Gate runs capability checks. Outcome callbacks go through a dedicated
// correlation table so each check resolves exactly once even if the platform
// answers late or twice.
type Gate struct {
	auth     Authority
	outcomes *registry.Registry[Outcome]
	log      *slog.Logger
}

func NewGate(auth Authority, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		auth:     auth,
		outcomes: registry.New[Outcome](log),
		log:      log,
	}
}

// Check resolves the given capability set asynchronously and invokes onResult
// with the terminal outcome at most once. When offerSettings is true, a
// permanent denial is escalated into one settings round-trip before the gate
// resolves. Returns the correlation id of the check.
func (g *Gate) Check(ctx context.Context, caps []Capability, offerSettings bool, onResult func(Outcome)) string {
	id := uuid.NewString()
	g.outcomes.Register(id, onResult)
	go g.run(ctx, id, caps, offerSettings)
	return id
}

// Abandon discards the pending callback for a check without resolving it.
func (g *Gate) Abandon(id string) {
	g.outcomes.Unregister(id)
}

// Close releases the gate's callback dispatcher.
func (g *Gate) Close() {
	g.outcomes.Close()
}

func (g *Gate) run(ctx context.Context, id string, caps []Capability, offerSettings bool) {
	settingsVisited := false
	st := stateChecking

	for {
		if ctx.Err() != nil {
			st = stateDenied
		}
		switch st {
		case stateChecking:
			missing := g.missing(ctx, caps)
			switch {
			case len(missing) == 0:
				st = stateGranted
			case settingsVisited:
				// One settings round-trip only; a second permanent
				// denial resolves instead of looping.
				st = stateDenied
			default:
				st = stateAwaitingDecision
			}

		case stateAwaitingDecision:
			missing := g.missing(ctx, caps)
			decisions, err := g.auth.Request(ctx, missing)
			if err != nil {
				g.log.Warn("capability request failed", "error", err)
				st = stateDenied
				continue
			}
			granted := true
			permanent := false
			for _, c := range missing {
				if decisions[c] {
					continue
				}
				granted = false
				if !g.auth.CanExplain(ctx, c) {
					permanent = true
				}
			}
			switch {
			case granted:
				st = stateGranted
			case permanent && offerSettings:
				st = stateAwaitingSettings
			default:
				st = stateDenied
			}

		case stateAwaitingSettings:
			settingsVisited = true
			if err := g.auth.OpenSettings(ctx); err != nil {
				g.log.Warn("settings redirect failed", "error", err)
				st = stateDenied
				continue
			}
			st = stateChecking

		case stateGranted:
			g.outcomes.Deliver(id, OutcomeGranted)
			return

		case stateDenied:
			g.outcomes.Deliver(id, OutcomeDenied)
			return
		}
	}
}

func (g *Gate) missing(ctx context.Context, caps []Capability) []Capability {
	var missing []Capability
	for _, c := range caps {
		if !g.auth.Has(ctx, c) {
			missing = append(missing, c)
		}
	}
	return missing
}
