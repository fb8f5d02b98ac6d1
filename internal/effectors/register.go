package effectors

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/actions"
	"github.com/Wikid82/aegis/internal/models"
)

// Dependencies are the backends the built-in effectors act on. A nil Docker
// or Tickets leaves the type registered; executing it then fails.
type Dependencies struct {
	DB            *gorm.DB
	Docker        DockerAPI
	QuarantineDir string
	Tickets       TicketBackend

	// BlockMinPrefixV4/V6 bound how broad a CIDR block may be; zero keeps
	// the defaults. DecisionsChanged runs after BlockIP writes or removes a
	// decision.
	BlockMinPrefixV4 int
	BlockMinPrefixV6 int
	DecisionsChanged func()
}

// RegisterBuiltins registers every built-in action type with its default policy.
func RegisterBuiltins(c *actions.Catalog, deps Dependencies) error {
	type impl interface {
		actions.Effector
		actions.Compensator
	}
	builtins := map[models.ActionType]impl{
		models.ActionBlockIP:        NewBlockIP(deps.DB, WithMinPrefix(deps.BlockMinPrefixV4, deps.BlockMinPrefixV6), WithDecisionHook(deps.DecisionsChanged)),
		models.ActionIsolateHost:    NewIsolateHost(deps.Docker),
		models.ActionQuarantineFile: NewQuarantineFile(deps.QuarantineDir),
		models.ActionAddToWatchlist: NewWatchlist(deps.DB),
		models.ActionCreateTicket:   NewCreateTicket(deps.Tickets),
	}

	for t, e := range builtins {
		policy, ok := actions.DefaultPolicies[t]
		if !ok {
			return fmt.Errorf("no default policy for %s", t)
		}
		if err := c.Register(actions.Definition{
			Type:        t,
			Description: policy.Description,
			UndoWindow:  policy.UndoWindow,
			Reversible:  policy.Reversible,
			Effector:    e,
			Compensator: e,
		}); err != nil {
			return err
		}
	}
	return nil
}
