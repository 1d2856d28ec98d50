package state

import (
	"context"

	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/remote"
)

// Scenarios caches the public scenario catalogue; no user is required.
type Scenarios struct {
	table remote.Table[model.Scenario]
	cell  *cell[[]model.Scenario]
}

func newScenarios(deps Deps) *Scenarios {
	return &Scenarios{table: remote.NewTable[model.Scenario](deps.Client, model.TableScenarios), cell: newCell[[]model.Scenario]()}
}

func (s *Scenarios) Value() []model.Scenario {
	cur := s.cell.get()
	out := make([]model.Scenario, len(cur))
	copy(out, cur)
	return out
}

func (s *Scenarios) Loading() bool { return s.cell.isLoading() }

func (s *Scenarios) Err() error { return s.cell.lastErr() }

func (s *Scenarios) Refetch(ctx context.Context) error {
	rows, err := s.table.Select(ctx, nil)
	s.cell.finish(rows, err)
	return err
}

// Find returns the scenario with the given id or title.
func (s *Scenarios) Find(key string) (model.Scenario, bool) {
	for _, sc := range s.cell.get() {
		if sc.ID == key || sc.Title == key {
			return sc, true
		}
	}
	return model.Scenario{}, false
}
