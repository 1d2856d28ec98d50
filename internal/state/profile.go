package state

import (
	"context"

	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/remote"
)

// Profile caches the signed-in user's profile row.
type Profile struct {
	deps  Deps
	table remote.Table[model.Profile]
	cell  *cell[*model.Profile]
}

func newProfile(deps Deps) *Profile {
	return &Profile{deps: deps, table: remote.NewTable[model.Profile](deps.Client, model.TableProfiles), cell: newCell[*model.Profile]()}
}

// Value returns the cached profile, nil when absent.
func (p *Profile) Value() *model.Profile { return p.cell.get() }

// Loading reports whether the first fetch is still pending.
func (p *Profile) Loading() bool { return p.cell.isLoading() }

// Err returns the error of the last fetch.
func (p *Profile) Err() error { return p.cell.lastErr() }

// Refetch reloads the profile.
func (p *Profile) Refetch(ctx context.Context) error {
	uid, err := p.deps.userID()
	if err != nil {
		p.cell.clear()
		return err
	}
	row, err := p.table.First(ctx, remote.Filter{"id": uid})
	p.cell.finish(row, err)
	return err
}

// Update patches the profile and caches the stored row.
func (p *Profile) Update(ctx context.Context, patch model.ProfilePatch) (*model.Profile, error) {
	uid, err := p.deps.userID()
	if err != nil {
		return nil, err
	}
	rows, err := p.table.Update(ctx, patch, remote.Filter{"id": uid})
	if err != nil {
		return nil, err
	}
	var row *model.Profile
	if len(rows) > 0 {
		row = &rows[0]
	}
	p.cell.finish(row, nil)
	return row, nil
}
