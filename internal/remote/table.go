package remote

import "context"

// Validator is implemented by row types that check themselves before writes.
type Validator interface {
	Validate() error
}

// Table is a typed view over one backend table.
type Table[T any] struct {
	client *Client
	name   string
}

// NewTable binds row type T to the named table.
func NewTable[T any](client *Client, name string) Table[T] {
	return Table[T]{client: client, name: name}
}

// Name returns the table name.
func (t Table[T]) Name() string { return t.name }

// Select returns every row matching filter.
func (t Table[T]) Select(ctx context.Context, filter Filter) ([]T, error) {
	var rows []T
	if err := t.client.Select(ctx, t.name, "*", filter, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// First returns the first matching row, or nil when nothing matches.
func (t Table[T]) First(ctx context.Context, filter Filter) (*T, error) {
	rows, err := t.Select(ctx, filter)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// Insert validates and stores row, returning the stored representation.
func (t Table[T]) Insert(ctx context.Context, row any) ([]T, error) {
	if v, ok := row.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	var rows []T
	if err := t.client.Insert(ctx, t.name, row, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Update validates patch and applies it to every row matching filter.
func (t Table[T]) Update(ctx context.Context, patch any, filter Filter) ([]T, error) {
	if v, ok := patch.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	var rows []T
	if err := t.client.Update(ctx, t.name, patch, filter, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete removes matching rows and returns them.
func (t Table[T]) Delete(ctx context.Context, filter Filter) ([]T, error) {
	var rows []T
	if err := t.client.Delete(ctx, t.name, filter, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
