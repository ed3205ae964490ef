// Package repository provides generic GORM-backed persistence for admin
// panel entities.
//
// Lookups carry an explicit Scope so owner-filtered and global reads are
// visible at the call site. Writes report a Result instead of a bare error
// so callers must branch on persisted vs failed.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Scope selects which rows a lookup may see.
type Scope int

const (
	// ScopeGlobal matches any row with the requested id.
	ScopeGlobal Scope = iota
	// ScopeOwned matches only rows owned by Lookup.OwnerID.
	ScopeOwned
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeOwned:
		return "owned"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Lookup identifies a single row.
type Lookup struct {
	ID      uint
	Scope   Scope
	OwnerID uint
}

// Status is the outcome of a write.
type Status int

const (
	StatusPersisted Status = iota + 1
	StatusFailed
)

// Result reports a write outcome. Err is set when Status is StatusFailed.
type Result struct {
	Status Status
	Err    error
}

func persisted() Result { return Result{Status: StatusPersisted} }

func failed(err error) Result { return Result{Status: StatusFailed, Err: err} }

// Option is an {id: label} pair for form selectors.
type Option struct {
	ID   uint
	Name string
}

// Repository gives CRUD access to one entity type.
type Repository[T any] struct {
	db          *gorm.DB
	ownerColumn string
}

// New returns a repository for T. ownerColumn names the column that holds
// the owning user id; leave it empty for entities nobody owns.
func New[T any](db *gorm.DB, ownerColumn string) *Repository[T] {
	return &Repository[T]{db: db, ownerColumn: ownerColumn}
}

// All returns every row ordered by primary key, preloading the named
// associations.
func (r *Repository[T]) All(ctx context.Context, preload ...string) ([]T, error) {
	q := r.db.WithContext(ctx)
	for _, assoc := range preload {
		q = q.Preload(assoc)
	}
	var rows []T
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find all: %w", err)
	}
	return rows, nil
}

// Find returns the row matching lookup or ErrNotFound.
func (r *Repository[T]) Find(ctx context.Context, lookup Lookup, preload ...string) (*T, error) {
	q := r.db.WithContext(ctx)
	switch lookup.Scope {
	case ScopeGlobal:
	case ScopeOwned:
		if r.ownerColumn == "" {
			return nil, fmt.Errorf("find %d: %s scope on an unowned entity", lookup.ID, lookup.Scope)
		}
		q = q.Where(r.ownerColumn+" = ?", lookup.OwnerID)
	default:
		return nil, fmt.Errorf("find %d: unknown %s", lookup.ID, lookup.Scope)
	}
	for _, assoc := range preload {
		q = q.Preload(assoc)
	}

	var row T
	if err := q.Where("id = ?", lookup.ID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find %d (%s): %w", lookup.ID, lookup.Scope, ErrNotFound)
		}
		return nil, fmt.Errorf("find %d: %w", lookup.ID, err)
	}
	return &row, nil
}

// FindBy returns the first row whose column equals value or ErrNotFound.
func (r *Repository[T]) FindBy(ctx context.Context, column string, value any) (*T, error) {
	var row T
	if err := r.db.WithContext(ctx).Where(column+" = ?", value).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find by %s: %w", column, ErrNotFound)
		}
		return nil, fmt.Errorf("find by %s: %w", column, err)
	}
	return &row, nil
}

// Count returns the number of rows.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(new(T)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Options returns {id: label} pairs ordered by id.
func (r *Repository[T]) Options(ctx context.Context, labelColumn string) ([]Option, error) {
	var opts []Option
	err := r.db.WithContext(ctx).Model(new(T)).
		Select("id", labelColumn+" AS name").
		Order("id").
		Scan(&opts).Error
	if err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	return opts, nil
}

// Create inserts entity. Columns named in omit are left out of the INSERT.
func (r *Repository[T]) Create(ctx context.Context, entity *T, omit ...string) Result {
	q := r.db.WithContext(ctx)
	if len(omit) > 0 {
		q = q.Omit(omit...)
	}
	if err := q.Create(entity).Error; err != nil {
		return failed(fmt.Errorf("create: %w", err))
	}
	return persisted()
}

// CreateUnder inserts entity owned by ownerID. The owner column is always
// overwritten so callers cannot create rows for someone else.
func (r *Repository[T]) CreateUnder(ctx context.Context, ownerID uint, entity *T, omit ...string) Result {
	if r.ownerColumn == "" {
		return failed(errors.New("create under owner: entity has no owner column"))
	}
	if err := r.setOwner(ctx, entity, ownerID); err != nil {
		return failed(fmt.Errorf("create under owner: %w", err))
	}
	return r.Create(ctx, entity, omit...)
}

func (r *Repository[T]) setOwner(ctx context.Context, entity *T, ownerID uint) error {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(entity); err != nil {
		return err
	}
	field := stmt.Schema.LookUpField(r.ownerColumn)
	if field == nil {
		return fmt.Errorf("no field for column %q", r.ownerColumn)
	}
	return field.Set(ctx, reflect.ValueOf(entity).Elem(), ownerID)
}

// Update writes fields (column name to value) onto the row entity points
// at. Columns absent from fields are left untouched.
func (r *Repository[T]) Update(ctx context.Context, entity *T, fields map[string]any) Result {
	res := r.db.WithContext(ctx).Model(entity).Updates(fields)
	if res.Error != nil {
		return failed(fmt.Errorf("update: %w", res.Error))
	}
	return persisted()
}

// Delete removes the row entity points at. A delete that affects no row
// is a failure.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) Result {
	res := r.db.WithContext(ctx).Delete(entity)
	if res.Error != nil {
		return failed(fmt.Errorf("delete: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return failed(fmt.Errorf("delete: %w", ErrNotFound))
	}
	return persisted()
}
