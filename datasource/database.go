package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Function is an action invoked by name with a JSON request body.
type Function func(ctx context.Context, body json.RawMessage) (any, error)

// Database serves queries from the service's own database and runs
// registered functions in-process.
type Database struct {
	db *gorm.DB

	mu        sync.RWMutex
	functions map[string]Function
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{
		db:        db,
		functions: make(map[string]Function),
	}
}

func (d *Database) Register(name string, fn Function) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.functions[name] = fn
}

func (d *Database) Query(ctx context.Context, q Query, dest any) error {
	if err := q.validate(); err != nil {
		return err
	}

	tx := d.db.WithContext(ctx).Table(q.Collection)
	for _, f := range q.Filters {
		switch f.Op {
		case OpEq:
			tx = tx.Where(f.Column+" = ?", f.Value)
		case OpNeq:
			tx = tx.Where(f.Column+" <> ?", f.Value)
		case OpIn:
			tx = tx.Where(f.Column+" IN ?", f.Value)
		case OpGt:
			tx = tx.Where(f.Column+" > ?", f.Value)
		case OpGte:
			tx = tx.Where(f.Column+" >= ?", f.Value)
		case OpLt:
			tx = tx.Where(f.Column+" < ?", f.Value)
		case OpLte:
			tx = tx.Where(f.Column+" <= ?", f.Value)
		case OpNotNull:
			tx = tx.Where(f.Column + " IS NOT NULL")
		}
	}
	if q.OrderBy != "" {
		order := q.OrderBy
		if q.Descending {
			order += " DESC"
		}
		tx = tx.Order(order)
	}

	return tx.Find(dest).Error
}

func (d *Database) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := checkIdentifier(collection); err != nil {
		return err
	}
	for column := range fields {
		if err := checkIdentifier(column); err != nil {
			return err
		}
	}

	res := d.db.WithContext(ctx).Table(collection).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) Insert(ctx context.Context, collection string, record any) error {
	if err := checkIdentifier(collection); err != nil {
		return err
	}
	return d.db.WithContext(ctx).Table(collection).Create(record).Error
}

// Invoke runs a registered function. The body and the result go through
// JSON so callers see the same shapes as with a remote backend.
func (d *Database) Invoke(ctx context.Context, name string, body any, dest any) error {
	d.mu.RLock()
	fn, ok := d.functions[name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", name, err)
	}

	result, err := fn(ctx, raw)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s response: %w", name, err)
	}
	return json.Unmarshal(out, dest)
}
