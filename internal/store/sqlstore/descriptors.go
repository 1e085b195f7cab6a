package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

const descriptorColumns = `id, description, properties, last_modified`

func (s *Store) GetDescriptor(ctx context.Context, id string) (*model.TypeDescriptor, error) {
	row := s.db.QueryRowContext(ctx, s.d.Rebind(`SELECT `+descriptorColumns+` FROM type_descriptors WHERE id = ?`), id)
	return s.scanDescriptor(row)
}

func (s *Store) ListDescriptors(ctx context.Context) ([]*model.TypeDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+descriptorColumns+` FROM type_descriptors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.TypeDescriptor
	for rows.Next() {
		d, err := s.scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) PutDescriptor(ctx context.Context, d *model.TypeDescriptor) error {
	args, err := s.descriptorArgs(d)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO type_descriptors (`+descriptorColumns+`) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description = excluded.description,
			properties = excluded.properties,
			last_modified = excluded.last_modified`, args...)
	return err
}

func (s *Store) CreateDescriptorIfAbsent(ctx context.Context, d *model.TypeDescriptor) (bool, error) {
	args, err := s.descriptorArgs(d)
	if err != nil {
		return false, err
	}
	return s.execInserted(ctx, `
		INSERT INTO type_descriptors (`+descriptorColumns+`) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, args...)
}

func (s *Store) DeleteDescriptor(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM type_descriptors WHERE id = ?`, id)
}

func (s *Store) descriptorArgs(d *model.TypeDescriptor) ([]any, error) {
	props, err := json.Marshal(d.Properties)
	if err != nil {
		return nil, fmt.Errorf("encoding properties: %w", err)
	}
	ts, err := s.bindTime(d.LastModified)
	if err != nil {
		return nil, err
	}
	return []any{d.ID, nullString(d.Description), string(props), ts}, nil
}

func (s *Store) scanDescriptor(row scannable) (*model.TypeDescriptor, error) {
	var (
		d     model.TypeDescriptor
		desc  = nullString("")
		props []byte
		ts    = s.timeDest()
	)
	if err := row.Scan(&d.ID, &desc, &props, ts); err != nil {
		return nil, err
	}
	d.Description = desc.String
	if err := json.Unmarshal(props, &d.Properties); err != nil {
		return nil, fmt.Errorf("decoding properties of %s: %w", d.ID, err)
	}
	t, err := s.timeValue(ts)
	if err != nil {
		return nil, err
	}
	d.LastModified = t
	return &d, nil
}
