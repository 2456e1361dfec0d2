package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a template id does not exist.
var ErrNotFound = errors.New("template not found")

// Store persists prompt templates. Popularity counts how often a
// template was fetched and drives the default listing order.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type Template struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	Variables   []Variable `json:"variables,omitempty"`
	Popularity  int64      `json:"popularity"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Variable is a named placeholder inside a template's content.
type Variable struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Value       string `json:"value,omitempty"`
}

func (s *Store) CreateTemplate(ctx context.Context, name, description, content string, variables []Variable) (Template, error) {
	now := time.Now().UTC()
	varsJSON, err := encodeVariables(variables)
	if err != nil {
		return Template{}, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO prompt_templates (name, description, content, variables, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		name, description, content, varsJSON, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return Template{}, fmt.Errorf("insert template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Template{}, fmt.Errorf("template id: %w", err)
	}
	return Template{ID: id, Name: name, Description: description, Content: content, Variables: variables, CreatedAt: now, UpdatedAt: now}, nil
}

// ListTemplates returns templates most popular first.
func (s *Store) ListTemplates(ctx context.Context, limit int) ([]Template, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, content, variables, popularity, created_at, updated_at FROM prompt_templates ORDER BY popularity DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

// GetTemplate fetches a template and bumps its popularity counter.
func (s *Store) GetTemplate(ctx context.Context, id int64) (Template, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE prompt_templates SET popularity = popularity + 1 WHERE id = ?`, id); err != nil {
		return Template{}, fmt.Errorf("bump template popularity: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, content, variables, popularity, created_at, updated_at FROM prompt_templates WHERE id = ?`, id)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	if err != nil {
		return Template{}, err
	}
	return tpl, nil
}

// SeedDefaults inserts the starter templates when the table is empty.
func (s *Store) SeedDefaults(ctx context.Context) error {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompt_templates`).Scan(&count); err != nil {
		return fmt.Errorf("count templates: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, tpl := range defaultTemplates {
		if _, err := s.CreateTemplate(ctx, tpl.Name, tpl.Description, tpl.Content, tpl.Variables); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (Template, error) {
	var tpl Template
	var description, varsStr sql.NullString
	var createdAtStr, updatedAtStr string
	if err := row.Scan(&tpl.ID, &tpl.Name, &description, &tpl.Content, &varsStr, &tpl.Popularity, &createdAtStr, &updatedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Template{}, err
		}
		return Template{}, fmt.Errorf("scan template: %w", err)
	}
	tpl.Description = description.String
	tpl.Variables = decodeVariables(varsStr.String)
	tpl.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
	tpl.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
	return tpl, nil
}

func encodeVariables(vars []Variable) (any, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}
	return string(data), nil
}

func decodeVariables(v string) []Variable {
	if v == "" {
		return nil
	}
	var out []Variable
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}
