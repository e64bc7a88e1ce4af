// Package source resolves where candidate messages are read from.
package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/semdedup/internal/db/gorm"
	"github.com/thebtf/semdedup/pkg/models"
)

// Table maps one source kind onto a CRM table.
type Table struct {
	Kind         models.SourceKind `yaml:"kind"`
	Table        string            `yaml:"table"`
	IDColumn     string            `yaml:"id_column"`
	TenantColumn string            `yaml:"tenant_column"`
	TextColumn   string            `yaml:"text_column"`
	OrderColumn  string            `yaml:"order_column"`
	Equals       map[string]string `yaml:"equals"`
}

// Query converts the mapping into a store query.
func (t Table) Query() gorm.SourceQuery {
	return gorm.SourceQuery{
		Table:        t.Table,
		IDColumn:     t.IDColumn,
		TenantColumn: t.TenantColumn,
		TextColumn:   t.TextColumn,
		OrderColumn:  t.OrderColumn,
		Equals:       t.Equals,
	}
}

// Config is the top-level YAML structure of sources.yaml.
type Config struct {
	Sources []Table `yaml:"sources"`
}

// DefaultTables returns the built-in mapping used when sources.yaml is absent.
func DefaultTables() []Table {
	return []Table{
		{
			Kind:         models.SourceRawMessages,
			Table:        "chat_messages",
			IDColumn:     "id",
			TenantColumn: "tenant_id",
			TextColumn:   "text",
			OrderColumn:  "created_at_epoch",
			Equals:       map[string]string{"direction": "inbound"},
		},
		{
			Kind:         models.SourceSegments,
			Table:        "conversation_segments",
			IDColumn:     "id",
			TenantColumn: "tenant_id",
			TextColumn:   "content",
			OrderColumn:  "created_at_epoch",
		},
	}
}

// LoadTables reads the YAML file at path.
// If the file does not exist, the defaults are returned. Entries in the file
// replace the default for their kind; unlisted kinds keep the default.
func LoadTables(path string) ([]Table, error) {
	tables := DefaultTables()
	if path == "" {
		return tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tables, nil
		}
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	for _, t := range cfg.Sources {
		kind, err := models.ParseSourceKind(string(t.Kind))
		if err != nil || t.Kind == "" {
			return nil, fmt.Errorf("sources file: unknown kind %q", t.Kind)
		}
		t.Kind = kind
		if err := t.Query().Validate(); err != nil {
			return nil, fmt.Errorf("sources file: %s: %w", kind, err)
		}
		for i := range tables {
			if tables[i].Kind == kind {
				tables[i] = t
			}
		}
	}
	return tables, nil
}
