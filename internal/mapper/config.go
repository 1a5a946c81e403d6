// Package mapper implements the declarative column-mapping engine that
// turns heterogeneous per-state source spreadsheets into the canonical
// case schema: rename, cast, constants, computed columns, substitutions,
// row filters, reference joins, deduplication, and per-column audit
// reports. Recipes are plain YAML; converters and calculations are
// selected from registries by name, never evaluated from configuration.
package mapper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/covidschooldata/pipeline/internal/joiner"
	"github.com/covidschooldata/pipeline/internal/table"
)

// ColumnMapping declares how one output column is produced. Exactly one of
// Constant, Source, or Calculation must be set.
type ColumnMapping struct {
	// Target is the output column name.
	Target string `yaml:"target"`
	// Source is the column name in the source file.
	Source string `yaml:"source,omitempty"`
	// Dtype casts the column while reading and is re-validated after the
	// table is assembled.
	Dtype string `yaml:"dtype,omitempty"`
	// Converter names a registered converter applied to raw source cells
	// instead of the plain dtype cast.
	Converter string `yaml:"converter,omitempty"`
	// Substitutions replaces exact source values after read.
	Substitutions map[string]string `yaml:"substitutions,omitempty"`
	// Constant sets every cell to a fixed value.
	Constant any `yaml:"constant,omitempty"`
	// NAValues lists source strings treated as null.
	NAValues []string `yaml:"na_values,omitempty"`
	// Calculation names a registered calculation computed per row once the
	// table is otherwise assembled.
	Calculation string `yaml:"calculation,omitempty"`
	// CalculationArgs are passed to the calculation (usually column names).
	CalculationArgs []string `yaml:"calculation_args,omitempty"`
	// Temporary columns are dropped before output.
	Temporary bool `yaml:"temporary,omitempty"`
	// FilterValues drops rows whose cell equals any listed value.
	FilterValues []string `yaml:"filter_values,omitempty"`
	// DropIfNull drops rows whose cell is null.
	DropIfNull bool `yaml:"drop_if_null,omitempty"`
}

// JoinSpec configures a join against an auxiliary reference file on a
// combination of exact-match and fuzzy-match (normalized) columns.
type JoinSpec struct {
	File  string              `yaml:"file"`
	Exact []joiner.ColumnPair `yaml:"exact,omitempty"`
	Fuzzy []joiner.ColumnPair `yaml:"fuzzy,omitempty"`
}

// IDLookupSpec configures the reference-ID lookup join attaching canonical
// identifier columns.
type IDLookupSpec struct {
	Files []string            `yaml:"files"`
	Exact []joiner.ColumnPair `yaml:"exact,omitempty"`
	Fuzzy []joiner.ColumnPair `yaml:"fuzzy,omitempty"`
	// IDColumn is the identifier column in the lookup files.
	IDColumn string `yaml:"id_column"`
	// Target is the case-table column receiving the identifier.
	Target string `yaml:"target"`
	// Districts selects 7-digit district identifiers; default is 12-digit
	// school identifiers with district IDs inferred.
	Districts bool `yaml:"districts,omitempty"`
}

// Width returns the zero-padded identifier width for the lookup.
func (s *IDLookupSpec) Width() int {
	if s.Districts {
		return joiner.DistrictIDWidth
	}
	return joiner.SchoolIDWidth
}

// StateConfig is one source file's full processing recipe. Constructed
// once from the recipe file, consumed once per run, never mutated.
type StateConfig struct {
	State        string          `yaml:"state"`
	Abbreviation string          `yaml:"abbreviation"`
	Source       string          `yaml:"source"`
	Sheet        string          `yaml:"sheet,omitempty"`
	Sheets       []string        `yaml:"sheets,omitempty"`
	Output       string          `yaml:"output,omitempty"`
	Dedupe       *bool           `yaml:"dedupe,omitempty"`
	Columns      []ColumnMapping `yaml:"columns"`
	FilterJoin   *JoinSpec       `yaml:"filter_join,omitempty"`
	IDLookup     *IDLookupSpec   `yaml:"id_lookup,omitempty"`
}

// DedupeEnabled reports whether row deduplication applies (default on).
func (c *StateConfig) DedupeEnabled() bool {
	return c.Dedupe == nil || *c.Dedupe
}

// SheetNames returns the sheets to read in concatenation order, defaulting
// to the conventional "Data for {state}" sheet.
func (c *StateConfig) SheetNames() []string {
	if len(c.Sheets) > 0 {
		return c.Sheets
	}
	if c.Sheet != "" {
		return []string{c.Sheet}
	}
	return []string{fmt.Sprintf("Data for %s", c.State)}
}

// Recipe is the full pipeline recipe: one StateConfig per source file,
// plus the canonical column set every state's output is held to.
type Recipe struct {
	// RequiredColumns is the canonical output schema. States missing one
	// of these get it appended empty; states producing columns outside
	// this set are flagged. Empty disables both checks.
	RequiredColumns []string      `yaml:"required_columns,omitempty"`
	States          []StateConfig `yaml:"states"`
}

// LoadRecipe reads and validates a recipe file. All configuration errors
// surface here, before any source file I/O.
func LoadRecipe(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe %s: %w", path, err)
	}
	var recipe Recipe
	if err := yaml.Unmarshal(data, &recipe); err != nil {
		return nil, fmt.Errorf("parsing recipe %s: %w", path, err)
	}
	for i := range recipe.States {
		if err := recipe.States[i].Validate(); err != nil {
			return nil, fmt.Errorf("recipe %s: %w", path, err)
		}
	}
	return &recipe, nil
}

// Validate checks the state recipe's internal consistency.
func (c *StateConfig) Validate() error {
	if c.State == "" {
		return fmt.Errorf("state config missing state name")
	}
	if c.Source == "" {
		return fmt.Errorf("state %s: missing source file", c.State)
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("state %s: no column mappings", c.State)
	}
	seen := make(map[string]struct{}, len(c.Columns))
	for _, m := range c.Columns {
		if err := m.validate(c.State); err != nil {
			return err
		}
		if _, dup := seen[m.Target]; dup {
			return fmt.Errorf("state %s: duplicate target column %q", c.State, m.Target)
		}
		seen[m.Target] = struct{}{}
	}
	if c.FilterJoin != nil && len(c.FilterJoin.Exact)+len(c.FilterJoin.Fuzzy) == 0 {
		return fmt.Errorf("state %s: filter_join needs at least one match column", c.State)
	}
	if c.IDLookup != nil {
		if len(c.IDLookup.Files) == 0 {
			return fmt.Errorf("state %s: id_lookup needs lookup files", c.State)
		}
		if len(c.IDLookup.Exact)+len(c.IDLookup.Fuzzy) == 0 {
			return fmt.Errorf("state %s: id_lookup needs at least one match column", c.State)
		}
		if c.IDLookup.IDColumn == "" || c.IDLookup.Target == "" {
			return fmt.Errorf("state %s: id_lookup needs id_column and target", c.State)
		}
	}
	return nil
}

func (m *ColumnMapping) validate(state string) error {
	if m.Target == "" {
		return fmt.Errorf("state %s: column mapping missing target", state)
	}
	set := 0
	if m.Constant != nil {
		set++
	}
	if m.Source != "" {
		set++
	}
	if m.Calculation != "" {
		set++
	}
	if m.Constant != nil && m.Source != "" {
		return fmt.Errorf("state %s column %q: provide either constant or source column",
			state, m.Target)
	}
	if set != 1 {
		return fmt.Errorf("state %s column %q: exactly one of constant, source, or calculation must be set",
			state, m.Target)
	}
	if m.Dtype != "" {
		if _, err := table.ParseDtype(m.Dtype); err != nil {
			return fmt.Errorf("state %s column %q: %w", state, m.Target, err)
		}
	}
	if m.Converter != "" {
		if m.Source == "" {
			return fmt.Errorf("state %s column %q: converter requires a source column", state, m.Target)
		}
		if _, err := LookupConverter(m.Converter); err != nil {
			return fmt.Errorf("state %s column %q: %w", state, m.Target, err)
		}
	}
	if m.Calculation != "" {
		if _, err := LookupCalculation(m.Calculation); err != nil {
			return fmt.Errorf("state %s column %q: %w", state, m.Target, err)
		}
	}
	return nil
}

// constantValue converts the YAML constant to a typed cell, honoring the
// declared dtype when present.
func (m *ColumnMapping) constantValue() (table.Value, error) {
	var v table.Value
	switch c := m.Constant.(type) {
	case string:
		v = table.String(c)
	case int:
		v = table.Int(int64(c))
	case int64:
		v = table.Int(c)
	case float64:
		v = table.Float(c)
	case bool:
		v = table.Bool(c)
	default:
		return table.Value{}, fmt.Errorf("column %q: unsupported constant type %T", m.Target, m.Constant)
	}
	if m.Dtype == "" {
		return v, nil
	}
	cast, err := table.Cast(v, table.Dtype(m.Dtype))
	if err != nil {
		return table.Value{}, fmt.Errorf("column %q: %w", m.Target, err)
	}
	return cast, nil
}
