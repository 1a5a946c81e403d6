package mapper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/covidschooldata/pipeline/internal/joiner"
	"github.com/covidschooldata/pipeline/internal/linkage/tokenizer"
	"github.com/covidschooldata/pipeline/internal/table"
	apperrors "github.com/covidschooldata/pipeline/pkg/errors"
	"github.com/covidschooldata/pipeline/pkg/metrics"
)

// Options configures an Engine.
type Options struct {
	// RequiredColumns are appended as empty columns when a recipe does not
	// produce them; recipe columns outside this list are reported as
	// unexpected. Empty disables both checks.
	RequiredColumns []string
	// Parallelism bounds concurrent state processing; values below 1 mean
	// sequential.
	Parallelism int
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Engine runs state recipes.
type Engine struct {
	required    []string
	parallelism int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Result is one processed state: its canonical table and audit report.
type Result struct {
	State  string
	Table  *table.Table
	Report []ColumnReport
}

// New builds an engine.
func New(opts Options) *Engine {
	p := opts.Parallelism
	if p < 1 {
		p = 1
	}
	return &Engine{
		required:    opts.RequiredColumns,
		parallelism: p,
		metrics:     opts.Metrics,
		logger:      slog.Default().With("component", "mapper"),
	}
}

// ProcessAll runs every state in the recipe, preserving recipe order in
// the results. States are independent, so they may run concurrently; each
// state's joins and lookups are constructed fresh.
func (e *Engine) ProcessAll(ctx context.Context, recipe *Recipe) ([]*Result, error) {
	results := make([]*Result, len(recipe.States))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i := range recipe.States {
		i := i
		g.Go(func() error {
			cfg := &recipe.States[i]
			result, err := e.ProcessState(ctx, cfg)
			if err != nil {
				return fmt.Errorf("state %s: %w", cfg.State, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ProcessState runs one state's recipe end to end.
func (e *Engine) ProcessState(ctx context.Context, cfg *StateConfig) (*Result, error) {
	start := time.Now()
	logger := e.logger.With("state", cfg.State)

	// Configuration problems must surface before any file I/O.
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, err)
	}
	plan, err := buildReadPlan(cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, err)
	}

	logger.Info("reading source", "source", cfg.Source)
	t, err := readSource(cfg, plan.readOpts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err)
	}
	if e.metrics != nil {
		e.metrics.RowsReadTotal.WithLabelValues(cfg.Abbreviation).Add(float64(t.NumRows()))
	}

	if err := e.assemble(t, cfg, plan); err != nil {
		return nil, err
	}
	if err := e.applyFilters(t, cfg, logger); err != nil {
		return nil, err
	}
	formatDateColumns(t)
	for _, m := range cfg.Columns {
		if m.Temporary {
			t.Drop(m.Target)
		}
	}
	if cfg.DedupeEnabled() {
		if removed := t.Dedupe(); removed > 0 {
			logger.Info("dropped duplicate rows", "rows", removed)
			e.countDropped(cfg.Abbreviation, "dedupe", removed)
		}
	}
	if cfg.IDLookup != nil {
		if err := e.applyIDLookup(t, cfg.IDLookup); err != nil {
			return nil, err
		}
	}

	report := BuildReport(cfg.State, t)

	if cfg.Output != "" {
		if err := t.WriteCSV(cfg.Output); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrIO, err)
		}
		logger.Info("wrote output", "output", cfg.Output, "rows", t.NumRows())
	}
	if e.metrics != nil {
		e.metrics.RowsWrittenTotal.WithLabelValues(cfg.Abbreviation).Add(float64(t.NumRows()))
		e.metrics.StatesProcessed.Inc()
		e.metrics.StateDurationSecs.WithLabelValues(cfg.Abbreviation).
			Observe(time.Since(start).Seconds())
	}
	return &Result{State: cfg.State, Table: t, Report: report}, nil
}

// readPlan is the partition of a recipe's mappings into read-time
// instructions.
type readPlan struct {
	readOpts  table.ReadOptions
	renames   []ColumnMapping // source-derived, in mapping order
	constants []ColumnMapping
	calcs     []ColumnMapping
}

func buildReadPlan(cfg *StateConfig) (*readPlan, error) {
	plan := &readPlan{
		readOpts: table.ReadOptions{
			Dtypes:     make(map[string]table.Dtype),
			NAValues:   make(map[string][]string),
			Converters: make(map[string]table.Converter),
		},
	}
	for _, m := range cfg.Columns {
		switch {
		case m.Constant != nil:
			plan.constants = append(plan.constants, m)
		case m.Calculation != "":
			plan.calcs = append(plan.calcs, m)
		default:
			plan.renames = append(plan.renames, m)
			plan.readOpts.Columns = append(plan.readOpts.Columns, m.Source)
			if m.Converter != "" {
				conv, err := LookupConverter(m.Converter)
				if err != nil {
					return nil, err
				}
				plan.readOpts.Converters[m.Source] = conv
			} else if m.Dtype != "" {
				plan.readOpts.Dtypes[m.Source] = table.Dtype(m.Dtype)
			}
			if len(m.NAValues) > 0 {
				plan.readOpts.NAValues[m.Source] = m.NAValues
			}
		}
	}
	return plan, nil
}

func readSource(cfg *StateConfig, opts table.ReadOptions) (*table.Table, error) {
	switch strings.ToLower(filepath.Ext(cfg.Source)) {
	case ".xlsx", ".xlsm", ".xls":
		return table.ReadXLSX(cfg.Source, cfg.SheetNames(), opts)
	default:
		return table.ReadCSV(cfg.Source, opts)
	}
}

// assemble renames source columns, applies substitutions, materializes
// constant and calculated columns, fixes column order, and re-validates
// declared dtypes.
func (e *Engine) assemble(t *table.Table, cfg *StateConfig, plan *readPlan) error {
	for _, m := range plan.renames {
		if err := t.Rename(m.Source, m.Target); err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, err)
		}
	}
	for _, m := range cfg.Columns {
		if len(m.Substitutions) == 0 {
			continue
		}
		c := t.Column(m.Target)
		if c == nil {
			continue
		}
		for i, v := range c.Values {
			if v.IsNull() {
				continue
			}
			if replacement, ok := m.Substitutions[v.Format()]; ok {
				c.Values[i] = table.String(replacement)
			}
		}
	}
	for _, m := range plan.constants {
		v, err := m.constantValue()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, err)
		}
		dtype := table.DtypeString
		if m.Dtype != "" {
			dtype = table.Dtype(m.Dtype)
		}
		if err := t.AddConstColumn(m.Target, dtype, v); err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, err)
		}
	}
	for _, m := range plan.calcs {
		if err := materializeCalculation(t, m); err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, err)
		}
	}

	// Column order is exactly the mapping order; required columns the
	// recipe does not produce are appended empty, and recipe columns
	// outside the required set are observable but not fatal.
	order := make([]string, len(cfg.Columns))
	for i, m := range cfg.Columns {
		order[i] = m.Target
	}
	if err := t.Reorder(order); err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, err)
	}
	if len(e.required) > 0 {
		requiredSet := make(map[string]struct{}, len(e.required))
		for _, name := range e.required {
			requiredSet[name] = struct{}{}
		}
		for _, name := range e.required {
			if !t.HasColumn(name) {
				e.logger.Info("appending empty required column",
					"state", cfg.State, "column", name)
				if err := t.AddNullColumn(name, table.DtypeString); err != nil {
					return apperrors.Wrap(apperrors.ErrConfig, err)
				}
			}
		}
		for _, m := range cfg.Columns {
			if m.Temporary {
				continue
			}
			if _, ok := requiredSet[m.Target]; !ok {
				e.logger.Warn("unexpected column not in required set",
					"state", cfg.State, "column", m.Target)
			}
		}
	}

	for _, m := range cfg.Columns {
		if m.Dtype == "" {
			continue
		}
		if err := t.ValidateColumnDtype(m.Target, table.Dtype(m.Dtype)); err != nil {
			return apperrors.Wrap(apperrors.ErrValidation, err)
		}
	}
	return nil
}

func materializeCalculation(t *table.Table, m ColumnMapping) error {
	calc, err := LookupCalculation(m.Calculation)
	if err != nil {
		return err
	}
	values := make([]table.Value, t.NumRows())
	for row := 0; row < t.NumRows(); row++ {
		v, err := calc(m.CalculationArgs, func(column string) table.Value {
			return t.Value(row, column)
		})
		if err != nil {
			return fmt.Errorf("calculation %q for column %q row %d: %w",
				m.Calculation, m.Target, row, err)
		}
		if m.Dtype != "" && !v.IsNull() {
			if v, err = table.Cast(v, table.Dtype(m.Dtype)); err != nil {
				return fmt.Errorf("calculation %q for column %q row %d: %w",
					m.Calculation, m.Target, row, err)
			}
		}
		values[row] = v
	}
	dtype := table.DtypeString
	if m.Dtype != "" {
		dtype = table.Dtype(m.Dtype)
	}
	return t.AddColumn(&table.Column{Name: m.Target, Dtype: dtype, Values: values})
}

// applyFilters runs the value-based and null-based row filters in mapping
// order, then the optional filter-file join.
func (e *Engine) applyFilters(t *table.Table, cfg *StateConfig, logger *slog.Logger) error {
	for _, m := range cfg.Columns {
		if len(m.FilterValues) > 0 {
			excluded := make(map[string]struct{}, len(m.FilterValues))
			for _, v := range m.FilterValues {
				excluded[v] = struct{}{}
			}
			removed := 0
			t.FilterRows(func(row int) bool {
				v := t.Value(row, m.Target)
				if v.IsNull() {
					return true
				}
				if _, drop := excluded[v.Format()]; drop {
					removed++
					return false
				}
				return true
			})
			if removed > 0 {
				logger.Info("filtered rows by value", "column", m.Target, "rows", removed)
				e.countDropped(cfg.Abbreviation, "filter_values", removed)
			}
		}
		if m.DropIfNull {
			removed := 0
			t.FilterRows(func(row int) bool {
				if t.Value(row, m.Target).IsNull() {
					removed++
					return false
				}
				return true
			})
			if removed > 0 {
				logger.Info("filtered null rows", "column", m.Target, "rows", removed)
				e.countDropped(cfg.Abbreviation, "null", removed)
			}
		}
	}
	if cfg.FilterJoin != nil {
		filter, err := table.ReadCSV(cfg.FilterJoin.File, table.ReadOptions{})
		if err != nil {
			return apperrors.Wrap(apperrors.ErrIO, err)
		}
		removed, err := joiner.FilterJoin(t, filter, cfg.FilterJoin.Exact, cfg.FilterJoin.Fuzzy)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, err)
		}
		logger.Info("filter-file join removed rows",
			"file", cfg.FilterJoin.File, "rows", removed)
		e.countDropped(cfg.Abbreviation, "filter_join", removed)
	}
	return nil
}

// formatDateColumns renders every date-typed column to its fixed textual
// form.
func formatDateColumns(t *table.Table) {
	for _, c := range t.Columns() {
		hasDate := c.Dtype == table.DtypeDate
		if !hasDate {
			for _, v := range c.Values {
				if v.Kind == table.KindDate {
					hasDate = true
					break
				}
			}
		}
		if !hasDate {
			continue
		}
		for i, v := range c.Values {
			if v.IsNull() {
				continue
			}
			c.Values[i] = table.String(v.Format())
		}
		c.Dtype = table.DtypeString
	}
}

// applyIDLookup attaches canonical identifiers from reference lookup
// files on a combination of exact and normalized fuzzy keys. Lookup hits
// take priority; existing identifiers survive misses. School lookups also
// infer district identifiers.
func (e *Engine) applyIDLookup(t *table.Table, spec *IDLookupSpec) error {
	lookup := make(map[string]string)
	for _, path := range spec.Files {
		ref, err := table.ReadCSV(path, table.ReadOptions{})
		if err != nil {
			return apperrors.Wrap(apperrors.ErrIO, err)
		}
		idCol := ref.Column(spec.IDColumn)
		if idCol == nil {
			return apperrors.Newf(apperrors.ErrConfig,
				"id lookup %s is missing column %q", path, spec.IDColumn)
		}
		for row := 0; row < ref.NumRows(); row++ {
			id := idCol.Values[row]
			if id.IsNull() {
				continue
			}
			key, ok := lookupKey(ref, row, spec, rightSide)
			if !ok {
				continue
			}
			lookup[key] = joiner.FormatIDList(id.Format(), spec.Width())
		}
	}

	existing := t.Column(spec.Target)
	values := make([]table.Value, t.NumRows())
	for row := 0; row < t.NumRows(); row++ {
		if key, ok := lookupKey(t, row, spec, leftSide); ok {
			if id, hit := lookup[key]; hit {
				values[row] = table.String(id)
				continue
			}
		}
		if existing != nil {
			values[row] = existing.Values[row]
		} else {
			values[row] = table.Null()
		}
	}
	if existing != nil {
		existing.Values = values
		existing.Dtype = table.DtypeString
	} else if err := t.AddColumn(&table.Column{
		Name: spec.Target, Dtype: table.DtypeString, Values: values,
	}); err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, err)
	}

	if !spec.Districts {
		target := t.Column(spec.Target)
		districtIDs := make([]table.Value, len(target.Values))
		for row, v := range target.Values {
			if v.IsNull() || v.Format() == "" {
				districtIDs[row] = table.Null()
				continue
			}
			districtIDs[row] = joiner.DistrictIDsFromSchoolIDs(v)
		}
		if dc := t.Column(joiner.ColNCESDistrictID); dc != nil {
			dc.Values = districtIDs
		} else if err := t.AddColumn(&table.Column{
			Name: joiner.ColNCESDistrictID, Dtype: table.DtypeString, Values: districtIDs,
		}); err != nil {
			return apperrors.Wrap(apperrors.ErrConfig, err)
		}
	}
	return nil
}

type joinSide int

const (
	leftSide joinSide = iota
	rightSide
)

// lookupKey composes the composite key for one row of either join side;
// ok is false when every key cell is null.
func lookupKey(t *table.Table, row int, spec *IDLookupSpec, side joinSide) (string, bool) {
	pick := func(p joiner.ColumnPair) string {
		if side == leftSide {
			return p.Left
		}
		return p.Right
	}
	parts := make([]string, 0, len(spec.Exact)+len(spec.Fuzzy))
	any := false
	for _, p := range spec.Exact {
		v := t.Value(row, pick(p))
		if !v.IsNull() {
			any = true
		}
		parts = append(parts, v.Format())
	}
	for _, p := range spec.Fuzzy {
		v := t.Value(row, pick(p))
		if !v.IsNull() {
			any = true
		}
		parts = append(parts, tokenizer.NormalizeKey(v.Format()))
	}
	return strings.Join(parts, "\x1f"), any
}

func (e *Engine) countDropped(state, reason string, rows int) {
	if e.metrics == nil || rows == 0 {
		return
	}
	e.metrics.RowsDroppedTotal.WithLabelValues(state, reason).Add(float64(rows))
}
