package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/engine"
	"github.com/roach88/syncset/internal/entity"
	"github.com/roach88/syncset/internal/predicate"
	"github.com/roach88/syncset/internal/record"
	"github.com/roach88/syncset/internal/sqlstore"
)

// QueryResult holds query output rows, for JSON output.
type QueryResult struct {
	Table string              `json:"table"`
	Count int                 `json:"count"`
	Rows  []map[string]string `json:"rows"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "query <definitions-dir> <definition> <table> [field=value ...]",
		Short: "Query a table through its entity definition",
		Long: `Query one table of an entity definition against a SQLite database.

Filters are field=value pairs combined with AND; values are converted
to the field's declared type, and the literal "null" matches NULL.`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, dbPath, args[0], args[1], args[2], args[3:], cmd)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runQuery(opts *RootOptions, dbPath, dir, defName, table string, filters []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	defs, err := binding.LoadDir(dir)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	store, err := sqlstore.Open(dbPath)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	defer store.Close()

	reg, err := entity.NewRegistry(engine.New(store), defs)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	ent, err := reg.Get(defName)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	pred, err := buildFilter(ent, table, filters)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	formatter.VerboseLog("Querying %s.%s with %d filter(s)", defName, table, len(filters))

	ds, _, err := ent.Query(cmd.Context(), table, pred)
	if err != nil {
		_ = formatter.Error("E002", err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	c, _ := ds.Container(table)

	result := QueryResult{Table: table, Count: c.Len(), Rows: []map[string]string{}}
	for _, row := range c.Rows() {
		out := make(map[string]string, row.Schema().Len())
		for _, name := range row.Schema().FieldNames() {
			out[name] = record.String(row.MustGet(name))
		}
		result.Rows = append(result.Rows, out)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	names := fieldNames(ent, table)
	fmt.Fprintln(formatter.Writer, strings.Join(names, "\t"))
	for _, row := range result.Rows {
		vals := make([]string, len(names))
		for i, name := range names {
			vals[i] = row[name]
		}
		fmt.Fprintln(formatter.Writer, strings.Join(vals, "\t"))
	}
	fmt.Fprintf(formatter.Writer, "(%d row(s))\n", result.Count)
	return nil
}

func fieldNames(ent *entity.Entity, table string) []string {
	t, ok := ent.Model().Table(table)
	if !ok {
		return nil
	}
	return t.Schema.FieldNames()
}

// buildFilter turns field=value arguments into a conjunctive predicate,
// converting each value to the field's declared type.
func buildFilter(ent *entity.Entity, table string, filters []string) (predicate.Pred, error) {
	t, ok := ent.Model().Table(table)
	if !ok {
		return nil, fmt.Errorf("no table %q in definition %q", table, ent.Name())
	}

	preds := make([]predicate.Pred, 0, len(filters))
	for _, raw := range filters {
		name, lit, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("filter %q: want field=value", raw)
		}
		f, ok := t.Schema.Field(name)
		if !ok {
			return nil, fmt.Errorf("filter %q: no field %q in table %q", raw, name, table)
		}
		v, err := parseLiteral(f.Type, lit)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", raw, err)
		}
		preds = append(preds, predicate.Eq(name, v))
	}
	return predicate.And(preds...), nil
}

func parseLiteral(ft record.FieldType, lit string) (record.Value, error) {
	if lit == "null" {
		return record.Null{}, nil
	}
	switch ft {
	case record.TypeText:
		return record.NewText(lit), nil
	case record.TypeInt:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", lit)
		}
		return record.NewInt(n), nil
	case record.TypeDecimal:
		return record.NewDecimal(lit)
	case record.TypeBool:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", lit)
		}
		return record.NewBool(b), nil
	default:
		return nil, fmt.Errorf("filters on %s fields are not supported", ft)
	}
}
