package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/syncset/internal/binding"
)

// SchemaResult holds generated DDL, for JSON output.
type SchemaResult struct {
	Definition string   `json:"definition"`
	Statements []string `json:"statements"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "schema <definitions-dir>",
		Short: "Print the DDL for entity definitions",
		Long: `Print CREATE TABLE statements for every table of every definition
in the directory. The output can be piped into sqlite3 to prepare a
database.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args[0], only, cmd)
		},
	}

	cmd.Flags().StringVar(&only, "definition", "", "limit output to one definition")

	return cmd
}

func runSchema(opts *RootOptions, dir, only string, cmd *cobra.Command) error {
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

	var results []SchemaResult
	for _, def := range defs {
		if only != "" && def.Name != only {
			continue
		}
		model, err := binding.Compile(def)
		if err != nil {
			_ = formatter.Error("E002", err.Error(), nil)
			return NewExitError(ExitFailure, err.Error())
		}
		result := SchemaResult{Definition: model.Name}
		for _, t := range model.Tables {
			result.Statements = append(result.Statements, t.Binding.DDL(t.Schema))
		}
		results = append(results, result)
	}
	if only != "" && len(results) == 0 {
		msg := fmt.Sprintf("no definition %q in %s", only, dir)
		_ = formatter.Error("E001", msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	if formatter.Format == "json" {
		return formatter.Success(results)
	}
	for _, result := range results {
		formatter.VerboseLog("-- definition: %s", result.Definition)
		fmt.Fprintln(formatter.Writer, strings.Join(result.Statements, "\n\n"))
	}
	return nil
}
