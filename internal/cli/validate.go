package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/syncset/internal/binding"
)

// ValidationIssue is one definition problem, for JSON output.
type ValidationIssue struct {
	Definition string `json:"definition,omitempty"`
	File       string `json:"file,omitempty"`
	Message    string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Validate entity definition files",
		Long: `Validate entity definition files without touching a database.

Checks YAML syntax, the definition schema, and every cross-reference:
key fields, skip lists, version columns, and relations.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	defs, err := binding.LoadDir(dir)
	if err != nil {
		var defErr *binding.DefinitionError
		// Problems with individual files are validation failures;
		// a missing or empty directory is a command error.
		if errors.As(err, &defErr) && defErr.File != dir {
			return outputValidationIssues(formatter, []ValidationIssue{
				{File: defErr.File, Message: defErr.Message},
			})
		}
		_ = formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	formatter.VerboseLog("Loaded %d definition(s) from %s", len(defs), dir)

	var issues []ValidationIssue
	for _, def := range defs {
		formatter.VerboseLog("Validating definition: %s", def.Name)
		if _, err := binding.Compile(def); err != nil {
			issues = append(issues, ValidationIssue{Definition: def.Name, Message: err.Error()})
		}
	}

	if len(issues) > 0 {
		return outputValidationIssues(formatter, issues)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d definition(s) valid\n", len(defs))
	return nil
}

func outputValidationIssues(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		_ = formatter.Error("E002", "validation failed", ValidationResult{Valid: false, Issues: issues})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		switch {
		case issue.File != "":
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.File, issue.Message)
		case issue.Definition != "":
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Definition, issue.Message)
		default:
			fmt.Fprintf(formatter.Writer, "  %s\n", issue.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
}
