package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/sqlstore"
)

const ordersYAML = `name: orders
tables:
  - name: header
    table: order_header
    fields:
      - name: order_no
        type: text
      - name: customer
        type: text
      - name: open
        type: bool
        default: true
    key: [order_no]
  - name: lines
    table: order_lines
    fields:
      - name: line_id
        type: text
      - name: order_no
        type: text
      - name: qty
        type: int
    key: [line_id]
relations:
  - parent: header
    child: lines
    parentKey: [order_no]
    childKey: [order_no]
`

func writeDefs(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.yaml"), []byte(yaml), 0o644))
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "syncset", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "schema", "query"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "validate", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestValidateAcceptsGoodDefinitions(t *testing.T) {
	dir := writeDefs(t, ordersYAML)

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
}

func TestValidateRejectsBrokenDefinition(t *testing.T) {
	broken := `name: broken
tables:
  - name: t
    table: t
    fields:
      - name: id
        type: text
    key: [no_such_field]
`
	dir := writeDefs(t, broken)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "no_such_field")
}

func TestValidateMissingDirIsCommandError(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSchemaPrintsDDL(t *testing.T) {
	dir := writeDefs(t, ordersYAML)

	out, err := execute(t, "schema", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS order_header")
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS order_lines")
}

func TestSchemaUnknownDefinition(t *testing.T) {
	dir := writeDefs(t, ordersYAML)

	_, err := execute(t, "schema", dir, "--definition", "invoices")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryJSONOutput(t *testing.T) {
	dir := writeDefs(t, ordersYAML)
	dbPath := filepath.Join(t.TempDir(), "orders.db")

	// Prepare the database with one row.
	store, err := sqlstore.Open(dbPath)
	require.NoError(t, err)
	defs, err := binding.LoadDir(dir)
	require.NoError(t, err)
	model, err := binding.Compile(defs[0])
	require.NoError(t, err)
	ctx := context.Background()
	for _, tbl := range model.Tables {
		require.NoError(t, store.ApplyDDL(ctx, tbl.Binding.DDL(tbl.Schema)))
	}
	require.NoError(t, store.ApplyDDL(ctx,
		"INSERT INTO order_header (order_no, customer, open) VALUES ('O-1', 'Alice', 1)"))
	require.NoError(t, store.Close())

	out, err := execute(t, "--format", "json", "query", dir, "orders", "header", "customer=Alice", "--db", dbPath)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result QueryResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 1, result.Count)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "O-1", result.Rows[0]["order_no"])
}

func TestQueryBadFilterField(t *testing.T) {
	dir := writeDefs(t, ordersYAML)
	dbPath := filepath.Join(t.TempDir(), "orders.db")

	store, err := sqlstore.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = execute(t, "query", dir, "orders", "header", "bogus=1", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "bogus")
}
