package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"elisedb/metrics"
	"elisedb/provision"
	"elisedb/schema"
	"elisedb/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// execute runs the root command with args and returns stdout and stderr
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// unreachable points the configuration at a closed port
func unreachable(t *testing.T) {
	t.Setenv("ELISEDB_MONGODB_URI", "mongodb://127.0.0.1:1/?directConnection=true")
	t.Setenv("ELISEDB_MONGODB_CONNECT_TIMEOUT", "300ms")
}

func findCommand(root *cobra.Command, name string) *cobra.Command {
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "elisedb", cmd.Use)
	assert.NotNil(t, cmd.RunE, "bare elisedb must run the bootstrap")

	for _, name := range []string{"init", "verify", "plan"} {
		assert.NotNil(t, findCommand(cmd, name), "Missing command: %s", name)
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"config", "json", "no-color", "quiet", "timeout", "plan"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "Missing persistent flag: %s", name)
	}
	assert.NotNil(t, cmd.Flags().Lookup("progress"))
	assert.Equal(t, "5m0s", cmd.PersistentFlags().Lookup("timeout").DefValue)
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCmd()

	initCmd := findCommand(cmd, "init")
	require.NotNil(t, initCmd)
	progress := initCmd.Flags().Lookup("progress")
	require.NotNil(t, progress)
	assert.Equal(t, "true", progress.DefValue)

	verifyCmd := findCommand(cmd, "verify")
	require.NotNil(t, verifyCmd)
	assert.NotNil(t, verifyCmd.Flags().Lookup("expect-empty"))
}

func TestPlanCmd_YAML(t *testing.T) {
	stdout, _, err := execute(t, "plan", "--quiet")
	require.NoError(t, err)

	var plan schema.Plan
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &plan))
	assert.Equal(t, schema.Default(), plan)

	assert.Contains(t, stdout, "# steps:")
	assert.Contains(t, stdout, "create-user elise")
	assert.Contains(t, stdout, "create-index temp_files.file_id")
}

func TestPlanCmd_JSONRetargetsDatabase(t *testing.T) {
	t.Setenv("ELISEDB_MONGODB_DATABASE", "clinic")

	stdout, _, err := execute(t, "plan", "--json", "--quiet")
	require.NoError(t, err)

	var out planOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "clinic", out.Plan.Database)
	assert.Equal(t, []schema.RoleGrant{{Role: "readWrite", DB: "clinic"}}, out.Plan.User.Roles)

	require.Len(t, out.Steps, 8)
	assert.Equal(t, provision.PlannedStep{Name: provision.StepSelectDatabase, Target: "clinic"}, out.Steps[0])
	assert.Equal(t, provision.StepComplete, out.Steps[7].Name)
}

func TestPlanCmd_PlanFileWins(t *testing.T) {
	t.Setenv("ELISEDB_MONGODB_DATABASE", "clinic")

	path := filepath.Join(t.TempDir(), "plan.yaml")
	doc := `database: records
user:
  username: archivist
  roles:
    - role: read
      db: records
collections:
  - name: notes
indexes: []
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	stdout, _, err := execute(t, "plan", "--json", "--quiet", "--plan", path)
	require.NoError(t, err)

	var out planOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "records", out.Plan.Database)
	assert.Equal(t, "archivist", out.Plan.User.Username)
	assert.Len(t, out.Steps, 4)
}

func TestPlanCmd_InvalidPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: elise_db\ncollections: []\n"), 0o600))

	stdout, _, err := execute(t, "plan", "--quiet", "--plan", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrInvalidPlan)
	assert.Empty(t, stdout)
}

func TestPlanCmd_InvalidConfig(t *testing.T) {
	t.Setenv("ELISEDB_MONGODB_URI", "http://localhost:27017")

	_, _, err := execute(t, "plan", "--quiet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestInitCmd_Unreachable(t *testing.T) {
	unreachable(t)

	stdout, _, err := execute(t, "init", "--quiet", "--progress=false")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConnectivity)
	assert.NotContains(t, stdout, provision.CompletionMessage)
}

func TestRootCmd_BareRunsInit(t *testing.T) {
	unreachable(t)

	stdout, _, err := execute(t, "--quiet")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConnectivity)
	assert.Empty(t, stdout)
}

func TestInitCmd_SecretFailure(t *testing.T) {
	unreachable(t)
	t.Setenv("ELISEDB_SECRETS_PROVIDER", "env")
	t.Setenv("ELISEDB_APP_USER_PASSWORD", "")

	_, _, err := execute(t, "init", "--quiet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load secrets")
	assert.NotErrorIs(t, err, storage.ErrConnectivity)
}

func TestVerifyCmd_Unreachable(t *testing.T) {
	unreachable(t)

	_, _, err := execute(t, "verify", "--quiet")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConnectivity)
}

func TestOutputAsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputAsJSON(&buf, initResult{Message: provision.CompletionMessage}))

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "\n  \"message\": ")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, provision.CompletionMessage, decoded["message"])
}

func TestInitCmd_UnreachablePushesFailedRun(t *testing.T) {
	unreachable(t)

	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	t.Setenv("ELISEDB_METRICS_PUSHGATEWAY_URL", srv.URL)

	before := testutil.ToFloat64(metrics.BootstrapRuns.WithLabelValues(metrics.OutcomeFailure))

	_, _, err := execute(t, "init", "--quiet", "--progress=false")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConnectivity)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.BootstrapRuns.WithLabelValues(metrics.OutcomeFailure)))
	assert.Equal(t, "/metrics/job/elisedb_bootstrap/database/elise_db", gotPath)
	assert.NotEmpty(t, gotBody)
}
