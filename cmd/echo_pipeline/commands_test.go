package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/harness"
	"github.com/jonathan/echo-pipeline/internal/server"
	"github.com/jonathan/echo-pipeline/internal/types"
)

type workspace struct {
	dir        string
	configPath string
	outputDir  string
	metricsDir string
	reportPath string
}

// newWorkspace writes a config that keeps every output inside a temp dir
func newWorkspace(t *testing.T, extra string) workspace {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv(config.AuthSecretEnv, "")
	dir := t.TempDir()
	ws := workspace{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		outputDir:  filepath.Join(dir, "content"),
		metricsDir: filepath.Join(dir, "metrics"),
		reportPath: filepath.Join(dir, "reports", "test_report.json"),
	}
	cfg := fmt.Sprintf(`formatter:
  output_dir: %s
  naming_convention: "run_{iteration}_final"
monitor:
  metrics_dir: %s
harness:
  performance_iterations: 2
  report_path: %s
  min_pass_rate: 1.0
  timeouts: {unit: 30, integration: 60, performance: 120, quality: 60}
%s`, ws.outputDir, ws.metricsDir, ws.reportPath, extra)
	require.NoError(t, os.WriteFile(ws.configPath, []byte(cfg), 0o644))
	return ws
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand_PersistsAcceptedIteration(t *testing.T) {
	ws := newWorkspace(t, "")

	out, err := execute("run", "--config", ws.configPath,
		"--topic", "Echo Pipeline Testing", "--format", "html", "--length", "short",
		"--style", "tone=friendly", "--iteration", "7")
	require.NoError(t, err, out)

	assert.Contains(t, out, "QUALITY REPORT")
	assert.Contains(t, out, "ARTIFACT PERSISTED")
	dir := filepath.Join(ws.outputDir, "run_7_final")
	for _, name := range []string{"index.md", "index.html", "index.jsonld", "metadata.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	files, err := filepath.Glob(filepath.Join(ws.metricsDir, "execution_7_*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = execute("run", "--config", ws.configPath, "--topic", "Echo Pipeline Testing", "--iteration", "7")
	assert.ErrorContains(t, err, "artifact conflict")

	_, err = execute("run", "--config", ws.configPath, "--topic", "Echo Pipeline Testing", "--iteration", "7", "--overwrite")
	assert.NoError(t, err)
}

func TestRunCommand_InputFileAndDryRun(t *testing.T) {
	ws := newWorkspace(t, "")
	input := filepath.Join(ws.dir, "spec.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"topic": "Structured Data", "primary_format": "jsonld", "length": "short"}`), 0o644))

	out, err := execute("run", "--config", ws.configPath, "--input", input, "--iteration", "dry", "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "dry run")
	assert.NoDirExists(t, filepath.Join(ws.outputDir, "run_dry_final"))
}

func TestRunCommand_RejectedIterationFails(t *testing.T) {
	ws := newWorkspace(t, "validator:\n  quality_threshold: 1.0\n  length_targets: {short: 5, medium: 500, long: 1000}\n")

	out, err := execute("run", "--config", ws.configPath, "--topic", "Zebra Crossing", "--length", "short", "--iteration", "r1")
	assert.ErrorIs(t, err, errRejected, out)
	assert.Contains(t, out, "FAILED")
	assert.NoDirExists(t, filepath.Join(ws.outputDir, "run_r1_final"))
}

func TestRunCommand_InvalidInput(t *testing.T) {
	ws := newWorkspace(t, "")

	_, err := execute("run", "--config", ws.configPath)
	assert.ErrorContains(t, err, "a topic must be provided")

	_, err = execute("run", "--config", ws.configPath, "--topic", "x", "--format", "pdf")
	assert.ErrorContains(t, err, "invalid input spec")
}

func TestRunCommand_ConfigErrorIsFatal(t *testing.T) {
	ws := newWorkspace(t, "validator:\n  consistency_threshold: 1.1\n  weights: {length: 0.5, validity: 0.5, keywords: 0}\n")

	_, err := execute("run", "--config", ws.configPath, "--topic", "Echo")
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "validator.consistency_threshold", cfgErr.Field)
	assert.NoDirExists(t, ws.metricsDir)
}

func TestTestCommand_WritesReport(t *testing.T) {
	ws := newWorkspace(t, "")

	out, err := execute("test", "--config", ws.configPath, "--types", "unit,performance")
	require.NoError(t, err, out)
	assert.Contains(t, out, "TEST HARNESS SUMMARY")
	assert.Contains(t, out, "2/2 passed")

	report, err := harness.ReadReport(ws.reportPath)
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, []types.TestType{types.TestUnit, types.TestPerformance}, report.Requested)
	assert.NotContains(t, report.Results, types.TestQuality)
}

func TestTestCommand_FailingTypesAreEnumerated(t *testing.T) {
	ws := newWorkspace(t, "validator:\n  quality_threshold: 1.0\n  length_targets: {short: 5, medium: 7, long: 1000}\n")

	_, err := execute("test", "--config", ws.configPath, "--quality-only", "--report", filepath.Join(ws.dir, "q.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality (0/3 passed)")
	assert.FileExists(t, filepath.Join(ws.dir, "q.json"), "a failing run still writes its report")
}

func TestTestCommand_UnknownType(t *testing.T) {
	ws := newWorkspace(t, "")
	_, err := execute("test", "--config", ws.configPath, "--types", "smoke")
	var unknown *harness.UnknownTestTypeError
	assert.ErrorAs(t, err, &unknown)
}

func TestHealthCommand(t *testing.T) {
	ws := newWorkspace(t, "")
	_, err := execute("run", "--config", ws.configPath, "--topic", "Echo Pipeline Testing", "--iteration", "h1")
	require.NoError(t, err)

	out, err := execute("health", "--config", ws.configPath, "--json")
	require.NoError(t, err, out)

	var payload struct {
		Health struct {
			MetricsWritable bool `json:"metrics_writable"`
		} `json:"health"`
		Summary struct {
			TotalExecutions int `json:"total_executions"`
			Accepted        int `json:"accepted"`
			Recent          struct {
				Executions int `json:"executions"`
			} `json:"recent_trends"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.True(t, payload.Health.MetricsWritable)
	assert.Equal(t, 1, payload.Summary.TotalExecutions)
	assert.Equal(t, 1, payload.Summary.Accepted)
	assert.Equal(t, 1, payload.Summary.Recent.Executions)

	_, err = execute("health", "--config", ws.configPath, "--save-report")
	require.NoError(t, err)
	reports, err := filepath.Glob(filepath.Join(ws.metricsDir, "performance_report_*.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestConfigCommands(t *testing.T) {
	ws := newWorkspace(t, "generator:\n  api_key: secret-value\n")

	out, err := execute("config", "print", "--config", ws.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "run_{iteration}_final")
	assert.NotContains(t, out, "secret-value")

	parsed, err := config.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.Harness.PerformanceIterations)

	out, err = execute("config", "validate", "--config", ws.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
}

func TestRequestedTypes(t *testing.T) {
	got, err := requestedTypes(&testOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.AllTestTypes, got)

	got, err = requestedTypes(&testOptions{types: "quality", unitOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []types.TestType{types.TestUnit, types.TestQuality}, got)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")

	key, err := resolveAPIKey(config.GeneratorConfig{Provider: "stub"}, "ignored")
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = resolveAPIKey(config.GeneratorConfig{Provider: "openai"}, "from-flag")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", key)

	key, err = resolveAPIKey(config.GeneratorConfig{Provider: "openai", APIKey: "from-config"}, "")
	require.NoError(t, err)
	assert.Equal(t, "from-config", key)

	key, err = resolveAPIKey(config.GeneratorConfig{Provider: "openai"}, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	t.Setenv("GEMINI_API_KEY", "")
	_, err = resolveAPIKey(config.GeneratorConfig{Provider: "gemini"}, "")
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, true, "json")
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger(&buf, false, "xml")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	ws := newWorkspace(t, "")
	t.Setenv(config.AuthSecretEnv, "command-test-secret-0123456789")

	out, err := execute("token", "--config", ws.configPath, "--subject", "ci-runner")
	require.NoError(t, err)

	cfg, err := config.LoadConfig(ws.configPath)
	require.NoError(t, err)
	cfg.Server.Auth.ResolveSecret()
	tokens, err := server.NewTokenService(cfg.Server.Auth)
	require.NoError(t, err)
	claims, err := tokens.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci-runner", claims.SubjectName())

	_, err = execute("token", "--config", ws.configPath)
	assert.ErrorContains(t, err, "subject")
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	ws := newWorkspace(t, "")
	_, err := execute("token", "--config", ws.configPath, "--subject", "ci-runner")
	assert.ErrorContains(t, err, config.AuthSecretEnv)
}

func TestServeCommand_RejectsBadInput(t *testing.T) {
	ws := newWorkspace(t, "")
	_, err := execute("serve", "--config", ws.configPath, "--port", "70000")
	assert.ErrorContains(t, err, "invalid port")

	short := newWorkspace(t, "server:\n  auth:\n    secret: short\n")
	_, err = execute("serve", "--config", short.configPath)
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestConfigPrint_HidesSecrets(t *testing.T) {
	ws := newWorkspace(t, "")
	t.Setenv(config.AuthSecretEnv, "printed-secret-must-not-leak")

	out, err := execute("config", "print", "--config", ws.configPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "printed-secret-must-not-leak")
	assert.Contains(t, out, "rate_limit:")
}
