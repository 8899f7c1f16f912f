package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegIngest/internal/domain"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cliApp := newCLI()
	cliApp.Writer = &out
	cliApp.ErrWriter = &out
	err := cliApp.Run(append([]string{"regingest"}, args...))
	return out.String(), err
}

func isolateEnv(t *testing.T, driver, dsn string) {
	t.Helper()
	t.Setenv("REGINGEST_CONFIG", "")
	t.Setenv("REGINGEST_ORG", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABASE_DRIVER", driver)
	t.Setenv("DATABASE_DSN", dsn)
}

func TestCLIRequiresCommand(t *testing.T) {
	isolateEnv(t, "memory", "")

	_, err := runCLI(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regulation key")
}

func TestCLIRequiresOrgForIngest(t *testing.T) {
	isolateEnv(t, "memory", "")

	_, err := runCLI(t, "gdpr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--org")

	_, err = runCLI(t, "--all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--org")
}

func TestCLIRejectsConflictingCommands(t *testing.T) {
	isolateEnv(t, "memory", "")

	_, err := runCLI(t, "--org", "o", "--all", "--list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting")

	_, err = runCLI(t, "--org", "o", "gdpr", "dora")
	require.Error(t, err)
}

func TestCLIListsCatalog(t *testing.T) {
	isolateEnv(t, "memory", "")

	out, err := runCLI(t, "--list")
	require.NoError(t, err)
	for _, key := range []string{"dora", "eu-ai-act", "gdpr", "nis2"} {
		assert.Contains(t, out, key)
	}
	assert.Contains(t, out, "2018-05-25")
}

func TestCLIStatusOnEmptyDatabase(t *testing.T) {
	isolateEnv(t, "sqlite", filepath.Join(t.TempDir(), "jobs.db"))

	out, err := runCLI(t, "--status", "--org", "org-a")
	require.NoError(t, err)
	assert.Contains(t, out, "No ingest jobs")
}

func TestCLIReconcileStale(t *testing.T) {
	isolateEnv(t, "memory", "")

	out, err := runCLI(t, "--reconcile-stale", "2h")
	require.NoError(t, err)
	assert.Contains(t, out, "Marked 0 stale job(s)")
}

func TestCLIUnknownRegulation(t *testing.T) {
	isolateEnv(t, "memory", "")

	_, err := runCLI(t, "--org", "org-a", "hipaa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the catalog")
}

func TestPrintRunShowsFailureExcerpt(t *testing.T) {
	stats := domain.RunStats{
		JobID:        "job-1",
		RegulationID: "gdpr",
		Status:       domain.JobSucceeded,
		Provisions:   10,
		Enriched:     3,
		Failed:       7,
	}
	for i := 1; i <= 7; i++ {
		stats.Failures = append(stats.Failures, domain.FailureSummary{Number: fmt.Sprint(i), Error: "malformed"})
	}

	var out bytes.Buffer
	printRun(&out, stats)
	assert.Contains(t, out.String(), "gdpr: succeeded")
	assert.Contains(t, out.String(), "failed 7")
	assert.Contains(t, out.String(), "Article 5: malformed")
	assert.Contains(t, out.String(), "+2 more")
}
