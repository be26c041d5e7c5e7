package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "environment: test\n" +
		"log:\n  level: error\n" +
		"storage:\n  backend: file\n  root: " + filepath.Join(dir, "models") + "\n" +
		"scheduler:\n  input_dim: 8\n  hidden_dims: [16, 8]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInitModelThenVerify(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "init-model", "--kind", "cppo", "--promote")
	require.NoError(t, err)
	var ref models.ModelRef
	require.NoError(t, json.Unmarshal([]byte(out), &ref))
	assert.Equal(t, "finpolicy", ref.Name)
	require.NotEmpty(t, ref.Version)

	out, err = execute(t, "--config", cfgPath, "verify", "--version", ref.Version)
	require.NoError(t, err)
	var rep registry.IntegrityReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.True(t, rep.Valid)
	assert.Equal(t, ref.Version, rep.Ref.Version)
}

func TestTrainFromSampleFileSkipsWhenTooFew(t *testing.T) {
	cfgPath := writeConfig(t)
	samples := filepath.Join(t.TempDir(), "samples.jsonl")
	require.NoError(t, os.WriteFile(samples, []byte(`{"id":"a","timestamp":"2024-01-01T00:00:00Z","state":[0,0,0,0,0,0,0,0],"nextState":[0,0,0,0,0,0,0,0]}`+"\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "train", "--once", "--samples", samples, "--since", "2023-12-31")
	require.NoError(t, err)
	var sum models.CycleSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, models.OutcomeSkipped, sum.Outcome)
	assert.Equal(t, 1, sum.Samples)

	out, err = execute(t, "--config", cfgPath, "train", "--once", "--samples", samples, "--since", "2024-06-01")
	require.NoError(t, err)
	sum = models.CycleSummary{}
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Zero(t, sum.Samples)
}

func TestTrainRejectsBadSince(t *testing.T) {
	cfgPath := writeConfig(t)
	_, err := execute(t, "--config", cfgPath, "train", "--since", "soon")
	assert.ErrorContains(t, err, "invalid --since")
	trainSince = ""
}

func TestVerifyMissingModelFails(t *testing.T) {
	cfgPath := writeConfig(t)
	_, err := execute(t, "--config", cfgPath, "verify", "--model", "nothing", "--version", "latest")
	assert.Error(t, err)
}
