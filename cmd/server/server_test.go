package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"oee-copilot/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// テスト環境の設定
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["import"])
	assert.True(t, names["stats"])
}

func TestImportAndStatsCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "oee.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SYSTEM_PROMPT_PATH", filepath.Join(dir, "none.yaml"))

	csvPath := filepath.Join(dir, "logs.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("equipment,status,duration\nPress,running,50\nPress,down,10\n,down,5\n"), 0o600))

	var out bytes.Buffer
	importCmd.SetOut(&out)
	require.NoError(t, runImport(importCmd, []string{csvPath}))
	assert.Contains(t, out.String(), `"imported": 2`)
	assert.Contains(t, out.String(), `"skipped": 1`)

	out.Reset()
	statsCmd.SetOut(&out)
	require.NoError(t, runStats(statsCmd, nil))
	assert.Contains(t, out.String(), "Total rows: 2")
	assert.Contains(t, out.String(), "Press")
}

func TestImportCommand_MissingFile(t *testing.T) {
	err := runImport(importCmd, []string{filepath.Join(t.TempDir(), "nope.csv")})
	assert.Error(t, err)
}

func TestWriteStats_WarnsAboveHistoryLimit(t *testing.T) {
	var out bytes.Buffer
	writeStats(&out, models.LogStats{TotalRows: 12, ByEquipment: map[string]int{"B": 2, "A": 10}}, 10)

	text := out.String()
	assert.Contains(t, text, "Total rows: 12")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("A ")), bytes.Index(out.Bytes(), []byte("B ")))
	assert.Contains(t, text, "only the latest 10 rows")
}
