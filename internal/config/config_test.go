package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bomsort/internal/bom"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.ProjectDir)
	assert.Equal(t, ".", cfg.SourceDir)
	assert.Equal(t, []string{".slddrw", ".dxf"}, cfg.SourceExts)
	assert.Equal(t, 20, cfg.HeaderMaxRows)
	assert.Equal(t, "skip", cfg.UnmatchedPolicy)
	assert.Equal(t, "未分类材料", cfg.DefaultMaterial)
	assert.Equal(t, "未知厚度", cfg.DefaultThickness)
	assert.Equal(t, 50.0, cfg.Drawing.TextHeight)
	assert.Equal(t, 2, cfg.Drawing.TextColor)
	assert.Equal(t, 100.0, cfg.Drawing.Spacing)
	assert.Equal(t, []string{"0", "细实线层"}, cfg.Drawing.VisibleLayers)
	assert.True(t, cfg.HideOtherLayers())
	assert.Equal(t, "ANSI_936", cfg.Drawing.Codepage)
	assert.Equal(t, filepath.Join(".", "result", "bomsort.db"), cfg.DBPath)
	assert.Equal(t, "none", cfg.LLMProvider)
	assert.Equal(t, 90, cfg.ExternalHTTPTimeoutSeconds)
	assert.False(t, cfg.SlackConfigured())
	assert.False(t, cfg.ConverterConfigured())
	require.NotNil(t, cfg.Location)
	assert.Equal(t, "UTC", cfg.Location.String())

	m, err := cfg.Mapping()
	require.NoError(t, err)
	assert.Equal(t, bom.Mapping{bom.RolePart: "图号", bom.RoleMaterial: "材料", bom.RoleQuantity: "数量"}, m)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
project_dir: /work/job-17
source_dir: /work/pool
source_recursive: true
columns:
  part: 零件号
  material: 材质
  backup_material: 备注
  quantity: 件数
  name: 名称
unmatched_material_policy: default
drawing:
  text_height: 30
  spacing: 0
  hide_other_layers: false
converter_command: swconvert --in {in} --out {out}
slack_bot_token: xoxb-yaml
slack_channel_id: C1
timezone: UTC
`)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DB_PATH", "/tmp/ledger.db")
	t.Setenv("BOMSORT_SOURCE_EXTENSIONS", ".DXF, .slddrw ,")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/work/job-17", cfg.ProjectDir)
	assert.Equal(t, "/work/pool", cfg.SourceDir)
	assert.True(t, cfg.SourceRecursive)
	assert.Equal(t, []string{".DXF", ".slddrw"}, cfg.SourceExts)
	assert.Equal(t, "default", cfg.UnmatchedPolicy)
	assert.Equal(t, 30.0, cfg.Drawing.TextHeight)
	assert.Equal(t, 100.0, cfg.Drawing.Spacing, "zero spacing falls back to the default")
	assert.False(t, cfg.HideOtherLayers())
	assert.Equal(t, "/tmp/ledger.db", cfg.DBPath)
	assert.Equal(t, "xoxb-env", cfg.SlackBotToken)
	assert.True(t, cfg.SlackConfigured())
	assert.True(t, cfg.ConverterConfigured())

	m, err := cfg.Mapping()
	require.NoError(t, err)
	assert.Equal(t, "零件号", m[bom.RolePart])
	assert.Equal(t, "备注", m[bom.RoleBackupMaterial])
	assert.Equal(t, "名称", m[bom.RoleName])
}

func TestLoadConfigPathEnv(t *testing.T) {
	path := writeConfig(t, "project_dir: /from/env\ntimezone: UTC\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.ProjectDir)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad policy", yaml: "unmatched_material_policy: guess\n", wantErr: "unmatched_material_policy"},
		{name: "anthropic without key", yaml: "llm_provider: anthropic\n", wantErr: "anthropic_api_key"},
		{name: "unknown provider", yaml: "llm_provider: openai\n", wantErr: "llm_provider"},
		{name: "confidence range", yaml: "llm_confidence_threshold: 1.5\n", wantErr: "llm_confidence_threshold"},
		{name: "negative spacing", yaml: "drawing:\n  spacing: -5\n", wantErr: "drawing.spacing"},
		{name: "color range", yaml: "drawing:\n  text_color: 300\n", wantErr: "drawing.text_color"},
		{name: "slack half set", yaml: "slack_bot_token: xoxb\n", wantErr: "slack_channel_id"},
		{name: "short http timeout", yaml: "external_http_timeout_seconds: 2\n", wantErr: "external_http_timeout_seconds"},
		{name: "bad timezone", yaml: "timezone: Mars/Base\n", wantErr: "invalid timezone"},
		{name: "bad env int", yaml: "", env: map[string]string{"BOMSORT_HEADER_MAX_ROWS": "many"}, wantErr: "BOMSORT_HEADER_MAX_ROWS"},
		{name: "bad yaml", yaml: "columns: [\n", wantErr: "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestColumnsFromEnvAreIgnored(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("COLUMNS_PART", "X")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "图号", cfg.Columns.Part)
}
