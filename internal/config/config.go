package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bomsort/internal/bom"
)

const defaultConfigPath = "config.yaml"

// Columns maps parts-list roles to header labels.
type Columns struct {
	Part           string `yaml:"part"`
	Material       string `yaml:"material"`
	BackupMaterial string `yaml:"backup_material"`
	Quantity       string `yaml:"quantity"`
	Name           string `yaml:"name"`
}

// Drawing holds the merge and annotation settings.
type Drawing struct {
	TextHeight      float64  `yaml:"text_height"`
	TextLayer       string   `yaml:"text_layer"`
	TextColor       int      `yaml:"text_color"`
	Spacing         float64  `yaml:"spacing"`
	VisibleLayers   []string `yaml:"visible_layers"`
	HideOtherLayers *bool    `yaml:"hide_other_layers"`
	Codepage        string   `yaml:"codepage"`
}

type Config struct {
	ProjectDir      string   `yaml:"project_dir"`
	BOMFile         string   `yaml:"bom_file"`
	SourceDir       string   `yaml:"source_dir"`
	SourceRecursive bool     `yaml:"source_recursive"`
	SourceExts      []string `yaml:"source_extensions"`
	HeaderMaxRows   int      `yaml:"header_max_rows"`

	Columns Columns `yaml:"columns"`

	UnmatchedPolicy  string `yaml:"unmatched_material_policy"`
	DefaultMaterial  string `yaml:"default_material"`
	DefaultThickness string `yaml:"default_thickness"`

	Drawing Drawing `yaml:"drawing"`

	ConverterCommand    string   `yaml:"converter_command"`
	ConverterTimeoutSec int      `yaml:"converter_timeout_seconds"`
	NativeExtensions    []string `yaml:"native_extensions"`

	DBPath          string `yaml:"db_path"`
	MetricsTextfile string `yaml:"metrics_textfile"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`

	SlackBotToken string   `yaml:"slack_bot_token"`
	SlackChannel  string   `yaml:"slack_channel_id"`
	SlackMention  []string `yaml:"slack_mention"`

	LLMProvider     string  `yaml:"llm_provider"`
	LLMModel        string  `yaml:"llm_model"`
	LLMConfidence   float64 `yaml:"llm_confidence_threshold"`
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	SweepSchedule string `yaml:"sweep_schedule"`
	Timezone      string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Load reads path (or $CONFIG_PATH, or ./config.yaml), applies environment
// overrides and defaults, and validates the result. A missing file is not an
// error; every field then comes from the environment or its default.
func Load(path string) (Config, error) {
	var cfg Config

	configPath := defaultConfigPath
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if path != "" {
		configPath = path
	}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configPath, err)
		}
	case path != "" || !os.IsNotExist(err):
		return cfg, fmt.Errorf("read %s: %w", configPath, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv never touches the role mapping; it only comes from the file.
func applyEnv(cfg *Config) error {
	envOverride(&cfg.ProjectDir, "BOMSORT_PROJECT_DIR")
	envOverride(&cfg.BOMFile, "BOMSORT_BOM_FILE")
	envOverride(&cfg.SourceDir, "BOMSORT_SOURCE_DIR")
	envOverrideBool(&cfg.SourceRecursive, "BOMSORT_SOURCE_RECURSIVE")
	envOverrideList(&cfg.SourceExts, "BOMSORT_SOURCE_EXTENSIONS")
	envOverride(&cfg.UnmatchedPolicy, "BOMSORT_UNMATCHED_MATERIAL_POLICY")
	envOverride(&cfg.ConverterCommand, "BOMSORT_CONVERTER_COMMAND")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.MetricsTextfile, "METRICS_TEXTFILE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannel, "SLACK_CHANNEL_ID")
	envOverrideList(&cfg.SlackMention, "SLACK_MENTION")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.SweepSchedule, "SWEEP_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if err := envOverrideInt(&cfg.HeaderMaxRows, "BOMSORT_HEADER_MAX_ROWS"); err != nil {
		return err
	}
	if err := envOverrideInt(&cfg.ConverterTimeoutSec, "BOMSORT_CONVERTER_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	return envOverrideFloat(&cfg.LLMConfidence, "LLM_CONFIDENCE_THRESHOLD")
}

func applyDefaults(cfg *Config) {
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}
	if cfg.SourceDir == "" {
		cfg.SourceDir = cfg.ProjectDir
	}
	if len(cfg.SourceExts) == 0 {
		cfg.SourceExts = []string{".slddrw", ".dxf"}
	}
	if cfg.HeaderMaxRows == 0 {
		cfg.HeaderMaxRows = 20
	}
	if cfg.Columns.Part == "" {
		cfg.Columns.Part = "图号"
	}
	if cfg.Columns.Material == "" {
		cfg.Columns.Material = "材料"
	}
	if cfg.Columns.Quantity == "" {
		cfg.Columns.Quantity = "数量"
	}
	if cfg.UnmatchedPolicy == "" {
		cfg.UnmatchedPolicy = "skip"
	}
	if cfg.DefaultMaterial == "" {
		cfg.DefaultMaterial = "未分类材料"
	}
	if cfg.DefaultThickness == "" {
		cfg.DefaultThickness = "未知厚度"
	}
	if cfg.Drawing.TextHeight == 0 {
		cfg.Drawing.TextHeight = 50
	}
	if cfg.Drawing.TextLayer == "" {
		cfg.Drawing.TextLayer = "0"
	}
	if cfg.Drawing.TextColor == 0 {
		cfg.Drawing.TextColor = 2
	}
	if cfg.Drawing.Spacing == 0 {
		cfg.Drawing.Spacing = 100
	}
	if len(cfg.Drawing.VisibleLayers) == 0 {
		cfg.Drawing.VisibleLayers = []string{"0", "细实线层"}
	}
	if cfg.Drawing.HideOtherLayers == nil {
		hide := true
		cfg.Drawing.HideOtherLayers = &hide
	}
	if cfg.Drawing.Codepage == "" {
		cfg.Drawing.Codepage = "ANSI_936"
	}
	if cfg.ConverterTimeoutSec == 0 {
		cfg.ConverterTimeoutSec = 300
	}
	if len(cfg.NativeExtensions) == 0 {
		cfg.NativeExtensions = []string{".slddrw"}
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.ProjectDir, "result", "bomsort.db")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "none"
	}
	if cfg.LLMConfidence == 0 {
		cfg.LLMConfidence = 0.70
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = 90
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

// Validate checks field ranges and resolves Location.
func (c *Config) Validate() error {
	switch c.UnmatchedPolicy {
	case "skip", "default":
	default:
		return fmt.Errorf("unmatched_material_policy must be 'skip' or 'default', got '%s'", c.UnmatchedPolicy)
	}
	switch c.LLMProvider {
	case "none":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	default:
		return fmt.Errorf("llm_provider must be 'none' or 'anthropic', got '%s'", c.LLMProvider)
	}
	if c.LLMConfidence < 0 || c.LLMConfidence > 1 {
		return fmt.Errorf("invalid llm_confidence_threshold '%f': must be between 0 and 1", c.LLMConfidence)
	}
	if c.HeaderMaxRows < 1 {
		return fmt.Errorf("invalid header_max_rows '%d': must be >= 1", c.HeaderMaxRows)
	}
	if c.Drawing.TextHeight <= 0 {
		return fmt.Errorf("invalid drawing.text_height '%g': must be > 0", c.Drawing.TextHeight)
	}
	if c.Drawing.Spacing < 0 {
		return fmt.Errorf("invalid drawing.spacing '%g': must be >= 0", c.Drawing.Spacing)
	}
	if c.Drawing.TextColor < 1 || c.Drawing.TextColor > 255 {
		return fmt.Errorf("invalid drawing.text_color '%d': must be between 1 and 255", c.Drawing.TextColor)
	}
	if c.ConverterTimeoutSec < 1 {
		return fmt.Errorf("invalid converter_timeout_seconds '%d': must be >= 1", c.ConverterTimeoutSec)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if (c.SlackBotToken == "") != (c.SlackChannel == "") {
		return fmt.Errorf("slack_bot_token and slack_channel_id must be set together")
	}
	if _, err := c.Mapping(); err != nil {
		return err
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %v", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}

// Mapping returns the role to column mapping of the parts list.
func (c Config) Mapping() (bom.Mapping, error) {
	m := bom.Mapping{}
	set := func(role bom.Role, col string) {
		if col = strings.TrimSpace(col); col != "" {
			m[role] = col
		}
	}
	set(bom.RolePart, c.Columns.Part)
	set(bom.RoleMaterial, c.Columns.Material)
	set(bom.RoleBackupMaterial, c.Columns.BackupMaterial)
	set(bom.RoleQuantity, c.Columns.Quantity)
	set(bom.RoleName, c.Columns.Name)
	for _, role := range []bom.Role{bom.RolePart, bom.RoleMaterial} {
		if _, ok := m[role]; !ok {
			return nil, fmt.Errorf("columns.%s is required", role)
		}
	}
	return m, nil
}

func (c Config) HideOtherLayers() bool {
	return c.Drawing.HideOtherLayers == nil || *c.Drawing.HideOtherLayers
}

func (c Config) ConverterConfigured() bool {
	return strings.TrimSpace(c.ConverterCommand) != ""
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

func (c Config) ConverterTimeout() time.Duration {
	return time.Duration(c.ConverterTimeoutSec) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideList(field *[]string, envKey string) {
	if raw := os.Getenv(envKey); raw != "" {
		*field = nil
		for _, v := range strings.Split(raw, ",") {
			v = strings.TrimSpace(v)
			if v != "" {
				*field = append(*field, v)
			}
		}
	}
}
