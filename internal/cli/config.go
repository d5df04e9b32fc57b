package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	BaseURL        string `json:"base_url"`
	TokenPath      string `json:"token_path,omitempty"`
	LogFile        string `json:"log_file,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
	DotEnv  string // Path to .env file if loaded, empty otherwise
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".td.json"

// DefaultBaseURL is the hosted service endpoint.
const DefaultBaseURL = "https://sgdown.vigix.ir/api"

const defaultTimeoutSeconds = 15

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config file")
	errBaseURLEmpty       = errors.New("base_url cannot be empty")
	errTimeoutNegative    = errors.New("timeout_seconds cannot be negative")
)

// DefaultConfig returns the default configuration. The token lives under
// the user config dir so it survives process restarts but stays scoped to
// this machine profile.
func DefaultConfig(env map[string]string) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		TokenPath:      filepath.Join(configDir(env), "token"),
		TimeoutSeconds: defaultTimeoutSeconds,
	}
}

// configDir returns the td settings directory:
// $XDG_CONFIG_HOME/td, falling back to ~/.config/td.
func configDir(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "td")
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "td")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "td")
	}

	return ".td"
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/td/config.json or ~/.config/td/config.json)
// 3. Project config file (.td.json in workDir, if exists) or explicit configPath
// 4. Environment (TD_BASE_URL, TD_TOKEN_PATH, TD_LOG_FILE), with a workDir
// .env file merged in first
// 5. CLI overrides applied by the caller afterwards.
func LoadConfig(workDir, configPath string, env map[string]string) (Config, ConfigSources, error) {
	var sources ConfigSources

	// A .env in the work directory supplies env values without touching the
	// process environment.
	env = mergeDotEnv(workDir, env, &sources)

	cfg := DefaultConfig(env)

	globalCfg, globalPath, err := loadConfigFile(filepath.Join(configDir(env), "config.json"), false)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	cfg = applyEnv(cfg, env)

	validateErr := validateConfig(cfg)
	if validateErr != nil {
		return Config{}, ConfigSources{}, validateErr
	}

	return cfg, sources, nil
}

func mergeDotEnv(workDir string, env map[string]string, sources *ConfigSources) map[string]string {
	dotEnvPath := filepath.Join(workDir, ".env")

	fileEnv, err := godotenv.Read(dotEnvPath)
	if err != nil {
		return env
	}

	sources.DotEnv = dotEnvPath

	merged := make(map[string]string, len(env)+len(fileEnv))
	for k, v := range fileEnv {
		merged[k] = v
	}

	// Real environment beats the .env file.
	for k, v := range env {
		merged[k] = v
	}

	return merged
}

// loadProjectConfig loads the project config file (.td.json) or an explicit
// config file. An explicit file must exist.
func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	if configPath != "" {
		cfgFile := configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		_, statErr := os.Stat(cfgFile)
		if statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}

		return loadConfigFile(cfgFile, true)
	}

	return loadConfigFile(filepath.Join(workDir, ConfigFileName), false)
}

// loadConfigFile loads a config file. If mustExist is false, missing files
// return zero config. Returns the config, the path if loaded, and any error.
func loadConfigFile(path string, mustExist bool) (Config, string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if mustExist {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Config{}, "", nil
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	return cfg, path, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.BaseURL != "" {
		base.BaseURL = overlay.BaseURL
	}

	if overlay.TokenPath != "" {
		base.TokenPath = overlay.TokenPath
	}

	if overlay.LogFile != "" {
		base.LogFile = overlay.LogFile
	}

	if overlay.TimeoutSeconds != 0 {
		base.TimeoutSeconds = overlay.TimeoutSeconds
	}

	return base
}

func applyEnv(cfg Config, env map[string]string) Config {
	if v := env["TD_BASE_URL"]; v != "" {
		cfg.BaseURL = v
	}

	if v := env["TD_TOKEN_PATH"]; v != "" {
		cfg.TokenPath = v
	}

	if v := env["TD_LOG_FILE"]; v != "" {
		cfg.LogFile = v
	}

	if v := env["TD_TIMEOUT_SECONDS"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSeconds = n
		}
	}

	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.BaseURL == "" {
		return errBaseURLEmpty
	}

	if cfg.TimeoutSeconds < 0 {
		return errTimeoutNegative
	}

	return nil
}

// FormatConfig returns the config as formatted JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
