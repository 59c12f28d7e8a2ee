package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "newsdesk.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/newsdesk"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile holds provider keys and DSNs next to the project config
	EnvFile = ".env"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger  *slog.Logger
	homeDir string
	workDir string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHomeDir overrides the directory the user config is looked up in.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// WithWorkDir overrides the directory the project config search starts from.
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.workDir = dir
	}
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	if l.homeDir == "" {
		l.homeDir, _ = os.UserHomeDir()
	}
	if l.workDir == "" {
		l.workDir, _ = os.Getwd()
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/newsdesk/config.yaml)
// 3. Project config (newsdesk.yaml in current or parent directories)
// 4. Explicit file, when path is non-empty
//
// A .env file next to the project config (or in the working directory) is
// loaded into the environment first. Variables already set are kept.
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	// User config
	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		l.merge(config, userConfigPath, false)
	}

	// Project config
	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		l.merge(config, projectConfigPath, true)
	} else {
		l.logger.Debug("No project config found")
	}

	// Explicit config
	if path != "" {
		overlay, err := loadOverlay(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", path))
		config.Merge(overlay)
	}

	envDir := l.workDir
	if projectConfigPath != "" {
		envDir = filepath.Dir(projectConfigPath)
	}
	l.loadEnv(filepath.Join(envDir, EnvFile))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (l *Loader) merge(config *Config, path string, warnMissing bool) {
	overlay, err := loadOverlay(path)
	switch {
	case err == nil:
		l.logger.Debug("Loaded config", slog.String("path", path))
		config.Merge(overlay)
	case errors.Is(err, os.ErrNotExist) && !warnMissing:
	default:
		l.logger.Warn("Failed to load config", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (l *Loader) loadEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		l.logger.Warn("Failed to load env file", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	l.logger.Debug("Loaded env file", slog.String("path", path))
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", errors.New("cannot determine home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return userConfigPath, nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	if l.homeDir == "" {
		return ""
	}
	return filepath.Join(l.homeDir, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for newsdesk.yaml in the work directory and its parents
func (l *Loader) findProjectConfig() string {
	if l.workDir == "" {
		return ""
	}

	dir := l.workDir
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
