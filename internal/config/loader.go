package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/waqfqa/internal/errs"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix namespaces every environment override.
	EnvPrefix = "WAQFQA_"

	// apiKeyAlias is the conventional OpenAI variable, accepted as a
	// fallback for WAQFQA_OPENAI_API_KEY.
	apiKeyAlias = "OPENAI_API_KEY"
)

// DefaultPath returns ~/.config/waqfqa/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "waqfqa", "config.yaml"), nil
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errs.New(errs.ErrConfig, "config.LoadDotEnv", fmt.Errorf("loading %s: %w", p, err))
		}
	}
	return nil
}

// LoadWithFile loads configuration and validates it.
//
// Precedence, highest first:
//  1. WAQFQA_* environment variables (WAQFQA_SERVER_HTTP_PORT -> server.http_port)
//  2. OPENAI_API_KEY, for openai.api_key only
//  3. The YAML file at configPath (DefaultPath when empty), if it exists
//  4. Defaults
//
// The file must be at most 1MB and, outside Windows, have 0600 or 0400
// permissions.
func LoadWithFile(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, errs.New(errs.ErrConfig, "config.Load", err)
		}
		configPath = p
	}

	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "config.Load", err)
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, errs.New(errs.ErrConfig, "config.Load", fmt.Errorf("failed to load config file %s: %w", configPath, err))
		}
	}

	if err := k.Load(env.Provider(apiKeyAlias, ".", func(s string) string {
		if s == apiKeyAlias {
			return "openai.api_key"
		}
		return ""
	}), nil); err != nil {
		return nil, errs.New(errs.ErrConfig, "config.Load", fmt.Errorf("failed to load %s: %w", apiKeyAlias, err))
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errs.New(errs.ErrConfig, "config.Load", fmt.Errorf("failed to load environment variables: %w", err))
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errs.New(errs.ErrConfig, "config.Load", fmt.Errorf("failed to unmarshal config: %w", err))
	}
	return cfg, nil
}

// envKey maps WAQFQA_SECTION_FIELD_NAME to section.field_name, splitting on
// the first underscore after the prefix.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile returns the file content, or nil when it does not exist.
// Properties are checked on the opened descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
