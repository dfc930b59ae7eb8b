package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfig names an explicit settings file.
	EnvConfig = "MULTITOOL_CONFIG"
	// EnvLogLevel overrides the settings file log level.
	EnvLogLevel = "MULTITOOL_LOG_LEVEL"

	projectConfigYAML = "multitool.yaml"
	projectConfigTOML = "multitool.toml"
	homeConfigName    = "config.yaml"
)

// Settings is the optional settings file shape. It is read before dispatch
// and never changes the option schema, only its defaults.
type Settings struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// Journal is the path of the SQLite run journal. Empty disables it.
	Journal string `yaml:"journal" toml:"journal"`

	// JournalRetention keeps only the newest runs in the journal (0 keeps all).
	JournalRetention int `yaml:"journal_retention" toml:"journal_retention"`

	// Devices is the number of physical devices the hardware backend may attach.
	Devices int `yaml:"devices" toml:"devices"`

	// ImageDir is where relative --save-exe/--load-exe names are resolved.
	ImageDir string `yaml:"image_dir" toml:"image_dir"`

	// Defaults apply to any tool; Tools to one tool by name and win over Defaults.
	Defaults map[string]any            `yaml:"defaults" toml:"defaults"`
	Tools    map[string]map[string]any `yaml:"tools" toml:"tools"`
}

// DefaultsFor returns the option defaults for toolName as flag strings.
func (s *Settings) DefaultsFor(toolName string) map[string]string {
	if s == nil {
		return nil
	}
	out := toOptionStrings(s.Defaults)
	for key, value := range toOptionStrings(s.Tools[toolName]) {
		if out == nil {
			out = make(map[string]string)
		}
		out[key] = value
	}
	return out
}

// DiscoverSettingsPath resolves the settings file location with first-match
// semantics: $MULTITOOL_CONFIG, ./multitool.yaml, ./multitool.toml,
// ~/.multitool/config.yaml.
func DiscoverSettingsPath() (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}
	return DiscoverSettingsPathFrom(os.Getenv(EnvConfig), cwd, homeDir)
}

// DiscoverSettingsPathFrom is a testable variant of DiscoverSettingsPath.
func DiscoverSettingsPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 3)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates,
			filepath.Join(cwd, projectConfigYAML),
			filepath.Join(cwd, projectConfigTOML),
		)
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, ".multitool", homeConfigName))
		}
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// If explicit path is set, not found is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("settings file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking settings path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// LoadSettings reads a YAML or TOML settings file, chosen by extension.
// Relative journal and image_dir paths resolve against the file's directory.
func LoadSettings(path string) (*Settings, error) {
	// #nosec G304 -- path resolved from explicit local settings discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings %q: %w", path, err)
	}

	var s Settings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &s); err != nil {
			return nil, fmt.Errorf("parsing settings %q: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing settings %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("settings %q: unsupported format %q", path, filepath.Ext(path))
	}

	if s.Devices < 0 {
		return nil, fmt.Errorf("settings %q: devices must not be negative", path)
	}
	if s.JournalRetention < 0 {
		return nil, fmt.Errorf("settings %q: journal_retention must not be negative", path)
	}
	baseDir := filepath.Dir(path)
	s.Journal = resolveSettingsRelative(baseDir, os.ExpandEnv(strings.TrimSpace(s.Journal)))
	s.ImageDir = resolveSettingsRelative(baseDir, os.ExpandEnv(strings.TrimSpace(s.ImageDir)))
	return &s, nil
}

func toOptionStrings(values map[string]any) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[strings.TrimSpace(key)] = os.ExpandEnv(fmt.Sprint(value))
	}
	return out
}

func resolveSettingsRelative(baseDir, p string) string {
	if p == "" {
		return ""
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
