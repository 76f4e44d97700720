package core

import (
	"fmt"
	"os"
	"path/filepath"

	uber_config "go.uber.org/config"
	"go.uber.org/fx"
)

const (
	_envConfigDir     = "CODENAV_CONFIG_DIR"
	_envUserConfig    = "CODENAV_CONFIG_FILE"
	_defaultConfigDir = "src/codenav/config"
	_metaFile         = "meta.yaml"
)

// ConfigModule provides the configuration provider.
var ConfigModule = fx.Options(
	fx.Provide(NewConfig),
)

// Config is the root configuration provider, loaded from the files listed in meta.yaml
// and an optional user file named by CODENAV_CONFIG_FILE.
type Config struct {
	provider uber_config.Provider
	files    []string
}

func (c Config) Get(path string) uber_config.Value {
	return c.provider.Get(path)
}

func (c Config) Name() string {
	return "config"
}

// Files returns the configuration files that were merged, lowest priority first.
func (c Config) Files() []string {
	return c.files
}

func NewConfig() (uber_config.Provider, error) {
	files, err := configFiles(getConfigDir(), os.Getenv(_envUserConfig))
	if err != nil {
		return nil, err
	}

	options := make([]uber_config.YAMLOption, 0, len(files)+1)
	for _, f := range files {
		options = append(options, uber_config.File(f))
	}
	options = append(options, uber_config.Expand(os.LookupEnv))

	provider, err := uber_config.NewYAML(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return Config{provider: provider, files: files}, nil
}

// configFiles resolves the ordered list of files to merge. Files listed in meta.yaml
// that do not exist are skipped; the user file, when named, must exist.
func configFiles(dir string, userFile string) ([]string, error) {
	meta, err := uber_config.NewYAML(
		uber_config.File(filepath.Join(dir, _metaFile)),
		uber_config.Expand(os.LookupEnv),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load meta configuration: %w", err)
	}

	var listed []string
	if err := meta.Get("files").Populate(&listed); err != nil {
		return nil, fmt.Errorf("failed to read files list from %s: %w", _metaFile, err)
	}

	var files []string
	for _, name := range listed {
		full := filepath.Join(dir, name)
		if _, err := os.Stat(full); err == nil {
			files = append(files, full)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no configuration files found in %s", dir)
	}

	if userFile != "" {
		if _, err := os.Stat(userFile); err != nil {
			return nil, fmt.Errorf("user configuration %s: %w", userFile, err)
		}
		files = append(files, userFile)
	}
	return files, nil
}

// getConfigDir returns the path to the configuration directory
func getConfigDir() string {
	if configDir := os.Getenv(_envConfigDir); configDir != "" {
		return configDir
	}

	// Relative to the working directory; assumes the binary is run from the repository root.
	return _defaultConfigDir
}
