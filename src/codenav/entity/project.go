package entity

import (
	"errors"
	"path/filepath"
)

// ProjectConfig is the externally supplied configuration of a project.
type ProjectConfig struct {
	Name             string   `yaml:"name" json:"name"`
	RootPath         string   `yaml:"rootPath" json:"rootPath"`
	ExcludedGlobs    []string `yaml:"excludedGlobs" json:"excludedGlobs"`
	ReadOnly         bool     `yaml:"readOnly" json:"readOnly"`
	MaxFileSizeBytes int64    `yaml:"maxFileSizeBytes" json:"maxFileSizeBytes"`
}

// WithDefaults fills unset fields from defaults. Excluded globs are merged.
func (c ProjectConfig) WithDefaults(defaults ProjectConfig) ProjectConfig {
	if c.MaxFileSizeBytes == 0 {
		c.MaxFileSizeBytes = defaults.MaxFileSizeBytes
	}
	if !c.ReadOnly {
		c.ReadOnly = defaults.ReadOnly
	}
	globs := make([]string, 0, len(defaults.ExcludedGlobs)+len(c.ExcludedGlobs))
	globs = append(globs, defaults.ExcludedGlobs...)
	globs = append(globs, c.ExcludedGlobs...)
	c.ExcludedGlobs = globs
	if c.Name == "" && c.RootPath != "" {
		c.Name = filepath.Base(c.RootPath)
	}
	return c
}

// Validate ensures the configuration describes a usable project.
func (c ProjectConfig) Validate() error {
	if c.RootPath == "" {
		return errors.New("project rootPath is required")
	}
	if !filepath.IsAbs(c.RootPath) {
		return errors.New("project rootPath must be absolute")
	}
	if c.MaxFileSizeBytes < 0 {
		return errors.New("project maxFileSizeBytes must not be negative")
	}
	return nil
}
