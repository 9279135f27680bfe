package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate validates catalog configuration
func (c *CatalogConfig) Validate() error {
	var errs []string

	validAdapters := []string{"memory", "redis", "sql", "file"}
	isValidAdapter := false
	for _, adapter := range validAdapters {
		if c.Adapter == adapter {
			isValidAdapter = true
			break
		}
	}

	if !isValidAdapter {
		errs = append(errs, fmt.Sprintf("adapter must be one of: %s", strings.Join(validAdapters, ", ")))
	}

	// Validate adapter-specific configs
	switch c.Adapter {
	case "sql":
		if c.SQL.DSN == "" {
			errs = append(errs, "sql config: dsn cannot be empty")
		}
	case "file":
		if err := c.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates file catalog configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	var errs []string

	if e.Rounding < 0 || e.Rounding > 6 {
		errs = append(errs, "rounding must be between 0 and 6")
	}

	if e.Debounce < 0 {
		errs = append(errs, "debounce cannot be negative")
	}

	validModes := []string{"sequential", "additive"}
	isValidMode := false
	for _, mode := range validModes {
		if e.CombineMode == mode {
			isValidMode = true
			break
		}
	}

	if !isValidMode {
		errs = append(errs, fmt.Sprintf("combine_mode must be one of: %s", strings.Join(validModes, ", ")))
	}

	validDispatch := []string{"sync", "async"}
	isValidDispatch := false
	for _, d := range validDispatch {
		if e.Dispatch == d {
			isValidDispatch = true
			break
		}
	}

	if !isValidDispatch {
		errs = append(errs, fmt.Sprintf("dispatch must be one of: %s", strings.Join(validDispatch, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if l.Level == level {
			isValidLevel = true
			break
		}
	}

	if !isValidLevel {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	isValidFormat := false
	for _, format := range validFormats {
		if l.Format == format {
			isValidFormat = true
			break
		}
	}

	if !isValidFormat {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	isValidOutput := false
	for _, output := range validOutputs {
		if l.Output == output {
			isValidOutput = true
			break
		}
	}

	if !isValidOutput {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}
