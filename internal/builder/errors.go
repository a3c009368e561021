package builder

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig matches every *ConfigError with errors.Is
	ErrConfig = errors.New("configuration error")

	ErrNotFound       = errors.New("path not found")
	ErrBuildDirExists = errors.New("refusing to use an existing absolute directory as build directory")
	ErrDuplicateRule  = errors.New("two different rules share a name")
	ErrNoSources      = errors.New("target has no sources")
)

// ConfigError is a fatal declaration-time error. Generation never produces
// partial output once one has been returned.
type ConfigError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(err error) bool { return err == ErrConfig }
