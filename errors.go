package cvmesh

import (
	"errors"
	"fmt"

	"github.com/soypat/cvmesh/internal/errs"
)

// ErrConfig is wrapped by every ConfigError.
var ErrConfig = errors.New("invalid configuration")

// ConfigError reports an invalid configuration entry by its dotted key.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %v", e.Key, e.Err) }

func (e *ConfigError) Unwrap() []error { return []error{ErrConfig, e.Err} }

func configErr(key string, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Err: fmt.Errorf(format, args...)}
}

// InvariantError reports corrupted mesher state. A run returning one is
// aborted on every rank.
type InvariantError = errs.InvariantError

// ErrInvariant is wrapped by every InvariantError.
var ErrInvariant = errs.ErrInvariant
