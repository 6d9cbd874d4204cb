// Package coeffs decodes the free-form coefficient dictionaries of the
// configuration into typed structs.
package coeffs

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode decodes in into the struct pointed to by out. Keys unknown to out
// are an error and numeric strings are accepted for numbers.
func Decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// Positive returns an error naming key if v is not strictly positive.
func Positive(key string, v float64) error {
	if !(v > 0) {
		return fmt.Errorf("%s must be positive, got %g", key, v)
	}
	return nil
}

// InRange returns an error naming key if v lies outside [lo, hi].
func InRange(key string, v, lo, hi float64) error {
	if !(v >= lo && v <= hi) {
		return fmt.Errorf("%s must lie in [%g, %g], got %g", key, lo, hi, v)
	}
	return nil
}
