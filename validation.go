package netstack

import "errors"

// Validator accumulates validation errors while a frame type's
// ValidateSize/ValidateExceptCRC methods inspect a buffer, letting callers
// choose between fast-fail (first error only) and full-accumulation modes.
type Validator struct {
	AllowMultiErrs bool
	accum          []error
}

// ResetErr clears any accumulated errors, readying the Validator for reuse.
func (v *Validator) ResetErr() {
	v.accum = v.accum[:0]
}

// Err returns the accumulated error, joining multiple errors with errors.Join
// if AllowMultiErrs permitted more than one to accumulate.
func (v *Validator) Err() error {
	if len(v.accum) == 1 {
		return v.accum[0]
	} else if len(v.accum) == 0 {
		return nil
	}
	return errors.Join(v.accum...)
}

// AddError records err. If AllowMultiErrs is false only the first error
// passed to AddError since the last ResetErr is kept.
func (v *Validator) AddError(err error) {
	if len(v.accum) != 0 && !v.AllowMultiErrs {
		return
	}
	v.accum = append(v.accum, err)
}
