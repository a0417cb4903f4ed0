// Package bookingerr defines the error taxonomy shared by the settlement
// engine. Callers classify failures with errors.Is; call sites add context
// with fmt.Errorf("...: %w", err).
package bookingerr

import "errors"

var (
	// ErrValidation marks malformed input. Not retryable.
	ErrValidation = errors.New("validation failed")

	// ErrAmountMismatch marks a stale or tampered amount: the value the
	// client carried forward no longer matches the authoritative one.
	// The caller must re-fetch a quote.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrAmountsExhausted means no collision-free amount variant was found
	// within the allocation step limit. Retryable with backoff.
	ErrAmountsExhausted = errors.New("amount variants exhausted")

	// ErrAmountTaken is the storage-level signal that a pending record with
	// the candidate amount already exists. Internal to allocation.
	ErrAmountTaken = errors.New("amount already reserved")

	// ErrAlreadyStaged means the pending payment already has an open
	// guest-details record attached.
	ErrAlreadyStaged = errors.New("guest details already staged")

	// ErrNotFound means no matching open record exists. At settlement time
	// this is a reconcilable anomaly: logged, redelivery expected.
	ErrNotFound = errors.New("no matching record")

	// ErrMissingRate means no conversion rate is configured for the
	// requested currency. Fatal configuration problem.
	ErrMissingRate = errors.New("conversion rate not configured")
)
