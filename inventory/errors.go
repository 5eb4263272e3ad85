/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these with additional context.

ERROR CATEGORIES:
  1. Transaction errors - conflicts and exhausted retries
  2. Validation errors - bad quantities, directions, identities
  3. Lookup errors - missing items

NOT ERRORS:
  - Missing aggregate: the Reader falls back to the history
  - Missing history: the identity's stock is zero
  - Malformed timestamp: normalized to "now"

SEE ALSO:
  - applier.go: Transaction guard and retries
  - heal.go: Batch commit failures
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConcurrentModification is returned by a store when a transaction's
	// read set changed before commit. Stores retry on it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrTransactionFailed is returned when a transaction could not be
	// committed, including after retries are exhausted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrReadAfterWrite is returned when a transaction reads after it has
	// already issued a write. All reads must precede all writes.
	ErrReadAfterWrite = errors.New("read issued after write in transaction")

	// ErrItemNotFound is returned when a referenced item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrItemExists is returned when opening an item whose ID is taken.
	ErrItemExists = errors.New("item already exists")

	// ErrDocumentNotFound is returned when deleting a missing document.
	ErrDocumentNotFound = errors.New("document not found")

	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidIdentity  = errors.New("invalid item identity")

	// ErrBatchCommitted is returned when a batch is reused after Commit.
	ErrBatchCommitted = errors.New("batch already committed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RetriesExhaustedError is returned when a transaction kept conflicting.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("transaction failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrTransactionFailed, e.Last}
}

// ItemNotFoundError names the missing item.
type ItemNotFoundError struct {
	ItemID ItemID
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item not found: %s", e.ItemID)
}

func (e *ItemNotFoundError) Unwrap() error {
	return ErrItemNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the whole operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrTransactionFailed)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrInvalidIdentity)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrDocumentNotFound)
}
