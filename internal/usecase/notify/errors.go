package notify

import (
	"errors"
	"fmt"

	"osiri-dispatch/internal/domain/entity"
)

// Sentinel errors for notify use case operations.
var (
	// ErrRateLimitExceeded is reported when an organization has used its
	// daily allowance. Its text is the Result.Error of a quota-blocked send.
	ErrRateLimitExceeded = errors.New("Rate limit exceeded") //nolint:staticcheck // user-visible result text

	// ErrTranslationNotFound indicates no completed translation exists for
	// the article in the channel's language.
	ErrTranslationNotFound = fmt.Errorf("translation: %w", entity.ErrNotFound)

	// ErrArticleNotFound indicates the article row is missing.
	ErrArticleNotFound = fmt.Errorf("article: %w", entity.ErrNotFound)

	// ErrConnectionNotFound indicates the channel's workspace connection is missing.
	ErrConnectionNotFound = fmt.Errorf("workspace connection: %w", entity.ErrNotFound)

	// ErrChannelNotFound indicates the requested channel does not exist.
	ErrChannelNotFound = fmt.Errorf("notification channel: %w", entity.ErrNotFound)

	// ErrAlreadyDelivered is returned by single sends when a success log
	// already exists for the (article, channel) pair.
	ErrAlreadyDelivered = errors.New("notification already delivered")

	// ErrDeliveryInProgress is returned by single sends when another worker
	// has already claimed the pair's pending log.
	ErrDeliveryInProgress = errors.New("notification delivery already in progress")

	// ErrBatchInProgress rejects a batch trigger while another run is active.
	ErrBatchInProgress = errors.New("notification batch already in progress")

	// ErrNoProcessor indicates that no processor is registered for a platform.
	ErrNoProcessor = errors.New("no processor registered for platform")

	// ErrChannelInactive is returned by single sends to a disabled channel.
	ErrChannelInactive = errors.New("notification channel is inactive")

	// ErrServiceShutdown is returned once Shutdown has been called.
	ErrServiceShutdown = errors.New("notify service is shutting down")
)

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
