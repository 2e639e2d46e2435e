package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store persists gzip-compressed archive objects.
type Store interface {
	// Put compresses body and stores it under key.
	Put(ctx context.Context, key string, body []byte) error

	// Get reads and decompresses the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Archiver keeps an audit copy of every raw gateway verification response.
type Archiver interface {
	// ArchiveVerification stores raw and returns the key it was stored under.
	// Failures are reported but must never block reconciliation.
	ArchiveVerification(ctx context.Context, transactionID string, raw []byte) (string, error)
}

// gatewayArchiver implements Archiver on top of a Store.
type gatewayArchiver struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewArchiver creates an Archiver writing to store.
func NewArchiver(store Store, logger zerolog.Logger) Archiver {
	return &gatewayArchiver{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "gateway-archive").Logger(),
	}
}

// ArchiveVerification stores raw under gateway/<transaction>/<unix nanos>.json.gz.
func (a *gatewayArchiver) ArchiveVerification(ctx context.Context, transactionID string, raw []byte) (string, error) {
	key := VerificationKey(transactionID, a.now())

	if err := a.store.Put(ctx, key, raw); err != nil {
		a.logger.Error().
			Err(err).
			Str("transaction_id", transactionID).
			Str("key", key).
			Msg("failed to archive gateway response")
		return "", fmt.Errorf("failed to archive gateway response: %w", err)
	}

	a.logger.Debug().
		Str("transaction_id", transactionID).
		Str("key", key).
		Int("bytes", len(raw)).
		Msg("gateway response archived")

	return key, nil
}

// VerificationKey builds the archive key for a verification taken at t.
func VerificationKey(transactionID string, t time.Time) string {
	return fmt.Sprintf("gateway/%s/%d.json.gz", transactionID, t.UnixNano())
}

// NopArchiver discards everything. It is used when archiving is disabled.
type NopArchiver struct{}

func (NopArchiver) ArchiveVerification(context.Context, string, []byte) (string, error) {
	return "", nil
}
