package lusf

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lusfblk/lusf/internal/lump"
)

// RetryPut wraps Device.Put with exponential backoff (§B.4), retrying
// only on ErrNoSpace — the one recoverable-by-waiting outcome documented
// in §7 (inline GC may free enough space for a later attempt to succeed;
// ErrJournalFull itself never escapes the engine boundary, see
// internal/engine's appendWithGC). Any other error is permanent and
// returned immediately. deadline is passed through to each Put attempt.
func RetryPut(ctx context.Context, d *Device, id lump.Id, data []byte, deadline time.Time) (bool, error) {
	return backoff.Retry(ctx, func() (bool, error) {
		created, err := d.Put(ctx, id, data, deadline)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, ErrNoSpace) {
			return false, err
		}
		return false, backoff.Permanent(err)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
}
