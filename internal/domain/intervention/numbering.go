package intervention

import (
	"context"
	"fmt"
	"time"
)

// NextNumber computes the next human-readable identifier for the tenant,
// CI-YYYYMM-NNNN, where NNNN restarts at 0001 each month. Uniqueness is
// enforced by the database; Create retries on a concurrent collision.
func (s *Service) NextNumber(ctx context.Context, tenantID string, at time.Time) (string, error) {
	prefix := fmt.Sprintf("CI-%s-", at.UTC().Format("200601"))
	max, err := s.repo.MaxSequence(ctx, tenantID, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, max+1), nil
}
