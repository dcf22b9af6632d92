package domain

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

// NewClaimNumber formats CLM-<year>-<6 digits>-<3 digits>. The middle block is
// the millisecond clock modulo one million and the tail is drawn from rnd.
func NewClaimNumber(now time.Time, rnd io.Reader) (string, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	suffix, err := rand.Int(rnd, big.NewInt(1000))
	if err != nil {
		return "", fmt.Errorf("draw claim number suffix: %w", err)
	}
	return fmt.Sprintf("CLM-%d-%06d-%03d", now.Year(), now.UnixMilli()%1_000_000, suffix.Int64()), nil
}
