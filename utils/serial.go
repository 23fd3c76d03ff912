package utils

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const serialTimeLayout = "20060102150405"

// NewSerialNumber builds a human readable identifier: prefix, UTC timestamp to the second
// and a 4 digit random suffix. Collisions are possible within the same second; callers
// rely on the unique index of the owning table to reject them.
func NewSerialNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s%s%04d", prefix, at.UTC().Format(serialTimeLayout), rand.IntN(10000))
}

// NormalizePage clamps page and page size to the supported range and returns the offset
func NormalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}
