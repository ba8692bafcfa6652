// Package idgen implements ports.IDGenerator. The aggregation service
// stamps every run with a fresh ID so its log lines can be correlated
// across the ledger read, the archive write, and the scheduler.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/himawari-bot/himawari/ports"
)

// UUID issues random v4 identifiers.
type UUID struct{}

func (UUID) New() string {
	return uuid.New().String()
}

var _ ports.IDGenerator = UUID{}

// Sequential issues prefix+counter identifiers. Tests use it to get
// predictable run IDs in assertions.
type Sequential struct {
	prefix  string
	counter uint64
}

func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

var _ ports.IDGenerator = (*Sequential)(nil)
