package fabricator

import (
	"fmt"

	"github.com/google/uuid"
)

// idSource mints name-based ids so identical crafts produce identical ids.
type idSource struct {
	prefix   string
	counters map[string]int
}

func newIDSource(chainID string, segmentID, attempt int) *idSource {
	return &idSource{
		prefix:   fmt.Sprintf("%s/%d/%d", chainID, segmentID, attempt),
		counters: map[string]int{},
	}
}

func (s *idSource) next(kind string) string {
	n := s.counters[kind]
	s.counters[kind] = n + 1
	name := fmt.Sprintf("%s/%s/%d", s.prefix, kind, n)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
