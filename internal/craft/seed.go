package craft

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// SegmentSeed derives the randomness seed of one craft attempt. Retries of
// the same segment see different draws; replays see the same ones.
func SegmentSeed(chainSeed int64, segmentID, attempt int) int64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(chainSeed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(segmentID))
	binary.LittleEndian.PutUint64(buf[16:], uint64(attempt))
	return int64(xxhash.Sum64(buf[:]) >> 1)
}
