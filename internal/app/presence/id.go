package presence

import (
	"hash/fnv"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
)

// DefaultIDRange bounds transport ids to 1..DefaultIDRange.
// Collisions grow with room size (birthday bound); this is a known scaling limit.
const DefaultIDRange = 1_000_000

// TransportID maps a user id onto the numeric transport id space.
// Pure: the same input always yields the same id. Zero is never returned.
func TransportID(id domain.UserID, idRange uint32) core.TransportID {
	if idRange == 0 {
		idRange = DefaultIDRange
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return core.TransportID(h.Sum32()%idRange + 1)
}
