// Package progress defines the event structures emitted while a crawl runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageRunDone         Stage = "RUN_DONE"
	StageRunError        Stage = "RUN_ERROR"
	StageDepthDone       Stage = "DEPTH_DONE"
	StageNodeStart       Stage = "NODE_START"
	StageNodeDone        Stage = "NODE_DONE"
	StageNodeStub        Stage = "NODE_STUB"
	StageNodeUnreachable Stage = "NODE_UNREACHABLE"
)

// Event captures a single component of crawl progress.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Site scopes node events to a registrable domain label.
	Site string
	// URL is the node URL for node stages.
	URL string
	// Depth is the frontier depth the event belongs to.
	Depth int
	// Links is the number of links a node contributed, or the number of
	// nodes queued for the next depth on DEPTH_DONE.
	Links int
	// Bytes carries the response size for completed fetches.
	Bytes int64
	// Dur captures fetch latency for node stages and wall time for runs.
	Dur time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageDepthDone:
	case StageNodeStart, StageNodeDone, StageNodeStub, StageNodeUnreachable:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Depth < 0 {
		return errors.New("depth must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
