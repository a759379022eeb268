package partition

import "errors"

var (
	// ErrInvalidPartition is returned for a (totalNodes, worldSize, strategy)
	// combination no map can be built from.
	ErrInvalidPartition = errors.New("invalid partition")
	// ErrNodeOutOfRange is returned when a node id is not in [0, totalNodes).
	ErrNodeOutOfRange = errors.New("node id out of range")
)
