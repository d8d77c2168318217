package edl

import (
	"fmt"
	"strings"
)

// PartitionSelector names a target region either by an explicit
// (lun, start_sector, num_sectors) triple or by partition Name resolved
// against the last ReadPartitions result (spec §3's data model / §4.7).
type PartitionSelector struct {
	LUN         int
	StartSector uint64
	NumSectors  uint64

	// Name, when non-empty, takes priority over the explicit fields:
	// it is resolved case-insensitively against s.partitions, first
	// match across LUNs in discovery order.
	Name string
}

// resolve turns sel into a concrete (lun, start, count) triple, looking
// it up by name when one is given.
func (s *Session) resolve(sel PartitionSelector) (PartitionEntry, error) {
	if sel.Name == "" {
		return PartitionEntry{
			LUN:         sel.LUN,
			StartSector: sel.StartSector,
			NumSectors:  sel.NumSectors,
		}, nil
	}

	lname := strings.ToLower(sel.Name)
	for _, p := range s.partitions {
		if strings.ToLower(p.Name) == lname {
			return p, nil
		}
	}
	return PartitionEntry{}, newError("resolve_partition", "session", KindPartitionNotFound,
		fmt.Errorf("partition %q not found", sel.Name))
}
