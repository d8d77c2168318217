package gpt

import (
	"strings"

	"github.com/edlkit/edl/internal/wire"
)

// SlotState mirrors the data model's SlotState enum (spec §3).
type SlotState int

const (
	SlotNonExistent SlotState = iota
	SlotUndefined
	SlotA
	SlotB
)

func (s SlotState) String() string {
	switch s {
	case SlotA:
		return "a"
	case SlotB:
		return "b"
	case SlotUndefined:
		return "undefined"
	default:
		return "non_existent"
	}
}

// DetectSlot examines the boot_a/boot_b entries of the GPT entries
// belonging to a single LUN's table and derives the active slot per the
// Android A/B attribute convention (bits 48=priority, 49=active,
// 50=successful; spec §4.4 "Slot detection").
func DetectSlot(entries []Partition) SlotState {
	var bootA, bootB *Partition
	for i := range entries {
		name := strings.ToLower(entries[i].Name)
		switch {
		case name == "boot_a":
			bootA = &entries[i]
		case name == "boot_b":
			bootB = &entries[i]
		}
	}

	if bootA == nil && bootB == nil {
		return SlotNonExistent
	}

	activeA := bootA != nil && slotActive(bootA.Attributes)
	activeB := bootB != nil && slotActive(bootB.Attributes)

	switch {
	case activeA && !activeB:
		return SlotA
	case activeB && !activeA:
		return SlotB
	default:
		return SlotUndefined
	}
}

func slotActive(attrs uint64) bool {
	return (attrs>>wire.GptAttrSlotActiveShift)&1 == 1
}
