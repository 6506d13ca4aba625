package abi

import "math"

// Slot range checks. A flat slot carries a 32-bit value zero-extended to
// 64 bits; narrower integers must already be zero- or sign-extended to
// 32 bits. Anything else is a dirty slot.

func SlotU32(slot uint64) (uint32, bool) {
	if slot > math.MaxUint32 {
		return 0, false
	}
	return uint32(slot), true
}

func SlotBool(slot uint64) (bool, bool) {
	switch slot {
	case 0:
		return false, true
	case 1:
		return true, true
	}
	return false, false
}

func SlotU8(slot uint64) (uint8, bool) {
	if slot > math.MaxUint8 {
		return 0, false
	}
	return uint8(slot), true
}

func SlotU16(slot uint64) (uint16, bool) {
	if slot > math.MaxUint16 {
		return 0, false
	}
	return uint16(slot), true
}

func SlotS8(slot uint64) (int8, bool) {
	v, ok := SlotU32(slot)
	if !ok {
		return 0, false
	}
	s := int32(v)
	if s < math.MinInt8 || s > math.MaxInt8 {
		return 0, false
	}
	return int8(s), true
}

func SlotS16(slot uint64) (int16, bool) {
	v, ok := SlotU32(slot)
	if !ok {
		return 0, false
	}
	s := int32(v)
	if s < math.MinInt16 || s > math.MaxInt16 {
		return 0, false
	}
	return int16(s), true
}

func SlotS32(slot uint64) (int32, bool) {
	v, ok := SlotU32(slot)
	if !ok {
		return 0, false
	}
	return int32(v), true
}

// I32Slot encodes a signed value the way an i32 travels in a flat slot.
func I32Slot(v int32) uint64 {
	return uint64(uint32(v))
}
