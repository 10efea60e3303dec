package models

import (
	"cmp"
	"slices"
	"time"
)

// OrderingKey is the physical clustering key of the trip tables:
// (pickup_date, pickup_hour, pickup_location_id, dropoff_location_id).
type OrderingKey struct {
	PickupDate        time.Time
	PickupHour        int32
	PickupLocationID  int32
	DropoffLocationID int32
}

// Compare orders keys field by field and returns -1, 0 or +1.
func (k OrderingKey) Compare(o OrderingKey) int {
	if c := k.PickupDate.Compare(o.PickupDate); c != 0 {
		return c
	}
	if c := cmp.Compare(k.PickupHour, o.PickupHour); c != 0 {
		return c
	}
	if c := cmp.Compare(k.PickupLocationID, o.PickupLocationID); c != 0 {
		return c
	}
	return cmp.Compare(k.DropoffLocationID, o.DropoffLocationID)
}

func (k OrderingKey) Less(o OrderingKey) bool {
	return k.Compare(o) < 0
}

// SortByKey stably sorts records by their ordering key.
func SortByKey(records []CanonicalTripRecord) {
	slices.SortStableFunc(records, func(a, b CanonicalTripRecord) int {
		return a.Key().Compare(b.Key())
	})
}

// IsSortedByKey reports whether records are in ordering-key order.
func IsSortedByKey(records []CanonicalTripRecord) bool {
	return slices.IsSortedFunc(records, func(a, b CanonicalTripRecord) int {
		return a.Key().Compare(b.Key())
	})
}
