package models

// Presence says how a canonical field is sourced for one taxi kind.
type Presence int

const (
	// Mandatory fields reject the record when missing.
	Mandatory Presence = iota
	// Defaulted fields take FieldRule.Default when missing.
	Defaulted
	// Absent fields do not exist in the kind's publication and are always
	// FieldRule.Default.
	Absent
)

func (p Presence) String() string {
	switch p {
	case Mandatory:
		return "mandatory"
	case Defaulted:
		return "defaulted"
	case Absent:
		return "absent"
	}
	return "unknown"
}

type FieldRule struct {
	Presence Presence
	Default  float64
}

var (
	mandatory = FieldRule{Presence: Mandatory}
	zero      = FieldRule{Presence: Defaulted}
	one       = FieldRule{Presence: Defaulted, Default: 1}
	absent    = FieldRule{Presence: Absent}
)

// presence lists every raw-sourced canonical field. Derived fields and
// taxi_kind are not listed.
var presence = map[TaxiKind]map[string]FieldRule{
	KindYellow: {
		ColVendorID:             mandatory,
		ColPickupDatetime:       mandatory,
		ColDropoffDatetime:      mandatory,
		ColPassengerCount:       one,
		ColTripDistance:         mandatory,
		ColRateCodeID:           one,
		ColStoreAndFwdFlag:      zero,
		ColPickupLocationID:     mandatory,
		ColDropoffLocationID:    mandatory,
		ColPaymentType:          mandatory,
		ColTripType:             absent,
		ColFareAmount:           mandatory,
		ColExtra:                mandatory,
		ColMTATax:               mandatory,
		ColTipAmount:            mandatory,
		ColTollsAmount:          mandatory,
		ColImprovementSurcharge: mandatory,
		ColCongestionSurcharge:  zero,
		ColAirportFee:           zero,
		ColTotalAmount:          mandatory,
	},
	KindGreen: {
		ColVendorID:             mandatory,
		ColPickupDatetime:       mandatory,
		ColDropoffDatetime:      mandatory,
		ColPassengerCount:       one,
		ColTripDistance:         mandatory,
		ColRateCodeID:           one,
		ColStoreAndFwdFlag:      zero,
		ColPickupLocationID:     mandatory,
		ColDropoffLocationID:    mandatory,
		ColPaymentType:          zero,
		ColTripType:             zero,
		ColFareAmount:           mandatory,
		ColExtra:                mandatory,
		ColMTATax:               mandatory,
		ColTipAmount:            mandatory,
		ColTollsAmount:          mandatory,
		ColImprovementSurcharge: mandatory,
		ColCongestionSurcharge:  zero,
		ColAirportFee:           absent,
		ColTotalAmount:          mandatory,
	},
}

// Rule returns the presence rule of field for kind. Unknown fields are
// reported as mandatory.
func Rule(kind TaxiKind, field string) FieldRule {
	if r, ok := presence[kind][field]; ok {
		return r
	}
	return mandatory
}

// AbsentFields lists the canonical fields kind never carries, in
// CanonicalColumns order.
func AbsentFields(kind TaxiKind) []string {
	var out []string
	for _, col := range CanonicalColumns {
		if r, ok := presence[kind][col]; ok && r.Presence == Absent {
			out = append(out, col)
		}
	}
	return out
}
