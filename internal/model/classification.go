package model

import "strings"

// AddressNotFound is the sentinel the classifier emits when a listing has no
// usable location.
const AddressNotFound = "Not found"

// Address is an optional classifier field that distinguishes a missing key
// from an explicit "not found" answer.
type Address struct {
	Value    string
	Present  bool
	NotFound bool
}

// NewAddress interprets a raw classifier address value.
func NewAddress(raw string) Address {
	v := strings.TrimSpace(raw)
	switch {
	case v == "":
		return Address{}
	case strings.EqualFold(v, AddressNotFound), strings.EqualFold(v, "not_found"), strings.EqualFold(v, "none"):
		return Address{Present: true, NotFound: true}
	default:
		return Address{Value: v, Present: true}
	}
}

// Usable reports whether the address is worth geocoding.
func (a Address) Usable() bool {
	return a.Present && !a.NotFound && a.Value != ""
}

// Classification is the text classifier's verdict on a listing description.
type Classification struct {
	Score       int
	Reasoning   string
	Address     Address
	WeightGrams *float64
	Purity      *float64
}

// Valuable reports whether weight and purity were both extracted.
func (c Classification) Valuable() bool {
	return c.WeightGrams != nil && c.Purity != nil
}
