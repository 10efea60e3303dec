package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TaxiKind is the provenance tag of a trip. Only the two literals below are valid.
type TaxiKind string

const (
	KindYellow TaxiKind = "yellow"
	KindGreen  TaxiKind = "green"
)

// UnionView is the store-side view reconciling both trip tables.
const UnionView = "all_taxi_trips"

// Kinds lists every taxi kind in canonical order.
var Kinds = []TaxiKind{KindYellow, KindGreen}

func ParseTaxiKind(s string) (TaxiKind, error) {
	switch TaxiKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindYellow:
		return KindYellow, nil
	case KindGreen:
		return KindGreen, nil
	}
	return "", fmt.Errorf("unknown taxi kind %q", s)
}

// ParseKindSelection accepts a kind, a comma separated list of kinds, or
// "all" (also the empty string) and returns the selection without duplicates.
func ParseKindSelection(s string) ([]TaxiKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return append([]TaxiKind(nil), Kinds...), nil
	}
	seen := make(map[TaxiKind]bool, 2)
	var out []TaxiKind
	for _, part := range strings.Split(s, ",") {
		k, err := ParseTaxiKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

func (k TaxiKind) Valid() bool {
	return k == KindYellow || k == KindGreen
}

func (k TaxiKind) String() string { return string(k) }

// Table is the per-kind trip table, e.g. yellow_taxi_trips.
func (k TaxiKind) Table() string {
	return string(k) + "_taxi_trips"
}

// FileName is the TLC publication name for one month, e.g.
// yellow_tripdata_2024-01.parquet.
func (k TaxiKind) FileName(month string) string {
	return fmt.Sprintf("%s_tripdata_%s.parquet", k, month)
}

// FileGlob matches every monthly file of this kind.
func (k TaxiKind) FileGlob() string {
	return string(k) + "_tripdata_*.parquet"
}

// KindFromFileName recognises TLC file names such as
// green_tripdata_2023-07.parquet, with or without a directory.
func KindFromFileName(name string) (TaxiKind, bool) {
	base := filepath.Base(name)
	for _, k := range Kinds {
		if ok, _ := filepath.Match(k.FileGlob(), base); ok {
			return k, true
		}
	}
	return "", false
}
