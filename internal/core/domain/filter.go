package domain

import "strings"

// MetadataFilter is a hard constraint over document metadata.
// Zero-valued fields are unconstrained. Set-valued fields match when the
// document shares at least one value with the filter.
type MetadataFilter struct {
	Country            string       `json:"country,omitempty"`
	ProductCategories  []string     `json:"product_categories,omitempty"`
	CertificationTypes []string     `json:"certification_types,omitempty"`
	SourceTypes        []SourceType `json:"source_types,omitempty"`
}

// IsEmpty returns true if the filter constrains nothing.
func (f *MetadataFilter) IsEmpty() bool {
	return f == nil || (f.Country == "" &&
		len(f.ProductCategories) == 0 &&
		len(f.CertificationTypes) == 0 &&
		len(f.SourceTypes) == 0)
}

// Matches reports whether m satisfies every constraint in the filter.
// A nil filter matches everything. A document without a country never
// satisfies a country constraint.
func (f *MetadataFilter) Matches(m Metadata) bool {
	if f.IsEmpty() {
		return true
	}
	if f.Country != "" && !strings.EqualFold(strings.TrimSpace(f.Country), strings.TrimSpace(m.Country)) {
		return false
	}
	if len(f.ProductCategories) > 0 && !intersects(f.ProductCategories, m.ProductCategories) {
		return false
	}
	if len(f.CertificationTypes) > 0 && !intersects(f.CertificationTypes, m.CertificationTypes) {
		return false
	}
	if len(f.SourceTypes) > 0 {
		found := false
		for _, st := range f.SourceTypes {
			if st == m.SourceType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func intersects(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}
