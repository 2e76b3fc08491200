package pipeline

import "github.com/facetrace/facetrace/pkg/types"

// Filter applies the calibrated geometric and confidence criteria. It is a
// pure predicate over a fixed Thresholds value.
type Filter struct {
	t types.Thresholds
}

// NewFilter creates a filter over calibrated thresholds.
func NewFilter(t types.Thresholds) *Filter {
	return &Filter{t: t}
}

// PassGeometry checks the area and aspect-ratio bounds.
func (f *Filter) PassGeometry(d types.Detection) bool {
	area := float64(d.Area())
	if area < f.t.MinArea || area > f.t.MaxArea {
		return false
	}
	ar := d.AspectRatio()
	return ar >= f.t.MinAR && ar <= f.t.MaxAR
}

// PassConfidence checks the confidence bound. A detection without a
// confidence score passes automatically: backends that omit it are never
// penalized.
func (f *Filter) PassConfidence(d types.Detection) bool {
	if !d.HasConfidence {
		return true
	}
	return d.Confidence >= f.t.MinConfidence
}

// Pass reports whether both sub-criteria hold.
func (f *Filter) Pass(d types.Detection) bool {
	return f.PassGeometry(d) && f.PassConfidence(d)
}
