package gltf

import (
	"math"

	"scene-engine/internal/buffer"
	errs "scene-engine/internal/errors"
)

// Infinite is the draw count of a geometry that draws every element.
const Infinite = -1

// Attribute is one vertex or data stream. A flat attribute owns Array with
// ItemSize components per element. An interleaved attribute (Stride > 0)
// reads ItemSize components at Offset within every Stride-component element
// of a shared Array.
type Attribute struct {
	Array      buffer.Array
	ItemSize   int
	Normalized bool
	Stride     int
	Offset     int
}

// Interleaved reports whether the attribute shares its array with others.
func (a *Attribute) Interleaved() bool { return a.Stride > 0 }

// Count is the number of elements.
func (a *Attribute) Count() int {
	if a.Array == nil || a.ItemSize <= 0 {
		return 0
	}
	if a.Interleaved() {
		return a.Array.Len() / a.Stride
	}
	return a.Array.Len() / a.ItemSize
}

// Component returns component c of element i.
func (a *Attribute) Component(i, c int) float64 {
	if a.Interleaved() {
		return a.Array.At(i*a.Stride + a.Offset + c)
	}
	return a.Array.At(i*a.ItemSize + c)
}

// InterleavedBuffer is the shared source an interleaved attribute reads from.
type InterleavedBuffer struct {
	Array  buffer.Array
	Stride int
}

// Geometry is the drawable an attribute belongs to: its index attribute (nil
// when non-indexed) and draw range.
type Geometry struct {
	Index     *Attribute
	DrawStart int
	DrawCount int
}

// explicitRange reports whether the geometry limits what it draws.
func (g *Geometry) explicitRange() bool {
	return g.DrawStart != 0 || g.DrawCount != Infinite
}

type accessorOptions struct {
	start, count *int
	geometry     *Geometry
	interleaved  *InterleavedBuffer
}

// AccessorOption configures ProcessAccessor.
type AccessorOption func(*accessorOptions)

// WithRange exports count elements starting at start.
func WithRange(start, count int) AccessorOption {
	return func(o *accessorOptions) {
		o.start, o.count = &start, &count
	}
}

// WithGeometry names the drawable the attribute belongs to.
func WithGeometry(g *Geometry) AccessorOption {
	return func(o *accessorOptions) { o.geometry = g }
}

// WithInterleaved supplies the source buffer of an interleaved attribute.
func WithInterleaved(buf InterleavedBuffer) AccessorOption {
	return func(o *accessorOptions) { o.interleaved = &buf }
}

// ProcessAccessor packs attr into a new buffer view and appends an accessor
// for it to doc. It returns the accessor index, or ok=false with doc
// untouched when the effective element count is zero.
//
// Every call writes a new buffer view; callers that share an attribute
// between consumers must reuse the returned index.
func ProcessAccessor(attr *Attribute, doc *Document, w BufferViewWriter, opts ...AccessorOption) (int, bool, error) {
	var o accessorOptions
	for _, opt := range opts {
		opt(&o)
	}
	if attr.Array == nil {
		return 0, false, errs.New(errs.CodeInvalidArgument, "attribute has no array")
	}

	componentType, ok := exportComponentTypes[attr.Array.Kind()]
	if !ok {
		return 0, false, errs.New(errs.CodeUnsupportedFormat, "unsupported component type: %s", attr.Array.Kind()).
			With("kind", attr.Array.Kind().String())
	}

	typ, ok := attributeTypes[attr.ItemSize]
	if !ok {
		return 0, false, errs.New(errs.CodeUnsupportedFormat, "unsupported item size: %d", attr.ItemSize)
	}

	start, count := 0, attr.Count()
	if o.start != nil {
		start = *o.start
	}
	if o.count != nil {
		count = *o.count
	}
	if count == 0 {
		return 0, false, nil
	}

	g := o.geometry
	if g != nil && g.Index != attr && g.explicitRange() {
		end := start + count
		end2 := attr.Count()
		if g.DrawCount != Infinite {
			end2 = g.DrawStart + g.DrawCount
		}
		start = max(start, g.DrawStart)
		count = min(end, end2) - start
	}
	if count <= 0 {
		return 0, false, nil
	}
	if start < 0 || start+count > attr.Count() {
		return 0, false, errs.New(errs.CodeInvalidArgument, "range [%d, %d) outside %d elements", start, start+count, attr.Count())
	}

	minV, maxV := minMax(attr, start, count)

	if attr.Interleaved() && o.interleaved == nil {
		return 0, false, errs.New(errs.CodeInvalidArgument, "interleaved attribute requires its source buffer")
	}

	target := 0
	if g != nil {
		target = TargetArrayBuffer
		if g.Index == attr {
			target = TargetElementArrayBuffer
		}
	}

	var (
		res BufferViewResult
		err error
	)
	if attr.Interleaved() {
		res, err = w.WriteInterleavedBufferView(attr, *o.interleaved, componentType, start, count, target)
	} else {
		res, err = w.WriteBufferView(attr, componentType, start, count, target)
	}
	if err != nil {
		return 0, false, err
	}

	doc.Accessors = append(doc.Accessors, Accessor{
		BufferView:    ptr(res.Index),
		ByteOffset:    0,
		ComponentType: componentType,
		Normalized:    attr.Normalized,
		Count:         count,
		Type:          typ,
		Min:           minV,
		Max:           maxV,
		BufferIndex:   ptr(res.BufferIndex),
	})
	return len(doc.Accessors) - 1, true, nil
}

// minMax returns per-component bounds over elements [start, start+count).
func minMax(attr *Attribute, start, count int) ([]float64, []float64) {
	n := max(attr.ItemSize, 0)
	lo := make([]float64, n)
	hi := make([]float64, n)
	for c := range n {
		lo[c] = math.Inf(1)
		hi[c] = math.Inf(-1)
	}
	for i := start; i < start+count; i++ {
		for c := range n {
			v := attr.Component(i, c)
			lo[c] = math.Min(lo[c], v)
			hi[c] = math.Max(hi[c], v)
		}
	}
	return lo, hi
}
