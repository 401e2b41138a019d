package gltf

import (
	"scene-engine/internal/buffer"
	errs "scene-engine/internal/errors"
)

// BufferViewResult is the view a writer produced and the temporary buffer
// group it lives in.
type BufferViewResult struct {
	Index       int
	BufferIndex int
}

// BufferViewWriter copies attribute data into buffer views.
type BufferViewWriter interface {
	WriteBufferView(attr *Attribute, componentType, start, count, target int) (BufferViewResult, error)
	WriteInterleavedBufferView(attr *Attribute, src InterleavedBuffer, componentType, start, count, target int) (BufferViewResult, error)
}

// BufferWriter appends buffer views to a document, grouping their bytes by
// temporary buffer index until Merge joins the groups into one blob.
type BufferWriter struct {
	doc    *Document
	groups [][]byte
	// viewGroup records which group each view was written into.
	viewGroup map[int]int
}

// NewBufferWriter returns a writer with one open group.
func NewBufferWriter(doc *Document) *BufferWriter {
	return &BufferWriter{doc: doc, groups: [][]byte{nil}, viewGroup: map[int]int{}}
}

// NewGroup starts a new buffer group; later views are written into it.
func (w *BufferWriter) NewGroup() int {
	w.groups = append(w.groups, nil)
	return len(w.groups) - 1
}

func (w *BufferWriter) current() int { return len(w.groups) - 1 }

func pad4(n int) int { return (n + 3) &^ 3 }

// appendView pads the current group to 4 bytes, appends data as a new view
// and returns its result.
func (w *BufferWriter) appendView(data []byte, stride, target int) BufferViewResult {
	g := w.current()
	buf := w.groups[g]
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	offset := len(buf)
	w.groups[g] = append(buf, data...)

	w.doc.BufferViews = append(w.doc.BufferViews, BufferView{
		Buffer:     g,
		ByteOffset: offset,
		ByteLength: len(data),
		ByteStride: stride,
		Target:     target,
	})
	idx := len(w.doc.BufferViews) - 1
	w.viewGroup[idx] = g
	return BufferViewResult{Index: idx, BufferIndex: g}
}

// packElements writes count elements of itemSize contiguous components,
// element i starting at array index first(i). Vertex attribute elements are
// padded to a 4-byte stride.
func packElements(arr buffer.Array, itemSize, start, count, target int, first func(i int) int) ([]byte, int) {
	size := arr.Kind().ByteSize()
	elem := itemSize * size
	stride := elem
	if target == TargetArrayBuffer {
		stride = pad4(elem)
	}
	out := make([]byte, 0, stride*count)
	for i := start; i < start+count; i++ {
		k := first(i)
		out = arr.AppendBytes(out, k, k+itemSize)
		for range stride - elem {
			out = append(out, 0)
		}
	}
	if stride == elem {
		stride = 0
	}
	return out, stride
}

// WriteBufferView packs elements [start, start+count) of a flat attribute.
func (w *BufferWriter) WriteBufferView(attr *Attribute, componentType, start, count, target int) (BufferViewResult, error) {
	if _, ok := exportComponentTypes[attr.Array.Kind()]; !ok {
		return BufferViewResult{}, errs.New(errs.CodeUnsupportedFormat, "unsupported component type: %s", attr.Array.Kind())
	}
	data, stride := packElements(attr.Array, attr.ItemSize, start, count, target, func(i int) int {
		return i * attr.ItemSize
	})
	return w.appendView(data, stride, target), nil
}

// WriteInterleavedBufferView de-interleaves elements [start, start+count)
// of attr out of src into a tightly packed view.
func (w *BufferWriter) WriteInterleavedBufferView(attr *Attribute, src InterleavedBuffer, componentType, start, count, target int) (BufferViewResult, error) {
	if src.Array == nil || src.Stride <= 0 {
		return BufferViewResult{}, errs.New(errs.CodeInvalidArgument, "interleaved source buffer is empty")
	}
	if _, ok := exportComponentTypes[src.Array.Kind()]; !ok {
		return BufferViewResult{}, errs.New(errs.CodeUnsupportedFormat, "unsupported component type: %s", src.Array.Kind())
	}
	if (start+count-1)*src.Stride+attr.Offset+attr.ItemSize > src.Array.Len() {
		return BufferViewResult{}, errs.New(errs.CodeInvalidArgument, "interleaved window exceeds source buffer")
	}
	data, stride := packElements(src.Array, attr.ItemSize, start, count, target, func(i int) int {
		return i*src.Stride + attr.Offset
	})
	return w.appendView(data, stride, target), nil
}

// WriteBytes stores raw bytes (an encoded image) as a view without a target.
func (w *BufferWriter) WriteBytes(data []byte) int {
	return w.appendView(data, 0, 0).Index
}

// Merge concatenates every group into a single buffer, rebases view offsets
// onto it, strips temporary accessor buffer indices and sets doc.Buffers.
// The returned blob is padded to 4 bytes.
func (w *BufferWriter) Merge() []byte {
	base := make([]int, len(w.groups))
	var blob []byte
	for g, data := range w.groups {
		for len(blob)%4 != 0 {
			blob = append(blob, 0)
		}
		base[g] = len(blob)
		blob = append(blob, data...)
	}
	for len(blob)%4 != 0 {
		blob = append(blob, 0)
	}

	for i := range w.doc.BufferViews {
		g, ok := w.viewGroup[i]
		if !ok {
			continue
		}
		w.doc.BufferViews[i].ByteOffset += base[g]
		w.doc.BufferViews[i].Buffer = 0
	}
	for i := range w.doc.Accessors {
		w.doc.Accessors[i].BufferIndex = nil
	}
	w.doc.Buffers = nil
	if len(blob) > 0 {
		w.doc.Buffers = []Buffer{{ByteLength: len(blob)}}
	}
	w.groups = [][]byte{nil}
	w.viewGroup = map[int]int{}
	return blob
}
