package gltf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-engine/internal/buffer"
	errs "scene-engine/internal/errors"
)

func newDoc() (*Document, *BufferWriter) {
	doc := &Document{Asset: Asset{Version: "2.0"}}
	return doc, NewBufferWriter(doc)
}

func TestZeroCountReturnsNoAccessor(t *testing.T) {
	doc, w := newDoc()
	attr := &Attribute{Array: buffer.Float32Array{1, 2, 3}, ItemSize: 3}

	_, ok, err := ProcessAccessor(attr, doc, w, WithRange(0, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = ProcessAccessor(&Attribute{Array: buffer.Float32Array{}, ItemSize: 3}, doc, w)
	require.NoError(t, err)
	assert.False(t, ok)

	// The draw range does not overlap the requested window.
	g := &Geometry{DrawStart: 5, DrawCount: 2}
	_, ok, err = ProcessAccessor(attr, doc, w, WithGeometry(g))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Empty(t, doc.Accessors)
	assert.Empty(t, doc.BufferViews)
}

func TestMinMaxCoversOnlyTheWindow(t *testing.T) {
	doc, w := newDoc()
	attr := &Attribute{Array: buffer.Float32Array{
		1, 2, 3,
		4, 0, -1,
		2, 8, 2,
		100, -100, 100,
	}, ItemSize: 3}

	idx, ok, err := ProcessAccessor(attr, doc, w, WithRange(0, 3))
	require.NoError(t, err)
	require.True(t, ok)

	a := doc.Accessors[idx]
	assert.Equal(t, ComponentFloat, a.ComponentType)
	assert.Equal(t, "VEC3", a.Type)
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, 0, a.ByteOffset)
	assert.Equal(t, []float64{1, 0, -1}, a.Min)
	assert.Equal(t, []float64{4, 8, 3}, a.Max)
	require.NotNil(t, a.BufferIndex)
	assert.Equal(t, 0, *a.BufferIndex)
	assert.Equal(t, 36, doc.BufferViews[*a.BufferView].ByteLength)
}

func TestDrawRangeClampsVertexAttributes(t *testing.T) {
	doc, w := newDoc()
	attr := &Attribute{Array: buffer.Float32Array{0, 1, 2, 3, 4}, ItemSize: 1}
	g := &Geometry{DrawStart: 1, DrawCount: 2}

	idx, ok, err := ProcessAccessor(attr, doc, w, WithGeometry(g))
	require.NoError(t, err)
	require.True(t, ok)
	a := doc.Accessors[idx]
	assert.Equal(t, 2, a.Count)
	assert.Equal(t, []float64{1}, a.Min)
	assert.Equal(t, []float64{2}, a.Max)
	assert.Equal(t, TargetArrayBuffer, doc.BufferViews[*a.BufferView].Target)
}

func TestIndexIsNotClamped(t *testing.T) {
	doc, w := newDoc()
	index := &Attribute{Array: buffer.Uint16Array{0, 1, 2, 2, 1, 3}, ItemSize: 1}
	g := &Geometry{Index: index, DrawStart: 0, DrawCount: 3}

	idx, ok, err := ProcessAccessor(index, doc, w, WithGeometry(g))
	require.NoError(t, err)
	require.True(t, ok)
	a := doc.Accessors[idx]
	assert.Equal(t, 6, a.Count)
	assert.Equal(t, ComponentUnsignedShort, a.ComponentType)
	assert.Equal(t, "SCALAR", a.Type)
	assert.Equal(t, TargetElementArrayBuffer, doc.BufferViews[*a.BufferView].Target)
}

func TestSameAttributeTwiceWritesTwoViews(t *testing.T) {
	doc, w := newDoc()
	attr := &Attribute{Array: buffer.Float32Array{0, 0, 0, 1, 1, 1}, ItemSize: 3}

	first, ok, err := ProcessAccessor(attr, doc, w)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := ProcessAccessor(attr, doc, w)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEqual(t, first, second)
	assert.Len(t, doc.BufferViews, 2)
	assert.NotEqual(t, *doc.Accessors[first].BufferView, *doc.Accessors[second].BufferView)
}

func TestUnsupportedComponentType(t *testing.T) {
	for _, arr := range []buffer.Array{buffer.Int8Array{1}, buffer.Int16Array{1}, buffer.Int32Array{1}, buffer.Float64Array{1}} {
		doc, w := newDoc()
		_, _, err := ProcessAccessor(&Attribute{Array: arr, ItemSize: 1}, doc, w)
		assert.Equal(t, errs.CodeUnsupportedFormat, errs.CodeOf(err), arr.Kind().String())
		assert.Empty(t, doc.BufferViews)
		assert.Empty(t, doc.Accessors)
	}
}

func TestUnsupportedItemSize(t *testing.T) {
	doc, w := newDoc()
	_, _, err := ProcessAccessor(&Attribute{Array: make(buffer.Float32Array, 10), ItemSize: 5}, doc, w)
	assert.Equal(t, errs.CodeUnsupportedFormat, errs.CodeOf(err))

	// Sizes that leave no whole element are still rejected, not skipped.
	for _, size := range []int{0, 5} {
		_, ok, err := ProcessAccessor(&Attribute{Array: buffer.Float32Array{1, 2, 3}, ItemSize: size}, doc, w)
		assert.Equal(t, errs.CodeUnsupportedFormat, errs.CodeOf(err), "size %d", size)
		assert.False(t, ok)
	}
	assert.Empty(t, doc.BufferViews)
	assert.Empty(t, doc.Accessors)
}

func TestMatrixItemSizes(t *testing.T) {
	doc, w := newDoc()
	idx, ok, err := ProcessAccessor(&Attribute{Array: make(buffer.Float32Array, 32), ItemSize: 16}, doc, w)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "MAT4", doc.Accessors[idx].Type)
	assert.Equal(t, 2, doc.Accessors[idx].Count)
}

func TestInterleavedAttribute(t *testing.T) {
	// x y z u v per vertex.
	shared := buffer.Float32Array{
		0, 0, 0, 0.25, 0.5,
		1, 0, 0, 0.75, 0.1,
	}
	uv := &Attribute{Array: shared, ItemSize: 2, Stride: 5, Offset: 3}
	assert.Equal(t, 2, uv.Count())

	doc, w := newDoc()
	_, _, err := ProcessAccessor(uv, doc, w)
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
	assert.Empty(t, doc.BufferViews)

	idx, ok, err := ProcessAccessor(uv, doc, w, WithInterleaved(InterleavedBuffer{Array: shared, Stride: 5}))
	require.NoError(t, err)
	require.True(t, ok)
	a := doc.Accessors[idx]
	assert.Equal(t, "VEC2", a.Type)
	assert.Equal(t, []float64{0.25, float64(float32(0.1))}, a.Min)
	assert.Equal(t, 0.75, a.Max[0])

	bin := w.Merge()
	view := doc.BufferViews[*a.BufferView]
	assert.Equal(t, buffer.Bytes(buffer.Float32Array{0.25, 0.5, 0.75, 0.1}), bin[view.ByteOffset:view.ByteOffset+view.ByteLength])
}

func TestNormalizedFlag(t *testing.T) {
	doc, w := newDoc()
	idx, _, err := ProcessAccessor(&Attribute{Array: buffer.Uint8Array{255, 0, 0, 255}, ItemSize: 4, Normalized: true}, doc, w)
	require.NoError(t, err)
	assert.True(t, doc.Accessors[idx].Normalized)
	assert.Equal(t, ComponentUnsignedByte, doc.Accessors[idx].ComponentType)
}

func TestVertexElementsPadToFourBytes(t *testing.T) {
	doc, w := newDoc()
	attr := &Attribute{Array: buffer.Uint8Array{1, 2, 3, 4, 5, 6}, ItemSize: 3}
	idx, _, err := ProcessAccessor(attr, doc, w, WithGeometry(&Geometry{DrawCount: Infinite}))
	require.NoError(t, err)

	view := doc.BufferViews[*doc.Accessors[idx].BufferView]
	assert.Equal(t, 4, view.ByteStride)
	assert.Equal(t, 8, view.ByteLength)
	assert.Equal(t, []byte{1, 2, 3, 0, 4, 5, 6, 0}, w.Merge())
}

func TestMergeRebasesGroups(t *testing.T) {
	doc, w := newDoc()
	a, _, err := ProcessAccessor(&Attribute{Array: buffer.Uint8Array{1, 2, 3}, ItemSize: 1}, doc, w)
	require.NoError(t, err)
	assert.Equal(t, 1, w.NewGroup())
	b, _, err := ProcessAccessor(&Attribute{Array: buffer.Float32Array{1, 2}, ItemSize: 2}, doc, w)
	require.NoError(t, err)
	assert.Equal(t, 1, *doc.Accessors[b].BufferIndex)
	assert.Equal(t, 1, doc.BufferViews[*doc.Accessors[b].BufferView].Buffer)

	bin := w.Merge()
	assert.Len(t, bin, 12)
	require.Len(t, doc.Buffers, 1)
	assert.Equal(t, 12, doc.Buffers[0].ByteLength)

	va := doc.BufferViews[*doc.Accessors[a].BufferView]
	vb := doc.BufferViews[*doc.Accessors[b].BufferView]
	assert.Equal(t, 0, va.ByteOffset)
	assert.Equal(t, 4, vb.ByteOffset)
	assert.Equal(t, 0, vb.Buffer)
	assert.Equal(t, buffer.Bytes(buffer.Float32Array{1, 2}), bin[4:12])
	for _, acc := range doc.Accessors {
		assert.Nil(t, acc.BufferIndex)
	}
}
