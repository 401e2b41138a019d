package gltf

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	errs "scene-engine/internal/errors"
)

// WriteGLB encodes doc and its binary buffer as a GLB container. bin must be
// the merged blob Document.Buffers[0] describes, or empty.
func WriteGLB(doc *Document, bin []byte) ([]byte, error) {
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnsupportedFormat, err, "encode gltf json")
	}
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	binLen := pad4(len(bin))

	total := glbHeaderLen + 8 + len(js)
	if len(bin) > 0 {
		total += 8 + binLen
	}
	var out bytes.Buffer
	out.Grow(total)
	le := binary.LittleEndian
	_ = binary.Write(&out, le, [3]uint32{glbMagic, glbVersion, uint32(total)})
	_ = binary.Write(&out, le, [2]uint32{uint32(len(js)), chunkJSON})
	out.Write(js)
	if len(bin) > 0 {
		_ = binary.Write(&out, le, [2]uint32{uint32(binLen), chunkBIN})
		out.Write(bin)
		out.Write(make([]byte, binLen-len(bin)))
	}
	return out.Bytes(), nil
}

// IsGLB reports whether data starts with the GLB magic.
func IsGLB(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == glbMagic
}

// ReadGLB splits a GLB container into its document and binary chunk.
func ReadGLB(data []byte) (*Document, []byte, error) {
	le := binary.LittleEndian
	if len(data) < glbHeaderLen+8 || !IsGLB(data) {
		return nil, nil, errs.New(errs.CodeUnsupportedFormat, "not a glb container")
	}
	if v := le.Uint32(data[4:]); v != glbVersion {
		return nil, nil, errs.New(errs.CodeUnsupportedFormat, "unsupported glb version %d", v)
	}
	total := int(le.Uint32(data[8:]))
	if total > len(data) {
		return nil, nil, errs.New(errs.CodeUnsupportedFormat, "glb truncated: header says %d bytes, have %d", total, len(data))
	}

	var (
		doc *Document
		bin []byte
	)
	for off := glbHeaderLen; off+8 <= total; {
		n := int(le.Uint32(data[off:]))
		kind := le.Uint32(data[off+4:])
		off += 8
		if off+n > total {
			return nil, nil, errs.New(errs.CodeUnsupportedFormat, "glb chunk overruns container")
		}
		chunk := data[off : off+n]
		off += n
		switch kind {
		case chunkJSON:
			d, err := ParseGLTF(chunk)
			if err != nil {
				return nil, nil, err
			}
			doc = d
		case chunkBIN:
			if bin == nil {
				bin = chunk
			}
		}
	}
	if doc == nil {
		return nil, nil, errs.New(errs.CodeUnsupportedFormat, "glb has no json chunk")
	}
	return doc, bin, nil
}

// ParseGLTF decodes a glTF JSON document.
func ParseGLTF(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.CodeUnsupportedFormat, err, "decode gltf json")
	}
	if doc.Asset.Version != "" && doc.Asset.Version[0] != '2' {
		return nil, errs.New(errs.CodeUnsupportedFormat, "unsupported gltf version %q", doc.Asset.Version)
	}
	return &doc, nil
}
