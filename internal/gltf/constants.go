// Package gltf packs scene records into glTF 2.0 documents and binary GLB
// containers, and reads them back into scene records.
package gltf

import "scene-engine/internal/buffer"

// Component types (WebGL enums).
const (
	ComponentByte          = 5120
	ComponentUnsignedByte  = 5121
	ComponentShort         = 5122
	ComponentUnsignedShort = 5123
	ComponentUnsignedInt   = 5125
	ComponentFloat         = 5126
)

// Buffer view targets.
const (
	TargetArrayBuffer        = 34962
	TargetElementArrayBuffer = 34963
)

// GLB container constants.
const (
	glbMagic     = 0x46546C67 // "glTF"
	glbVersion   = 2
	chunkJSON    = 0x4E4F534A
	chunkBIN     = 0x004E4942
	glbHeaderLen = 12
)

// attributeTypes maps item size to accessor type.
var attributeTypes = map[int]string{
	1:  "SCALAR",
	2:  "VEC2",
	3:  "VEC3",
	4:  "VEC4",
	9:  "MAT3",
	16: "MAT4",
}

// itemSizes is the inverse of attributeTypes.
var itemSizes = map[string]int{
	"SCALAR": 1,
	"VEC2":   2,
	"VEC3":   3,
	"VEC4":   4,
	"MAT2":   4,
	"MAT3":   9,
	"MAT4":   16,
}

// exportComponentTypes lists the kinds the exporter can write.
var exportComponentTypes = map[buffer.Kind]int{
	buffer.KindFloat32: ComponentFloat,
	buffer.KindUint32:  ComponentUnsignedInt,
	buffer.KindUint16:  ComponentUnsignedShort,
	buffer.KindUint8:   ComponentUnsignedByte,
}

// importKinds maps every glTF component type to the array kind it decodes into.
var importKinds = map[int]buffer.Kind{
	ComponentByte:          buffer.KindInt8,
	ComponentUnsignedByte:  buffer.KindUint8,
	ComponentShort:         buffer.KindInt16,
	ComponentUnsignedShort: buffer.KindUint16,
	ComponentUnsignedInt:   buffer.KindUint32,
	ComponentFloat:         buffer.KindFloat32,
}
