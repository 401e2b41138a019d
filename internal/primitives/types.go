package primitives

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"scene-engine/internal/scene"
)

// PrimitiveDef is the YAML definition of a default primitive (see defaults.yaml).
// Size is width/height/depth for a box, radius/height for sphere and cylinder.
type PrimitiveDef struct {
	Type     string     `yaml:"type"`
	Size     [3]float32 `yaml:"size,omitempty"`
	Segments [2]int     `yaml:"segments,omitempty"`
	Color    string     `yaml:"color,omitempty"`
}

//go:embed defaults.yaml
var defaultsYAML []byte

// LoadDefs parses a YAML list of primitive definitions keyed by type.
func LoadDefs(data []byte) (map[string]PrimitiveDef, error) {
	var list []PrimitiveDef
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("primitive defs: %w", err)
	}
	out := make(map[string]PrimitiveDef, len(list))
	for _, d := range list {
		if d.Type == "" {
			return nil, fmt.Errorf("primitive def without type")
		}
		out[strings.ToLower(d.Type)] = d
	}
	return out, nil
}

// Defaults returns the built-in definitions for box, sphere and cylinder.
func Defaults() map[string]PrimitiveDef {
	defs, err := LoadDefs(defaultsYAML)
	if err != nil {
		panic(err)
	}
	return defs
}

// Mesh returns the parametric mesh described by d.
func (d PrimitiveDef) Mesh() (scene.Mesh, error) {
	switch strings.ToLower(d.Type) {
	case "box", "cube":
		return scene.BoxMesh{Width: d.Size[0], Height: d.Size[1], Depth: d.Size[2]}, nil
	case "sphere":
		return scene.SphereMesh{Radius: d.Size[0], WidthSegments: d.Segments[0], HeightSegments: d.Segments[1]}, nil
	case "cylinder":
		return scene.CylinderMesh{Radius: d.Size[0], Height: d.Size[1], RadialSegments: d.Segments[0]}, nil
	}
	return nil, fmt.Errorf("unknown primitive type %q", d.Type)
}

// Collider returns a static collider matching the primitive's shape.
func (d PrimitiveDef) Collider() scene.Collider {
	switch strings.ToLower(d.Type) {
	case "sphere":
		return scene.SphereCollider{Radius: d.Size[0]}
	case "cylinder":
		return scene.CylinderCollider{Radius: d.Size[0], Height: d.Size[1]}
	}
	return scene.BoxCollider{Size: scene.Triplet(d.Size)}
}

// RGBA parses Color ("#rrggbb" or "#rrggbbaa") into a linear 0..1 quad.
// An empty color is white.
func (d PrimitiveDef) RGBA() (scene.Quad, error) {
	hex := strings.TrimPrefix(d.Color, "#")
	if hex == "" {
		return scene.Quad{1, 1, 1, 1}, nil
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return scene.Quad{}, fmt.Errorf("color %q: want #rrggbb or #rrggbbaa", d.Color)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return scene.Quad{}, fmt.Errorf("color %q: %w", d.Color, err)
	}
	return scene.Quad{
		float32(v>>24&0xff) / 255,
		float32(v>>16&0xff) / 255,
		float32(v>>8&0xff) / 255,
		float32(v&0xff) / 255,
	}, nil
}
