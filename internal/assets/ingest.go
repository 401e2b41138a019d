package assets

import (
	"path"
	"strings"

	"github.com/segmentio/ksuid"

	errs "scene-engine/internal/errors"
	"scene-engine/internal/gltf"
	"scene-engine/internal/scene"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// Ingest expands the staged files into scene records. Every glTF document is
// imported with its side-car files resolved from the stage. When the stage
// holds no glTF document, each image file becomes a standalone image record.
func Ingest(s *Stage, maxTextureSize int) (scene.Snapshot, error) {
	out := scene.Snapshot{
		Entities:   []scene.Entity{},
		Materials:  []scene.Material{},
		Accessors:  []scene.Accessor{},
		Images:     []scene.Image{},
		Animations: []scene.Animation{},
	}
	decode := ImageDecoder(maxTextureSize)

	primaries := s.Primaries()
	for _, name := range primaries {
		data, err := s.Read(name)
		if err != nil {
			return scene.Snapshot{}, err
		}
		snap, err := gltf.Decode(name, data, gltf.ImportOptions{FS: s.FS(), DecodeImage: decode})
		if err != nil {
			return scene.Snapshot{}, errs.Wrap(errs.CodeOf(err), err, "import %s", name).With("file", name)
		}
		out.Entities = append(out.Entities, snap.Entities...)
		out.Materials = append(out.Materials, snap.Materials...)
		out.Accessors = append(out.Accessors, snap.Accessors...)
		out.Images = append(out.Images, snap.Images...)
		out.Animations = append(out.Animations, snap.Animations...)
	}
	if len(primaries) > 0 {
		return out, nil
	}

	for _, name := range s.Names() {
		if !imageExts[strings.ToLower(path.Ext(name))] {
			continue
		}
		data, err := s.Read(name)
		if err != nil {
			return scene.Snapshot{}, err
		}
		bmp, err := decode(data)
		if err != nil {
			return scene.Snapshot{}, errs.Wrap(errs.CodeOf(err), err, "image %s", name).With("file", name)
		}
		out.Images = append(out.Images, scene.Image{ID: ksuid.New().String(), Bitmap: bmp})
	}
	return out, nil
}

// IngestFiles stages files and ingests them.
func IngestFiles(files []File, maxTextureSize int) (scene.Snapshot, error) {
	s, err := NewStage()
	if err != nil {
		return scene.Snapshot{}, err
	}
	for _, f := range files {
		if err := s.Add(f); err != nil {
			return scene.Snapshot{}, err
		}
	}
	return Ingest(s, maxTextureSize)
}
