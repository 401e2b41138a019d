// Package assets stages external asset files (glTF binaries, side-car
// textures, zip bundles, downloads) in an in-memory filesystem and expands
// them into scene records.
package assets

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"

	errs "scene-engine/internal/errors"
)

// File is one named asset.
type File struct {
	Name string
	Data []byte
}

// Stage holds asset files until they are ingested. Side-car files are found
// by the relative uris inside glTF documents, so names keep their directories.
type Stage struct {
	fs    hackpadfs.FS
	names []string
}

// NewStage returns an empty in-memory stage.
func NewStage() (*Stage, error) {
	fs, err := mem.NewFS()
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "create asset stage")
	}
	return &Stage{fs: fs}, nil
}

// FS exposes the staged files.
func (s *Stage) FS() hackpadfs.FS { return s.fs }

// Names lists staged files in insertion order.
func (s *Stage) Names() []string { return append([]string(nil), s.names...) }

// cleanName turns a user or archive path into a stage path, rejecting
// anything that would escape the stage root.
func cleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	p := path.Clean("/" + name)
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", errs.New(errs.CodeInvalidArgument, "empty asset name")
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", errs.New(errs.CodeInvalidArgument, "asset name %q escapes the stage", name)
		}
	}
	return p, nil
}

// Add stages one file. Zip archives are expanded in place of the archive.
func (s *Stage) Add(f File) error {
	if strings.EqualFold(path.Ext(f.Name), ".zip") {
		_, err := s.AddZip(f.Data)
		return err
	}
	return s.write(f.Name, f.Data)
}

func (s *Stage) write(name string, data []byte) error {
	p, err := cleanName(name)
	if err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." {
		if err := hackpadfs.MkdirAll(s.fs, dir, 0o755); err != nil {
			return errs.Wrap(errs.CodeUnknown, err, "stage %s", p)
		}
	}
	if err := hackpadfs.WriteFullFile(s.fs, p, data, 0o644); err != nil {
		return errs.Wrap(errs.CodeUnknown, err, "stage %s", p)
	}
	for _, n := range s.names {
		if n == p {
			return nil
		}
	}
	s.names = append(s.names, p)
	return nil
}

// AddZip extracts every file of a zip archive, preserving directory
// structure. Entries whose path escapes the stage are skipped. It returns
// the staged names.
func (s *Stage) AddZip(data []byte) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, errs.Wrap(errs.CodeUnsupportedFormat, err, "unzip")
	}
	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := cleanName(f.Name)
		if err != nil {
			continue // skip path escape
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errs.Wrap(errs.CodeUnsupportedFormat, err, "unzip %s", f.Name)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errs.Wrap(errs.CodeUnsupportedFormat, err, "unzip %s", f.Name)
		}
		if err := s.write(name, body); err != nil {
			return nil, err
		}
		extracted = append(extracted, name)
	}
	return extracted, nil
}

// Read returns a staged file's bytes.
func (s *Stage) Read(name string) ([]byte, error) {
	p, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		return nil, errs.Wrap(errs.CodeNotFound, err, "asset %s", p)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Primaries lists staged glTF documents (.glb and .gltf), sorted.
func (s *Stage) Primaries() []string {
	var out []string
	for _, n := range s.names {
		switch strings.ToLower(path.Ext(n)) {
		case ".glb", ".gltf":
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
