package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"scene-engine/internal/assets"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/mapgen"
	"scene-engine/internal/primitives"
	"scene-engine/internal/scene"
	"scene-engine/internal/storage/sqlite"
)

// maxSpawn bounds one spawn command.
const maxSpawn = 500

// fetchTimeout bounds one remote asset download.
const fetchTimeout = 30 * time.Second

var primitiveTypes = []string{"box", "sphere", "cylinder"}

// Engine is the part of the orchestrator the console drives.
type Engine interface {
	AddEntity(scene.Entity) (string, error)
	RemoveEntity(id string) error
	UpdateEntity(id string, patch scene.EntityPatch) error
	AddMaterial(scene.Material) (string, error)
	AddAccessor(scene.Accessor) (string, error)
	Sweep() (scene.Swept, error)
	SetVisuals(on bool) error
	SetSkybox(uri string) error
	SetDefaultAvatar(uri string) error
	SetAnimationsPath(uri string) error
	StartRender() error
	StopRender() error
	StartPhysics() error
	StopPhysics() error
	SetGravity(scene.Triplet) error
	StepPhysics(dt float32) error
	AddFiles(files ...assets.File) (scene.Snapshot, error)
	AddURL(ctx context.Context, url string) (scene.Snapshot, error)
	LoadJSON([]byte) error
	Snapshot() (scene.Snapshot, error)
	SnapshotJSON() ([]byte, error)
	Export() ([]byte, error)
}

// Scenes is the named snapshot store behind save, load, scenes and forget.
// It may be nil, in which case those commands are not registered.
type Scenes interface {
	Save(ctx context.Context, name string, document []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]sqlite.Entry, error)
	Delete(ctx context.Context, name string) error
}

// RegisterScene registers the scene-editing commands against eng. Output
// such as new ids and listings goes to out.
func RegisterScene(reg *Registry, eng Engine, scenes Scenes, out io.Writer) {
	defs := primitives.Defaults()

	addPrimitive := func(typ, name string, pos, scale scene.Triplet, color string, dynamic, collide bool) (string, error) {
		def, ok := defs[typ]
		if !ok {
			return "", errs.New(errs.CodeInvalidArgument, "unknown type %q (use box, sphere or cylinder)", typ)
		}
		if color != "" {
			def.Color = color
		}
		rgba, err := def.RGBA()
		if err != nil {
			return "", errs.Wrap(errs.CodeInvalidArgument, err, "color")
		}
		mesh, err := def.Mesh()
		if err != nil {
			return "", errs.Wrap(errs.CodeInvalidArgument, err, "mesh")
		}
		mat := scene.NewMaterial("")
		mat.Color = scene.Quad{rgba[0], rgba[1], rgba[2], 1}
		mat.Alpha = rgba[3]
		if mat.Alpha < 1 {
			mat.AlphaMode = scene.AlphaBlend
		}
		matID, err := eng.AddMaterial(mat)
		if err != nil {
			return "", err
		}
		e := scene.NewEntity("")
		e.Name = name
		e.Position = pos
		e.Scale = scale
		e.Mesh = mesh
		e.MaterialID = scene.Ref(matID)
		if collide {
			e.Collider = withDynamic(def.Collider(), dynamic)
		}
		return eng.AddEntity(e)
	}

	{
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		typ := fs.String("type", "box", "box, sphere or cylinder")
		name := fs.String("name", "", "entity name")
		pos := vecFlag(fs, "pos", scene.Triplet{}, "position x,y,z")
		scale := vecFlag(fs, "scale", scene.Triplet{1, 1, 1}, "scale x,y,z")
		color := fs.String("color", "", "#rrggbb or #rrggbbaa")
		dynamic := fs.Bool("physics", true, "simulate the collider")
		collide := fs.Bool("collider", true, "attach a collider")
		reg.Register("add", "add a primitive", fs, func() error {
			id, err := addPrimitive(strings.ToLower(*typ), *name, *pos, *scale, *color, *dynamic, *collide)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, id)
			return nil
		})
	}
	{
		fs := flag.NewFlagSet("spawn", flag.ContinueOnError)
		typ := fs.String("type", "random", "box, sphere, cylinder or random")
		count := fs.Int("count", 1, "number of primitives")
		spacing := fs.Float64("spacing", 2, "distance between primitives")
		origin := vecFlag(fs, "origin", scene.Triplet{}, "first position x,y,z")
		pattern := fs.String("pattern", "grid", "grid, line or random")
		scale := vecFlag(fs, "scale", scene.Triplet{1, 1, 1}, "scale x,y,z")
		dynamic := fs.Bool("physics", true, "simulate the colliders")
		reg.Register("spawn", "add many primitives in a pattern", fs, func() error {
			n := min(max(*count, 1), maxSpawn)
			for i := range n {
				t := strings.ToLower(*typ)
				if t == "random" || t == "any" {
					t = primitiveTypes[rand.IntN(len(primitiveTypes))]
				}
				p := layout(*pattern, i, n, float32(*spacing), *origin)
				if _, err := addPrimitive(t, "", p, *scale, "", *dynamic, true); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "spawned %d\n", n)
			return nil
		})
	}
	{
		fs := flag.NewFlagSet("terrain", flag.ContinueOnError)
		d := mapgen.DefaultHeightMapOptions()
		width := fs.Int("width", d.Width, "tiles along x")
		depth := fs.Int("depth", d.Depth, "tiles along z")
		tile := fs.Float64("tile", float64(d.TileSize), "world size of one tile")
		height := fs.Float64("height", float64(d.HeightScale), "maximum height")
		seed := fs.Int64("seed", 0, "noise seed (0 picks one)")
		cubes := fs.Bool("cubes", false, "build static box tiles instead of one mesh")
		color := fs.String("color", "#4a7a3a", "#rrggbb")
		reg.Register("terrain", "generate a height map", fs, func() error {
			opts := mapgen.DefaultHeightMapOptions()
			opts.Width, opts.Depth = min(*width, 256), min(*depth, 256)
			opts.TileSize, opts.HeightScale = float32(*tile), float32(*height)
			opts.Seed = *seed
			id, err := addTerrain(eng, opts, *cubes, *color)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, id)
			return nil
		})
	}
	{
		fs := flag.NewFlagSet("remove", flag.ContinueOnError)
		reg.Register("remove", "remove entities by id", fs, func() error {
			if fs.NArg() == 0 {
				return errs.New(errs.CodeInvalidArgument, "remove: missing entity id")
			}
			for _, id := range fs.Args() {
				if err := eng.RemoveEntity(id); err != nil {
					return err
				}
			}
			return nil
		})
	}
	{
		fs := flag.NewFlagSet("move", flag.ContinueOnError)
		pos := vecFlag(fs, "pos", scene.Triplet{}, "local position x,y,z")
		reg.Register("move", "set an entity's local position", fs, func() error {
			if fs.NArg() != 1 {
				return errs.New(errs.CodeInvalidArgument, "move: want one entity id")
			}
			return eng.UpdateEntity(fs.Arg(0), scene.EntityPatch{Position: scene.Some(*pos)})
		})
	}
	{
		fs := flag.NewFlagSet("parent", flag.ContinueOnError)
		reg.Register("parent", "reparent an entity (parent 'none' detaches)", fs, func() error {
			if fs.NArg() != 2 {
				return errs.New(errs.CodeInvalidArgument, "parent: want <id> <parent-id|none>")
			}
			parent := scene.Ref(fs.Arg(1))
			if parent == "none" {
				parent = ""
			}
			return eng.UpdateEntity(fs.Arg(0), scene.EntityPatch{ParentID: scene.Some(parent)})
		})
	}
	{
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		internal := fs.Bool("internal", false, "include internal entities")
		reg.Register("list", "list entities", fs, func() error {
			snap, err := eng.Snapshot()
			if err != nil {
				return err
			}
			for _, e := range snap.Entities {
				if e.IsInternal && !*internal {
					continue
				}
				mesh := "-"
				if e.Mesh != nil {
					mesh = string(e.Mesh.MeshType())
				}
				fmt.Fprintf(out, "%s\t%s\t%s\tparent=%s\tpos=%s\n", e.ID, e.Name, mesh, orNone(string(e.ParentID)), formatVec(e.Position))
			}
			return nil
		})
	}
	{
		fs := flag.NewFlagSet("step", flag.ContinueOnError)
		dt := fs.Float64("dt", 1.0/60, "seconds per step")
		n := fs.Int("n", 1, "number of steps")
		reg.Register("step", "advance the simulation", fs, func() error {
			for range max(*n, 1) {
				if err := eng.StepPhysics(float32(*dt)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	{
		fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
		reg.Register("sweep", "drop accessors and images nothing references", fs, func() error {
			swept, err := eng.Sweep()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "swept %d accessors, %d images\n", len(swept.Accessors), len(swept.Images))
			return nil
		})
	}
	registerToggle(reg, "physics", "start or stop the simulation", eng.StartPhysics, eng.StopPhysics)
	registerToggle(reg, "render", "start or stop the frame loop", eng.StartRender, eng.StopRender)
	{
		fs := flag.NewFlagSet("visuals", flag.ContinueOnError)
		reg.Register("visuals", "show or hide collider debug drawing (on|off)", fs, func() error {
			on, err := onOff(fs)
			if err != nil {
				return err
			}
			return eng.SetVisuals(on)
		})
	}
	{
		fs := flag.NewFlagSet("gravity", flag.ContinueOnError)
		reg.Register("gravity", "set gravity x,y,z", fs, func() error {
			if fs.NArg() != 1 {
				return errs.New(errs.CodeInvalidArgument, "gravity: want x,y,z")
			}
			g, err := parseVec(fs.Arg(0))
			if err != nil {
				return err
			}
			return eng.SetGravity(g)
		})
	}
	registerPath(reg, "skybox", "set the skybox image", eng.SetSkybox)
	registerPath(reg, "avatar", "set the default avatar", eng.SetDefaultAvatar)
	registerPath(reg, "animations", "set the animations path", eng.SetAnimationsPath)
	{
		fs := flag.NewFlagSet("import", flag.ContinueOnError)
		reg.Register("import", "add glTF/GLB assets from files, directories, zips or URLs", fs, func() error {
			if fs.NArg() == 0 {
				return errs.New(errs.CodeInvalidArgument, "import: missing path")
			}
			var (
				files []assets.File
				added scene.Snapshot
			)
			for _, p := range fs.Args() {
				if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
					ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
					snap, err := eng.AddURL(ctx, p)
					cancel()
					if err != nil {
						return err
					}
					added = merge(added, snap)
					continue
				}
				fsFiles, err := ReadFiles(p)
				if err != nil {
					return err
				}
				files = append(files, fsFiles...)
			}
			if len(files) > 0 {
				snap, err := eng.AddFiles(files...)
				if err != nil {
					return err
				}
				added = merge(added, snap)
			}
			fmt.Fprintf(out, "added %d entities, %d materials, %d accessors, %d images, %d animations\n",
				len(added.Entities), len(added.Materials), len(added.Accessors), len(added.Images), len(added.Animations))
			return nil
		})
	}
	{
		fs := flag.NewFlagSet("export", flag.ContinueOnError)
		reg.Register("export", "write the scene as a GLB file", fs, func() error {
			if fs.NArg() != 1 {
				return errs.New(errs.CodeInvalidArgument, "export: want an output path")
			}
			glb, err := eng.Export()
			if err != nil {
				return err
			}
			return writeFile(fs.Arg(0), glb)
		})
	}
	{
		fs := flag.NewFlagSet("dump", flag.ContinueOnError)
		reg.Register("dump", "write the scene as a snapshot JSON file", fs, func() error {
			if fs.NArg() != 1 {
				return errs.New(errs.CodeInvalidArgument, "dump: want an output path")
			}
			b, err := eng.SnapshotJSON()
			if err != nil {
				return err
			}
			return writeFile(fs.Arg(0), b)
		})
	}
	{
		fs := flag.NewFlagSet("open", flag.ContinueOnError)
		reg.Register("open", "replace the scene with a snapshot JSON file", fs, func() error {
			if fs.NArg() != 1 {
				return errs.New(errs.CodeInvalidArgument, "open: want a snapshot path")
			}
			b, err := os.ReadFile(fs.Arg(0))
			if err != nil {
				return errs.Wrap(errs.CodeNotFound, err, "read snapshot")
			}
			return eng.LoadJSON(b)
		})
	}
	if scenes != nil {
		registerStore(reg, eng, scenes, out)
	}
}

// addTerrain adds a height map under one root entity and returns the root id.
func addTerrain(eng Engine, opts mapgen.HeightMapOptions, cubes bool, color string) (string, error) {
	rgba, err := primitives.PrimitiveDef{Color: color}.RGBA()
	if err != nil {
		return "", errs.Wrap(errs.CodeInvalidArgument, err, "color")
	}
	mat := scene.NewMaterial("")
	mat.Color = rgba
	matID, err := eng.AddMaterial(mat)
	if err != nil {
		return "", err
	}
	root := scene.NewEntity("")
	root.Name = "terrain"
	root.MaterialID = scene.Ref(matID)

	if !cubes {
		mesh, accessors := mapgen.Terrain(opts).Records(func() string { return ksuid.New().String() })
		for _, a := range accessors {
			a.IsInternal = true
			if _, err := eng.AddAccessor(a); err != nil {
				return "", err
			}
		}
		root.Mesh = mesh
		return eng.AddEntity(root)
	}

	rootID, err := eng.AddEntity(root)
	if err != nil {
		return "", err
	}
	for _, tile := range mapgen.HeightMapCubes(opts) {
		tile.ParentID = scene.Ref(rootID)
		tile.MaterialID = scene.Ref(matID)
		if _, err := eng.AddEntity(tile); err != nil {
			return "", err
		}
	}
	return rootID, nil
}

func registerStore(reg *Registry, eng Engine, scenes Scenes, out io.Writer) {
	named := func(fs *flag.FlagSet, op string) (string, error) {
		if fs.NArg() != 1 {
			return "", errs.New(errs.CodeInvalidArgument, "%s: want a scene name", op)
		}
		return fs.Arg(0), nil
	}
	{
		fs := flag.NewFlagSet("save", flag.ContinueOnError)
		reg.Register("save", "store the scene under a name", fs, func() error {
			name, err := named(fs, "save")
			if err != nil {
				return err
			}
			b, err := eng.SnapshotJSON()
			if err != nil {
				return err
			}
			return scenes.Save(context.Background(), name, b)
		})
	}
	{
		fs := flag.NewFlagSet("load", flag.ContinueOnError)
		reg.Register("load", "replace the scene with a stored one", fs, func() error {
			name, err := named(fs, "load")
			if err != nil {
				return err
			}
			b, err := scenes.Load(context.Background(), name)
			if err != nil {
				return err
			}
			return eng.LoadJSON(b)
		})
	}
	{
		fs := flag.NewFlagSet("forget", flag.ContinueOnError)
		reg.Register("forget", "delete a stored scene", fs, func() error {
			name, err := named(fs, "forget")
			if err != nil {
				return err
			}
			return scenes.Delete(context.Background(), name)
		})
	}
	{
		fs := flag.NewFlagSet("scenes", flag.ContinueOnError)
		reg.Register("scenes", "list stored scenes", fs, func() error {
			list, err := scenes.List(context.Background())
			if err != nil {
				return err
			}
			for _, e := range list {
				fmt.Fprintf(out, "%s\t%d entities\t%s\n", e.Name, e.Entities, e.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		})
	}
}

func registerToggle(reg *Registry, name, summary string, start, stop func() error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	reg.Register(name, summary+" (start|stop)", fs, func() error {
		switch fs.Arg(0) {
		case "start":
			return start()
		case "stop":
			return stop()
		}
		return errs.New(errs.CodeInvalidArgument, "%s: want start or stop", name)
	})
}

func registerPath(reg *Registry, name, summary string, set func(string) error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	reg.Register(name, summary, fs, func() error {
		if fs.NArg() != 1 {
			return errs.New(errs.CodeInvalidArgument, "%s: want one path", name)
		}
		return set(fs.Arg(0))
	})
}

func onOff(fs *flag.FlagSet) (bool, error) {
	switch strings.ToLower(fs.Arg(0)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, errs.New(errs.CodeInvalidArgument, "%s: want on or off", fs.Name())
}

func withDynamic(c scene.Collider, dynamic bool) scene.Collider {
	switch c := c.(type) {
	case scene.BoxCollider:
		c.Dynamic = dynamic
		return c
	case scene.SphereCollider:
		c.Dynamic = dynamic
		return c
	case scene.CylinderCollider:
		c.Dynamic = dynamic
		return c
	}
	return c
}

// layout places element i of n.
func layout(pattern string, i, n int, spacing float32, origin scene.Triplet) scene.Triplet {
	switch pattern {
	case "line":
		return scene.Triplet{origin[0] + float32(i)*spacing, origin[1], origin[2]}
	case "random", "spread":
		half := max(spacing*float32(n)/4, 5)
		return scene.Triplet{
			origin[0] + (rand.Float32()*2-1)*half,
			origin[1],
			origin[2] + (rand.Float32()*2-1)*half,
		}
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	row, col := i/cols, i%cols
	return scene.Triplet{origin[0] + float32(col)*spacing, origin[1], origin[2] + float32(row)*spacing}
}

func merge(a, b scene.Snapshot) scene.Snapshot {
	a.Entities = append(a.Entities, b.Entities...)
	a.Materials = append(a.Materials, b.Materials...)
	a.Accessors = append(a.Accessors, b.Accessors...)
	a.Images = append(a.Images, b.Images...)
	a.Animations = append(a.Animations, b.Animations...)
	return a
}

// ReadFiles reads one asset file, or every file under a directory with names
// relative to it so glTF side-car uris resolve.
func ReadFiles(p string) ([]assets.File, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, errs.Wrap(errs.CodeNotFound, err, "asset %s", p).With("path", p)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errs.Wrap(errs.CodeNotFound, err, "asset %s", p).With("path", p)
		}
		return []assets.File{{Name: filepath.Base(p), Data: data}}, nil
	}
	var out []assets.File
	root := os.DirFS(p)
	err = fs.WalkDir(root, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(root, name)
		if err != nil {
			return err
		}
		out = append(out, assets.File{Name: name, Data: data})
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeNotFound, err, "asset dir %s", p).With("path", p)
	}
	return out, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(errs.CodeUnknown, err, "create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Wrap(errs.CodeUnknown, err, "write %s", path)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func formatVec(v scene.Triplet) string {
	return fmt.Sprintf("%g,%g,%g", v[0], v[1], v[2])
}

// parseVec parses "x,y,z".
func parseVec(s string) (scene.Triplet, error) {
	var out scene.Triplet
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, errs.New(errs.CodeInvalidArgument, "expected x,y,z, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return out, errs.Wrap(errs.CodeInvalidArgument, err, "component %d of %q", i, s)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// vec is a flag.Value holding x,y,z.
type vec struct{ v *scene.Triplet }

func (f vec) String() string {
	if f.v == nil {
		return ""
	}
	return formatVec(*f.v)
}

func (f vec) Set(s string) error {
	v, err := parseVec(s)
	if err != nil {
		return err
	}
	*f.v = v
	return nil
}

func vecFlag(fs *flag.FlagSet, name string, def scene.Triplet, usage string) *scene.Triplet {
	v := def
	fs.Var(vec{&v}, name, usage)
	return &v
}
