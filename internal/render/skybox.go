package render

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/hack-pad/hackpadfs"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// skyboxPaths are tried in order when the configured skybox cannot be found as given.
// Skybox assets live under assets/skybox/.
var skyboxPaths = []string{
	"assets/skybox/skybox.png",
	"assets/skybox/skybox.jpg",
}

// equirectAspectMin/Max: width/height ratio of an equirectangular panorama (typically 2:1).
const (
	equirectAspectMin = 1.8
	equirectAspectMax = 2.2
)

// Skybox describes the configured sky. Layout is only known once the image
// was found and its header decoded.
type Skybox struct {
	URI      string
	Path     string
	Width    int
	Height   int
	Equirect bool // panorama; false means cubemap
	Resolved bool
}

// IsEquirect reports whether a width x height image is a panorama rather
// than a cubemap cross.
func IsEquirect(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	aspect := float32(width) / float32(height)
	return aspect >= equirectAspectMin && aspect <= equirectAspectMax
}

// ResolveSkybox finds uri in fsys (falling back to skyboxPaths) and decides
// cubemap vs equirect from the image header. An empty uri clears the sky.
func ResolveSkybox(fsys hackpadfs.FS, uri string) Skybox {
	sky := Skybox{URI: uri}
	if uri == "" || fsys == nil {
		return sky
	}
	candidates := append([]string{fsPath(uri)}, skyboxPaths...)
	for _, p := range candidates {
		f, err := fsys.Open(p)
		if err != nil {
			continue
		}
		cfg, _, err := image.DecodeConfig(f)
		_ = f.Close()
		if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
			continue
		}
		sky.Path = p
		sky.Width, sky.Height = cfg.Width, cfg.Height
		sky.Equirect = IsEquirect(cfg.Width, cfg.Height)
		sky.Resolved = true
		return sky
	}
	return sky
}

// fsPath turns a URI or OS-style path into an io/fs path.
func fsPath(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		uri = uri[i+3:]
	}
	p := path.Clean(strings.TrimPrefix(strings.ReplaceAll(uri, "\\", "/"), "/"))
	return strings.TrimPrefix(p, "./")
}
