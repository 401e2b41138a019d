package engineconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EngineConfigPath is the default config file, relative to the process working directory.
const EngineConfigPath = "config/engine.json"

// Prefs holds engine preferences. Persisted across runs; scene data is separate.
type Prefs struct {
	Skybox             string     `json:"skybox,omitempty" yaml:"skybox,omitempty"`
	DefaultAvatar      string     `json:"default_avatar,omitempty" yaml:"default_avatar,omitempty"`
	AnimationsPath     string     `json:"animations_path,omitempty" yaml:"animations_path,omitempty"`
	Visuals            bool       `json:"visuals" yaml:"visuals"`
	HandshakeTimeoutMS int        `json:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`
	PhysicsHz          float64    `json:"physics_hz" yaml:"physics_hz"`
	RenderHz           float64    `json:"render_hz" yaml:"render_hz"`
	Gravity            [3]float32 `json:"gravity" yaml:"gravity"`
	MaxTextureSize     int        `json:"max_texture_size" yaml:"max_texture_size"`
	LogPath            string     `json:"log_path" yaml:"log_path"`
	LogLevel           string     `json:"log_level" yaml:"log_level"`
	DBPath             string     `json:"db_path" yaml:"db_path"`
	MailboxWarnDepth   int        `json:"mailbox_warn_depth" yaml:"mailbox_warn_depth"`
}

// Default returns the built-in preferences.
func Default() Prefs {
	return Prefs{
		Visuals:            false,
		HandshakeTimeoutMS: 5000,
		PhysicsHz:          60,
		RenderHz:           60,
		Gravity:            [3]float32{0, -9.81, 0},
		MaxTextureSize:     4096,
		LogPath:            "logs/engine.log",
		LogLevel:           "info",
		DBPath:             "data/scenes.db",
		MailboxWarnDepth:   1024,
	}
}

// HandshakeTimeout returns the startup handshake limit.
func (p Prefs) HandshakeTimeout() time.Duration {
	return time.Duration(p.HandshakeTimeoutMS) * time.Millisecond
}

// Load reads preferences from path (JSON, or YAML for .yaml/.yml) on top of
// Default(). A missing file yields Default() and no error; an unreadable or
// invalid file yields Default() and the error.
func Load(path string) (Prefs, error) {
	p := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return p, nil
}

// Save writes preferences to path as JSON, creating the directory if needed.
func Save(path string, p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// overrides are the SCENE_ENGINE_* variables; unset ones stay nil.
type overrides struct {
	Skybox           *string        `env:"SCENE_ENGINE_SKYBOX"`
	DefaultAvatar    *string        `env:"SCENE_ENGINE_DEFAULT_AVATAR"`
	AnimationsPath   *string        `env:"SCENE_ENGINE_ANIMATIONS_PATH"`
	Visuals          *bool          `env:"SCENE_ENGINE_VISUALS"`
	HandshakeTimeout *time.Duration `env:"SCENE_ENGINE_HANDSHAKE_TIMEOUT"`
	PhysicsHz        *float64       `env:"SCENE_ENGINE_PHYSICS_HZ"`
	RenderHz         *float64       `env:"SCENE_ENGINE_RENDER_HZ"`
	Gravity          []float32      `env:"SCENE_ENGINE_GRAVITY" envSeparator:","`
	MaxTextureSize   *int           `env:"SCENE_ENGINE_MAX_TEXTURE_SIZE"`
	LogPath          *string        `env:"SCENE_ENGINE_LOG_PATH"`
	LogLevel         *string        `env:"SCENE_ENGINE_LOG_LEVEL"`
	DBPath           *string        `env:"SCENE_ENGINE_DB_PATH"`
	MailboxWarnDepth *int           `env:"SCENE_ENGINE_MAILBOX_WARN_DEPTH"`
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// ApplyEnv overlays SCENE_ENGINE_* environment variables onto p.
func ApplyEnv(p *Prefs) error {
	var o overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Gravity != nil && len(o.Gravity) != 3 {
		return fmt.Errorf("parse env: SCENE_ENGINE_GRAVITY wants x,y,z, got %d values", len(o.Gravity))
	}
	set(&p.Skybox, o.Skybox)
	set(&p.DefaultAvatar, o.DefaultAvatar)
	set(&p.AnimationsPath, o.AnimationsPath)
	set(&p.Visuals, o.Visuals)
	if o.HandshakeTimeout != nil {
		p.HandshakeTimeoutMS = int(o.HandshakeTimeout.Milliseconds())
	}
	set(&p.PhysicsHz, o.PhysicsHz)
	set(&p.RenderHz, o.RenderHz)
	if o.Gravity != nil {
		p.Gravity = [3]float32(o.Gravity)
	}
	set(&p.MaxTextureSize, o.MaxTextureSize)
	set(&p.LogPath, o.LogPath)
	set(&p.LogLevel, o.LogLevel)
	set(&p.DBPath, o.DBPath)
	set(&p.MailboxWarnDepth, o.MailboxWarnDepth)
	return nil
}
