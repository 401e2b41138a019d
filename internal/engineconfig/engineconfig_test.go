package engineconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsDefault(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "engine.json")
	want := Default()
	want.Skybox = "sky/pano.png"
	want.Gravity = [3]float32{0, -1.62, 0}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("physics_hz: 120\nvisuals: true\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120.0, p.PhysicsHz)
	assert.True(t, p.Visuals)
	assert.Equal(t, 60.0, p.RenderHz)
	assert.Equal(t, 5*time.Second, p.HandshakeTimeout())
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	p, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, Default(), p)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCENE_ENGINE_SKYBOX", "sky.png")
	t.Setenv("SCENE_ENGINE_HANDSHAKE_TIMEOUT", "250ms")
	t.Setenv("SCENE_ENGINE_GRAVITY", "0,-3,0")
	t.Setenv("SCENE_ENGINE_VISUALS", "true")

	p := Default()
	require.NoError(t, ApplyEnv(&p))
	assert.Equal(t, "sky.png", p.Skybox)
	assert.Equal(t, 250, p.HandshakeTimeoutMS)
	assert.Equal(t, [3]float32{0, -3, 0}, p.Gravity)
	assert.True(t, p.Visuals)
	assert.Equal(t, Default().PhysicsHz, p.PhysicsHz)
}

func TestApplyEnvRejectsBadGravity(t *testing.T) {
	t.Setenv("SCENE_ENGINE_GRAVITY", "1,2")
	p := Default()
	assert.Error(t, ApplyEnv(&p))
}
