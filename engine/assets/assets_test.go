package assets

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-core/engine/core"
)

func TestDetermineAssetType(t *testing.T) {
	cases := map[string]AssetType{
		"shaders/mesh.vert.spv": AssetTypeShader,
		"shaders/sky.wgsl":      AssetTypeShader,
		"textures/a.PNG":        AssetTypeImage,
		"textures/b.webp":       AssetTypeImage,
		"scenes/level.toml":     AssetTypeScene,
		"readme.md":             AssetTypeNone,
	}
	for path, want := range cases {
		if have := determineAssetType(path); have != want {
			t.Errorf("%s: have %s, want %s", path, have, want)
		}
	}
}

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitializeIndexesAssets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shaders", "mesh.vert.spv"), "")
	writeFile(t, filepath.Join(dir, "shaders", "mesh.frag.spv"), "")
	writeFile(t, filepath.Join(dir, "scenes", "quad.toml"), "")
	writeFile(t, filepath.Join(dir, "notes.txt"), "")

	am := NewAssetManager(dir)
	if err := am.Initialize(); err != nil {
		t.Fatal(err)
	}
	shaders := am.List(AssetTypeShader)
	if len(shaders) != 2 || shaders[0] != "shaders/mesh.frag.spv" {
		t.Fatalf("have shaders %v", shaders)
	}
	if info, ok := am.Lookup("scenes/quad.toml"); !ok || info.Type != AssetTypeScene {
		t.Fatalf("have %+v, %v", info, ok)
	}
	if _, ok := am.Lookup("notes.txt"); ok {
		t.Fatal("unknown file types should not be indexed")
	}
}

type postRecorder struct {
	mu     sync.Mutex
	events []core.EventContext
}

func (p *postRecorder) Post(ctx core.EventContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ctx)
}

func (p *postRecorder) paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Data.(core.AssetEvent).Path)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before the deadline")
}

func TestWatchPostsShaderChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shaders", "mesh.vert.spv"), "a")

	am := NewAssetManager(dir)
	rec := &postRecorder{}
	if err := am.Watch(rec); err != nil {
		t.Fatal(err)
	}
	defer am.Close()
	if err := am.Watch(rec); err == nil {
		t.Fatal("a second Watch should fail")
	}

	writeFile(t, filepath.Join(dir, "shaders", "mesh.vert.spv"), "b")
	writeFile(t, filepath.Join(dir, "ignored.txt"), "c")
	waitFor(t, func() bool {
		for _, p := range rec.paths() {
			if p == "shaders/mesh.vert.spv" {
				return true
			}
		}
		return false
	})
	for _, p := range rec.paths() {
		if p == "ignored.txt" {
			t.Fatal("changes to unknown file types should not be posted")
		}
	}

	if err := os.Remove(filepath.Join(dir, "shaders", "mesh.vert.spv")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, ok := am.Lookup("shaders/mesh.vert.spv")
		return !ok
	})
}
