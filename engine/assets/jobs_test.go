package assets

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/anima-core/engine/core"
)

func TestNewJobSystemRejectsBadSizes(t *testing.T) {
	if _, err := NewJobSystem(0, 1); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("have %v, want ErrNoWorkers", err)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Fatalf("have %v, want ErrNegativeChannelSize", err)
	}
}

func TestJobSystemRunsEveryJob(t *testing.T) {
	js, err := NewJobSystem(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	var done, failed atomic.Int32
	boom := errors.New("boom")
	for i := 0; i < 50; i++ {
		err := js.Submit(Job{
			Run: func() error {
				if i%5 == 0 {
					return boom
				}
				return nil
			},
			OnComplete: func() { done.Add(1) },
			OnFailure: func(err error) {
				if errors.Is(err, boom) {
					failed.Add(1)
				}
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	js.Shutdown()

	if done.Load() != 40 || failed.Load() != 10 {
		t.Fatalf("have %d completed and %d failed", done.Load(), failed.Load())
	}
	if err := js.Submit(Job{Run: func() error { return nil }}); !errors.Is(err, ErrJobSystemClosed) {
		t.Fatalf("have %v, want ErrJobSystemClosed", err)
	}
	// a second shutdown is a no-op
	js.Shutdown()
}

func TestUnhandledJobFailureIsLoggedVerbatim(t *testing.T) {
	var out bytes.Buffer
	core.SetLogOutput(&out)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })

	js, err := NewJobSystem(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	var ran atomic.Bool
	if err := js.Submit(Job{Run: func() error { return errors.New("decode 100%d failed") }}); err != nil {
		t.Fatal(err)
	}
	if err := js.Submit(Job{Run: func() error { return nil }, OnComplete: func() { ran.Store(true) }}); err != nil {
		t.Fatal(err)
	}
	js.Shutdown()

	if !strings.Contains(out.String(), "decode 100%d failed") {
		t.Fatalf("error message was mangled: %q", out.String())
	}
	if !ran.Load() {
		t.Fatal("worker should keep running after an unhandled failure")
	}
}

const texturedScene = `
[[materials]]
name = "a"
color_texture = "wall.png"
metal_rough_texture = "wall.png"

[[materials]]
name = "b"
color_texture = "wall.png"
metal_rough_texture = "gone.png"
`

func TestSceneTexturesDecodedOnceInParallel(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, twoRows()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "wall.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	file, err := ParseScene([]byte(texturedScene))
	if err != nil {
		t.Fatal(err)
	}

	js, err := NewJobSystem(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer js.Shutdown()
	sl := NewSceneLoader(dir)
	sl.Jobs = js

	up := &fakeUploader{}
	loaded, err := sl.Build(file, up)
	if err != nil {
		t.Fatal(err)
	}
	if up.images != 1 || len(loaded.Images) != 1 {
		t.Fatalf("have %d uploads and %d owned images, want one of each", up.images, len(loaded.Images))
	}
	if len(up.materials) != 2 {
		t.Fatalf("have %d materials", len(up.materials))
	}
}
