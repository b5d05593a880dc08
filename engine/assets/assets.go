// Package assets loads shaders, images and scene files from the assets
// directory and watches it for changes.
package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-core/engine/core"
)

type AssetType int

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
	AssetTypeImage
	AssetTypeScene
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeShader:
		return "shader"
	case AssetTypeImage:
		return "image"
	case AssetTypeScene:
		return "scene"
	}
	return "none"
}

func determineAssetType(path string) AssetType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv", ".wgsl":
		return AssetTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return AssetTypeImage
	case ".toml":
		return AssetTypeScene
	}
	return AssetTypeNone
}

type AssetInfo struct {
	Path     string
	Type     AssetType
	Modified time.Time
}

// EventPoster receives change notifications from the watcher goroutine.
// core.EventBus satisfies it.
type EventPoster interface {
	Post(ctx core.EventContext)
}

// AssetManager indexes the assets directory and owns the loaders.
type AssetManager struct {
	Root    string
	Shaders *ShaderLoader
	Images  *ImageLoader
	Scenes  *SceneLoader

	mutex  sync.RWMutex
	assets map[string]AssetInfo

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

func NewAssetManager(root string) *AssetManager {
	am := &AssetManager{
		Root:    root,
		Shaders: NewShaderLoader(root),
		Images:  &ImageLoader{Root: root},
		Scenes:  NewSceneLoader(root),
		assets:  make(map[string]AssetInfo),
	}
	jobs, err := NewJobSystem(max(runtime.NumCPU()/2, 1), 64)
	if err != nil {
		core.LogWarn("texture decoding stays on the main thread: %s", err)
	} else {
		am.Scenes.Jobs = jobs
	}
	return am
}

// Initialize indexes every known asset below Root.
func (am *AssetManager) Initialize() error {
	return filepath.WalkDir(am.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			am.handleFileEvent(path)
		}
		return nil
	})
}

// Lookup returns the index entry for a path relative to Root.
func (am *AssetManager) Lookup(rel string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[am.rel(rel)]
	return info, ok
}

// List returns the indexed paths of type t, sorted.
func (am *AssetManager) List(t AssetType) []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []string
	for p, info := range am.assets {
		if info.Type == t {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

func (am *AssetManager) rel(path string) string {
	if r, err := filepath.Rel(am.Root, path); err == nil && !strings.HasPrefix(r, "..") {
		return filepath.ToSlash(r)
	}
	return filepath.ToSlash(path)
}

// Watch starts watching Root and every sub-directory. Changes to indexed
// assets are posted to events as EVENT_CODE_ASSET_CHANGED.
func (am *AssetManager) Watch(events EventPoster) error {
	if am.fsnotify != nil {
		return errors.New("asset watcher already running")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = w
	am.done = make(chan struct{})
	am.stopped = make(chan struct{})

	if err := am.watchRecursive(am.Root); err != nil {
		w.Close()
		am.fsnotify = nil
		return err
	}
	go am.start(events)
	core.LogInfo("watching %s for asset changes", am.Root)
	return nil
}

// Close stops the watcher and the decode workers.
func (am *AssetManager) Close() {
	if am.isClosed {
		return
	}
	am.isClosed = true
	if am.Scenes.Jobs != nil {
		am.Scenes.Jobs.Shutdown()
	}
	if am.fsnotify != nil {
		close(am.done)
		<-am.stopped
	}
}

func (am *AssetManager) start(events EventPoster) {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handle(e, events)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handle(e fsnotify.Event, events EventPoster) {
	if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
		if e.Has(fsnotify.Create) {
			am.watchRecursive(e.Name)
		}
		return
	}

	switch {
	case e.Has(fsnotify.Create), e.Has(fsnotify.Write):
		if !am.handleFileEvent(e.Name) {
			return
		}
	case e.Has(fsnotify.Remove), e.Has(fsnotify.Rename):
		// A removed directory cannot be told apart from a file any more.
		am.fsnotify.Remove(e.Name)
		if !am.removeAsset(e.Name) {
			return
		}
	default:
		return
	}

	rel := am.rel(e.Name)
	core.LogDebug("asset changed: %s (%s)", rel, e.Op)
	events.Post(core.EventContext{
		Type: core.EVENT_CODE_ASSET_CHANGED,
		Data: core.AssetEvent{Path: rel},
	})
}

// watchRecursive adds every directory under path and indexes its files.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// handleFileEvent indexes path and reports whether it is a known asset.
func (am *AssetManager) handleFileEvent(path string) bool {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return false
	}
	info := AssetInfo{Path: am.rel(path), Type: assetType, Modified: time.Now()}
	if s, err := os.Stat(path); err == nil {
		info.Modified = s.ModTime()
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[info.Path] = info
	return true
}

func (am *AssetManager) removeAsset(path string) bool {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	rel := am.rel(path)
	_, ok := am.assets[rel]
	delete(am.assets, rel)
	return ok
}
