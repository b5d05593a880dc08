package assets

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/driver"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-core/engine/scene"
)

var ErrSceneFormat = errors.New("malformed scene file")

// SceneFile is the TOML description of a scene.
type SceneFile struct {
	Name      string         `toml:"name"`
	Materials []MaterialDesc `toml:"materials"`
	Meshes    []MeshDesc     `toml:"meshes"`
	Nodes     []NodeDesc     `toml:"nodes"`
}

type MaterialDesc struct {
	Name              string     `toml:"name"`
	Pass              string     `toml:"pass"`
	ColorTexture      string     `toml:"color_texture"`
	MetalRoughTexture string     `toml:"metal_rough_texture"`
	ColorFactors      [4]float32 `toml:"color_factors"`
	MetalRoughFactors [4]float32 `toml:"metal_rough_factors"`
	// Nearest selects point sampling for both textures.
	Nearest bool `toml:"nearest"`
}

type VertexDesc struct {
	Position [3]float32 `toml:"position"`
	Normal   [3]float32 `toml:"normal"`
	UV       [2]float32 `toml:"uv"`
	Color    [4]float32 `toml:"color"`
}

type SurfaceDesc struct {
	Start    uint32 `toml:"start"`
	Count    uint32 `toml:"count"`
	Material string `toml:"material"`
}

type MeshDesc struct {
	Name     string        `toml:"name"`
	Vertices []VertexDesc  `toml:"vertices"`
	Indices  []uint32      `toml:"indices"`
	Surfaces []SurfaceDesc `toml:"surfaces"`
	// GenerateNormals replaces the listed normals with computed ones.
	GenerateNormals bool `toml:"generate_normals"`
}

type NodeDesc struct {
	Name        string      `toml:"name"`
	Parent      string      `toml:"parent"`
	Mesh        string      `toml:"mesh"`
	Translation [3]float32  `toml:"translation"`
	Rotation    *[4]float32 `toml:"rotation"`
	Scale       *[3]float32 `toml:"scale"`
}

// ParseScene decodes a scene description. Unknown keys are rejected so
// typos do not silently drop data.
func ParseScene(data []byte) (*SceneFile, error) {
	var file SceneFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %s", ErrSceneFormat, row, col, derr.Error())
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("%w: unknown keys:\n%s", ErrSceneFormat, serr.String())
		}
		return nil, fmt.Errorf("%w: %v", ErrSceneFormat, err)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *SceneFile) validate() error {
	materials := make(map[string]bool, len(f.Materials))
	for _, m := range f.Materials {
		if m.Name == "" {
			return fmt.Errorf("%w: material without a name", ErrSceneFormat)
		}
		materials[m.Name] = true
	}
	meshes := make(map[string]bool, len(f.Meshes))
	for _, m := range f.Meshes {
		if m.Name == "" {
			return fmt.Errorf("%w: mesh without a name", ErrSceneFormat)
		}
		meshes[m.Name] = true
		for _, idx := range m.Indices {
			if int(idx) >= len(m.Vertices) {
				return fmt.Errorf("%w: mesh %s index %d out of range", ErrSceneFormat, m.Name, idx)
			}
		}
		for _, s := range m.Surfaces {
			if uint64(s.Start)+uint64(s.Count) > uint64(len(m.Indices)) {
				return fmt.Errorf("%w: mesh %s surface [%d,+%d) past %d indices", ErrSceneFormat, m.Name, s.Start, s.Count, len(m.Indices))
			}
			if s.Material != "" && !materials[s.Material] {
				return fmt.Errorf("%w: mesh %s uses unknown material %s", ErrSceneFormat, m.Name, s.Material)
			}
		}
	}
	nodes := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.Name == "" {
			return fmt.Errorf("%w: node without a name", ErrSceneFormat)
		}
		if nodes[n.Name] {
			return fmt.Errorf("%w: duplicate node %s", ErrSceneFormat, n.Name)
		}
		nodes[n.Name] = true
		if n.Mesh != "" && !meshes[n.Mesh] {
			return fmt.Errorf("%w: node %s uses unknown mesh %s", ErrSceneFormat, n.Name, n.Mesh)
		}
	}
	return nil
}

// Local builds the node's local matrix from scale, rotation and
// translation.
func (n NodeDesc) Local() math.Mat4 {
	t := math.TransformFromPosition(math.NewVec3(n.Translation[0], n.Translation[1], n.Translation[2]))
	if n.Rotation != nil {
		r := n.Rotation
		t.SetRotation(math.Quaternion{X: r[0], Y: r[1], Z: r[2], W: r[3]}.Normalize())
	}
	if n.Scale != nil {
		t.SetScale(math.NewVec3(n.Scale[0], n.Scale[1], n.Scale[2]))
	}
	return t.Local()
}

func (m MeshDesc) vertices() []metadata.Vertex {
	out := make([]metadata.Vertex, len(m.Vertices))
	for i, v := range m.Vertices {
		color := math.NewVec4(v.Color[0], v.Color[1], v.Color[2], v.Color[3])
		if v.Color == [4]float32{} {
			color = math.NewVec4One()
		}
		out[i] = metadata.Vertex{
			Position: math.NewVec3(v.Position[0], v.Position[1], v.Position[2]),
			Normal:   math.NewVec3(v.Normal[0], v.Normal[1], v.Normal[2]),
			UVX:      v.UV[0],
			UVY:      v.UV[1],
			Color:    color,
		}
	}
	if m.GenerateNormals {
		for i := range out {
			out[i].Normal = math.NewVec3Zero()
		}
		metadata.GenerateNormals(out, m.Indices)
	}
	return out
}

// SceneUploader is the renderer side of scene loading.
type SceneUploader interface {
	UploadMeshData(indices []uint32, vertices []metadata.Vertex) (*metadata.GPUMeshBuffers, error)
	UploadImageData(pixels []byte, extent driver.Extent3D, format driver.Format, mipmapped bool) (*metadata.AllocatedImage, error)
	CreateUniformBuffer(data []byte) (*metadata.AllocatedBuffer, error)
	WriteMaterial(pass materials.PassType, res materials.Resources) (*materials.Instance, error)
	DefaultResources() materials.Resources
	DefaultMaterial() *materials.Instance
	Sampler(filter driver.Filter) driver.Sampler
}

// LoadedScene owns everything uploaded for one scene file.
type LoadedScene struct {
	Name      string
	Graph     *scene.Graph
	Meshes    map[string]*metadata.MeshAsset
	Materials map[string]*materials.Instance
	Images    []*metadata.AllocatedImage
	Buffers   []*metadata.AllocatedBuffer
}

func emptyScene() *LoadedScene {
	return &LoadedScene{
		Graph:     scene.NewGraph(),
		Meshes:    make(map[string]*metadata.MeshAsset),
		Materials: make(map[string]*materials.Instance),
	}
}

// SceneReleaser queues GPU resources for deferred destruction.
type SceneReleaser interface {
	ReleaseMesh(mesh *metadata.GPUMeshBuffers)
	ReleaseImage(img *metadata.AllocatedImage)
	ReleaseBuffer(buf *metadata.AllocatedBuffer)
}

// Release hands every uploaded resource back to r.
func (s *LoadedScene) Release(r SceneReleaser) {
	for _, m := range s.Meshes {
		r.ReleaseMesh(m.Buffers)
	}
	for _, img := range s.Images {
		r.ReleaseImage(img)
	}
	for _, b := range s.Buffers {
		r.ReleaseBuffer(b)
	}
	s.Meshes = map[string]*metadata.MeshAsset{}
	s.Images = nil
	s.Buffers = nil
}

type SceneLoader struct {
	Root   string
	Images *ImageLoader
	// Jobs decodes textures in parallel. Textures are decoded inline when
	// nil.
	Jobs *JobSystem
}

func NewSceneLoader(root string) *SceneLoader {
	return &SceneLoader{Root: root, Images: &ImageLoader{Root: root}}
}

type decodedImage struct {
	data *ImageData
	err  error
}

// textureSet holds the textures of one scene build. Each path is decoded
// and uploaded once however many materials use it.
type textureSet struct {
	decoded map[string]decodedImage
	views   map[string]driver.ImageView
}

func (sl *SceneLoader) decodeTextures(file *SceneFile) *textureSet {
	set := &textureSet{
		decoded: make(map[string]decodedImage),
		views:   make(map[string]driver.ImageView),
	}
	var paths []string
	for _, m := range file.Materials {
		for _, p := range []string{m.ColorTexture, m.MetalRoughTexture} {
			if _, ok := set.decoded[p]; p != "" && !ok {
				set.decoded[p] = decodedImage{}
				paths = append(paths, p)
			}
		}
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	store := func(path string, img *ImageData, err error) {
		mu.Lock()
		set.decoded[path] = decodedImage{data: img, err: err}
		mu.Unlock()
	}
	for _, path := range paths {
		if sl.Jobs == nil {
			img, err := sl.Images.Load(path)
			store(path, img, err)
			continue
		}
		var img *ImageData
		wg.Add(1)
		err := sl.Jobs.Submit(Job{
			Run: func() (err error) {
				img, err = sl.Images.Load(path)
				return err
			},
			OnComplete: func() {
				store(path, img, nil)
				wg.Done()
			},
			OnFailure: func(err error) {
				store(path, nil, err)
				wg.Done()
			},
		})
		if err != nil {
			wg.Done()
			img, err := sl.Images.Load(path)
			store(path, img, err)
		}
	}
	wg.Wait()
	return set
}

// LoadFile parses and uploads the scene at path. On failure it returns an
// empty scene together with the error.
func (sl *SceneLoader) LoadFile(path string, up SceneUploader) (*LoadedScene, error) {
	data, err := os.ReadFile(resolve(sl.Root, path))
	if err != nil {
		return emptyScene(), err
	}
	file, err := ParseScene(data)
	if err != nil {
		return emptyScene(), fmt.Errorf("%s: %w", path, err)
	}
	return sl.Build(file, up)
}

// Build uploads the meshes, textures and materials of file and links the
// nodes into a graph. Missing textures fall back to the error texture.
func (sl *SceneLoader) Build(file *SceneFile, up SceneUploader) (*LoadedScene, error) {
	out := emptyScene()
	out.Name = file.Name

	textures := sl.decodeTextures(file)
	for _, desc := range file.Materials {
		inst, err := sl.buildMaterial(desc, up, out, textures)
		if errors.Is(err, materials.ErrInvalidMaterialPass) {
			// Surfaces using it are left without a material and skipped.
			core.LogWarn("scene %s: %v", file.Name, err)
			continue
		}
		if err != nil {
			return out, err
		}
		out.Materials[desc.Name] = inst
	}

	for _, desc := range file.Meshes {
		mesh := &metadata.MeshAsset{
			ID:   core.NewIdentifier(),
			Name: desc.Name,
		}
		if len(desc.Indices) > 0 {
			buffers, err := up.UploadMeshData(desc.Indices, desc.vertices())
			if err != nil {
				return out, fmt.Errorf("mesh %s: %w", desc.Name, err)
			}
			mesh.Buffers = buffers
		}
		surfaces := desc.Surfaces
		if len(surfaces) == 0 {
			surfaces = []SurfaceDesc{{Count: uint32(len(desc.Indices))}}
		}
		for _, s := range surfaces {
			mat := up.DefaultMaterial()
			if s.Material != "" {
				mat = out.Materials[s.Material]
			}
			mesh.Surfaces = append(mesh.Surfaces, metadata.GeoSurface{
				StartIndex: s.Start,
				Count:      s.Count,
				Material:   mat,
			})
		}
		out.Meshes[desc.Name] = mesh
	}

	ids := make(map[string]scene.NodeID, len(file.Nodes))
	for _, desc := range file.Nodes {
		if desc.Mesh != "" {
			ids[desc.Name] = out.Graph.AddMesh(desc.Name, out.Meshes[desc.Mesh], desc.Local(), scene.NoNode)
		} else {
			ids[desc.Name] = out.Graph.AddNode(desc.Name, scene.KindEmpty, desc.Local(), scene.NoNode)
		}
	}
	// Parents are linked once every node exists so files may list children
	// first.
	for _, desc := range file.Nodes {
		if desc.Parent == "" {
			continue
		}
		parent, ok := ids[desc.Parent]
		if !ok {
			core.LogWarn("node %s has unknown parent %s, keeping it as a root", desc.Name, desc.Parent)
			continue
		}
		if err := out.Graph.SetParent(ids[desc.Name], parent); err != nil {
			core.LogWarn("node %s: %s", desc.Name, err)
		}
	}
	out.Graph.RefreshTransforms(math.NewMat4Identity())

	core.LogInfo("scene %q loaded: %d meshes, %d materials, %d nodes", file.Name, len(out.Meshes), len(out.Materials), out.Graph.Len())
	return out, nil
}

func (sl *SceneLoader) texture(path string, up SceneUploader, out *LoadedScene, set *textureSet) (driver.ImageView, bool) {
	if path == "" {
		return 0, false
	}
	if view, ok := set.views[path]; ok {
		return view, true
	}
	dec, ok := set.decoded[path]
	if !ok || dec.err != nil {
		core.LogWarn("texture %s unavailable, using the error texture: %v", path, dec.err)
		return 0, false
	}
	img := dec.data
	gpu, err := up.UploadImageData(img.Pixels, img.Extent(), img.Format(), false)
	if err != nil {
		core.LogWarn("texture %s upload failed, using the error texture: %s", path, err)
		return 0, false
	}
	out.Images = append(out.Images, gpu)
	set.views[path] = gpu.View
	return gpu.View, true
}

func (sl *SceneLoader) buildMaterial(desc MaterialDesc, up SceneUploader, out *LoadedScene, textures *textureSet) (*materials.Instance, error) {
	res := up.DefaultResources()

	filter := driver.FilterLinear
	if desc.Nearest {
		filter = driver.FilterNearest
	}
	if view, ok := sl.texture(desc.ColorTexture, up, out, textures); ok {
		res.ColorImage = view
		res.ColorSampler = up.Sampler(filter)
	}
	if view, ok := sl.texture(desc.MetalRoughTexture, up, out, textures); ok {
		res.MetalRoughImage = view
		res.MetalRoughSampler = up.Sampler(filter)
	}

	constants := materials.Constants{
		ColorFactors:      vec4(desc.ColorFactors, math.NewVec4One()),
		MetalRoughFactors: vec4(desc.MetalRoughFactors, math.NewVec4(1, 0.5, 0, 0)),
	}
	buf, err := up.CreateUniformBuffer(constants.Bytes())
	if err != nil {
		return nil, fmt.Errorf("material %s: %w", desc.Name, err)
	}
	out.Buffers = append(out.Buffers, buf)
	res.DataBuffer = buf.Handle
	res.DataBufferOffset = 0

	inst, err := up.WriteMaterial(materials.ParsePass(desc.Pass), res)
	if err != nil {
		return nil, fmt.Errorf("material %s: %w", desc.Name, err)
	}
	inst.Name = desc.Name
	return inst, nil
}

// vec4 returns def when v was left out of the file.
func vec4(v [4]float32, def math.Vec4) math.Vec4 {
	if v == [4]float32{} {
		return def
	}
	return math.NewVec4(v[0], v[1], v[2], v[3])
}
