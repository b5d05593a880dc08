package scene

import (
	"testing"

	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

const eps = 1e-5

func meshWith(surfaces int, pass materials.PassType) *metadata.MeshAsset {
	mat := &materials.Instance{Pass: pass}
	mesh := &metadata.MeshAsset{
		Name: "mesh",
		Buffers: &metadata.GPUMeshBuffers{
			IndexBuffer:         metadata.AllocatedBuffer{Handle: 1},
			VertexBuffer:        metadata.AllocatedBuffer{Handle: 2},
			VertexBufferAddress: 0x1000,
		},
	}
	for i := 0; i < surfaces; i++ {
		mesh.Surfaces = append(mesh.Surfaces, metadata.GeoSurface{
			StartIndex: uint32(i * 3),
			Count:      3,
			Material:   mat,
		})
	}
	return mesh
}

func TestThreeLevelChain(t *testing.T) {
	t1 := math.NewMat4Translation(math.NewVec3(1, 0, 0))
	t2 := math.NewMat4Scale(math.NewVec3(2, 2, 2))
	t3 := math.NewMat4Translation(math.NewVec3(0, 1, 0))

	g := NewGraph()
	n1 := g.AddNode("n1", KindEmpty, t1, NoNode)
	n2 := g.AddNode("n2", KindEmpty, t2, n1)
	n3 := g.AddNode("n3", KindEmpty, t3, n2)

	g.RefreshTransforms(math.NewMat4Identity())

	// T1 * T2 * T3 in column-vector terms.
	want := t3.Mul(t2).Mul(t1)
	if have := g.Node(n3).World; !have.Equal(want, eps) {
		t.Fatalf("have %v, want %v", have.Data, want.Data)
	}
	if have := g.Node(n3).World.Translation(); !have.Compare(math.NewVec3(1, 2, 0), eps) {
		t.Fatalf("have translation %+v, want (1,2,0)", have)
	}
}

func TestRefreshTransformsIsIdempotent(t *testing.T) {
	g := NewGraph()
	root := g.AddNode("root", KindEmpty, math.NewMat4Translation(math.NewVec3(0, 0, 5)), NoNode)
	child := g.AddNode("child", KindEmpty, math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), 0.5, true).ToMat4(), root)

	g.RefreshTransforms(math.NewMat4Identity())
	first := g.Node(child).World
	g.RefreshTransforms(math.NewMat4Identity())
	if !g.Node(child).World.Equal(first, 0) {
		t.Fatalf("second refresh changed the world transform")
	}
}

func TestTraverseTwoSurfaces(t *testing.T) {
	g := NewGraph()
	root := g.AddNode("root", KindEmpty, math.NewMat4Identity(), NoNode)
	g.AddMesh("child", meshWith(2, materials.PassOpaque), math.NewMat4Translation(math.NewVec3(1, 0, 0)), root)

	g.RefreshTransforms(math.NewMat4Identity())
	var ctx DrawContext
	g.Traverse(math.NewMat4Identity(), &ctx)

	if ctx.Len() != 2 {
		t.Fatalf("have %d commands, want 2", ctx.Len())
	}
	for i, cmd := range ctx.Opaque {
		if have := cmd.Transform.Translation(); !have.Compare(math.NewVec3(1, 0, 0), eps) {
			t.Fatalf("command %d: have translation %+v, want (1,0,0)", i, have)
		}
		if cmd.Material == nil || cmd.IndexCount != 3 || cmd.FirstIndex != uint32(i*3) {
			t.Fatalf("command %d: have %+v", i, cmd)
		}
		if cmd.VertexBufferAddress != 0x1000 || cmd.IndexBuffer != 1 {
			t.Fatalf("command %d: buffers not resolved: %+v", i, cmd)
		}
	}
}

func TestTraverseCompleteness(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		g := NewGraph()
		surfaces := 0
		for i := 0; i < 64; i++ {
			parent := NoNode
			if i > 0 && r.Intn(4) != 0 {
				parent = NodeID(r.Intn(i))
			}
			local := math.NewMat4Translation(math.NewVec3(r.Float32(), r.Float32(), r.Float32()))
			if r.Intn(2) == 0 {
				g.AddNode("", KindEmpty, local, parent)
				continue
			}
			n := 1 + r.Intn(4)
			pass := materials.PassOpaque
			if r.Intn(3) == 0 {
				pass = materials.PassTransparent
			}
			g.AddMesh("", meshWith(n, pass), local, parent)
			surfaces += n
		}

		g.RefreshTransforms(math.NewMat4Identity())
		var ctx DrawContext
		g.Traverse(math.NewMat4Identity(), &ctx)
		if ctx.Len() != surfaces {
			t.Fatalf("round %d: have %d commands, want %d", round, ctx.Len(), surfaces)
		}
		for _, cmd := range append(ctx.Opaque, ctx.Transparent...) {
			if cmd.Material == nil {
				t.Fatalf("round %d: command without material", round)
			}
		}
		for _, cmd := range ctx.Transparent {
			if cmd.Material.Pass != materials.PassTransparent {
				t.Fatalf("opaque command sorted as transparent")
			}
		}
	}
}

func TestTraverseSkipsMissingMaterial(t *testing.T) {
	g := NewGraph()
	mesh := meshWith(2, materials.PassOpaque)
	mesh.Surfaces[1].Material = nil
	g.AddMesh("m", mesh, math.NewMat4Identity(), NoNode)
	g.RefreshTransforms(math.NewMat4Identity())

	var ctx DrawContext
	g.Traverse(math.NewMat4Identity(), &ctx)
	if ctx.Len() != 1 {
		t.Fatalf("have %d commands, want 1", ctx.Len())
	}
}

func TestSubscene(t *testing.T) {
	sub := NewGraph()
	sub.AddMesh("inner", meshWith(1, materials.PassOpaque), math.NewMat4Translation(math.NewVec3(0, 0, 1)), NoNode)

	g := NewGraph()
	root := g.AddNode("root", KindEmpty, math.NewMat4Identity(), NoNode)
	g.AddSubscene("placed", sub, math.NewMat4Translation(math.NewVec3(1, 0, 0)), root)
	g.RefreshTransforms(math.NewMat4Identity())

	var ctx DrawContext
	g.Traverse(math.NewMat4Identity(), &ctx)
	if ctx.Len() != 1 {
		t.Fatalf("have %d commands, want 1", ctx.Len())
	}
	if have := ctx.Opaque[0].Transform.Translation(); !have.Compare(math.NewVec3(1, 0, 1), eps) {
		t.Fatalf("have translation %+v, want (1,0,1)", have)
	}
}

func TestSelfReferencingSubscene(t *testing.T) {
	g := NewGraph()
	g.AddMesh("m", meshWith(1, materials.PassOpaque), math.NewMat4Identity(), NoNode)
	g.AddSubscene("loop", g, math.NewMat4Identity(), NoNode)
	g.RefreshTransforms(math.NewMat4Identity())

	var ctx DrawContext
	g.Traverse(math.NewMat4Identity(), &ctx)
	if ctx.Len() != 1 {
		t.Fatalf("have %d commands, want 1", ctx.Len())
	}
}

func TestMalformedParentIsRoot(t *testing.T) {
	g := NewGraph()
	a := g.AddNode("a", KindEmpty, math.NewMat4Identity(), NoNode)
	b := g.AddNode("b", KindEmpty, math.NewMat4Identity(), 42)
	g.AddNode("c", KindEmpty, math.NewMat4Identity(), a)

	roots := g.Roots()
	if len(roots) != 2 || roots[0] != a || roots[1] != b {
		t.Fatalf("have roots %v, want [%d %d]", roots, a, b)
	}

	// A parent index that later becomes valid does not adopt the node.
	for i := 0; i < 50; i++ {
		g.AddNode("", KindEmpty, math.NewMat4Identity(), NoNode)
	}
	if g.Node(b).Parent != NoNode {
		t.Fatalf("have parent %d, want NoNode", g.Node(b).Parent)
	}
}

func TestSetParent(t *testing.T) {
	g := NewGraph()
	a := g.AddNode("a", KindEmpty, math.NewMat4Translation(math.NewVec3(1, 0, 0)), NoNode)
	b := g.AddNode("b", KindEmpty, math.NewMat4Identity(), a)
	c := g.AddNode("c", KindEmpty, math.NewMat4Identity(), NoNode)

	if err := g.SetParent(a, b); err != ErrCycle {
		t.Fatalf("have %v, want ErrCycle", err)
	}
	if err := g.SetParent(b, c); err != nil {
		t.Fatal(err)
	}
	if len(g.Node(a).Children) != 0 || len(g.Node(c).Children) != 1 {
		t.Fatalf("children not moved: a=%v c=%v", g.Node(a).Children, g.Node(c).Children)
	}
	g.RefreshTransforms(math.NewMat4Identity())
	if have := g.Node(b).World.Translation(); !have.Compare(math.NewVec3Zero(), eps) {
		t.Fatalf("have translation %+v after reparent, want zero", have)
	}
	if id, ok := g.FindByName("c"); !ok || id != c {
		t.Fatalf("have %d %v, want %d", id, ok, c)
	}
}
