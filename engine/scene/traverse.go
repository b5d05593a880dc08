package scene

import (
	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

// DrawContext collects the draw commands of one frame by material pass.
type DrawContext struct {
	Opaque      []metadata.DrawCommand
	Transparent []metadata.DrawCommand
}

func (c *DrawContext) Len() int {
	return len(c.Opaque) + len(c.Transparent)
}

// Reset empties the context and keeps its storage.
func (c *DrawContext) Reset() {
	c.Opaque = c.Opaque[:0]
	c.Transparent = c.Transparent[:0]
}

func (c *DrawContext) add(cmd metadata.DrawCommand) {
	if cmd.Material.Pass == materials.PassTransparent {
		c.Transparent = append(c.Transparent, cmd)
		return
	}
	c.Opaque = append(c.Opaque, cmd)
}

// Traverse walks every root depth first and appends one command per mesh
// surface, transformed by top. World transforms must be fresh.
func (g *Graph) Traverse(top math.Mat4, out *DrawContext) {
	g.traverseRoots(top, out, map[*Graph]bool{})
}

// TraverseNode walks the subtree rooted at id.
func (g *Graph) TraverseNode(id NodeID, top math.Mat4, out *DrawContext) {
	if g.valid(id) {
		g.traverse(id, top, out, map[*Graph]bool{g: true})
	}
}

func (g *Graph) traverseRoots(top math.Mat4, out *DrawContext, active map[*Graph]bool) {
	active[g] = true
	for _, root := range g.Roots() {
		g.traverse(root, top, out, active)
	}
	delete(active, g)
}

func (g *Graph) traverse(id NodeID, top math.Mat4, out *DrawContext, active map[*Graph]bool) {
	n := &g.nodes[id]
	world := n.World.Then(top)

	switch n.Kind {
	case KindMesh:
		if n.Mesh != nil {
			emitMesh(n.Mesh, world, out)
		}
	case KindSubscene:
		if n.Subscene != nil {
			if active[n.Subscene] {
				core.LogWarn("scene: node %q references a subscene already being drawn", n.Name)
			} else {
				n.Subscene.traverseRoots(world, out, active)
			}
		}
	}

	for _, child := range n.Children {
		if child != id {
			g.traverse(child, top, out, active)
		}
	}
}

func emitMesh(mesh *metadata.MeshAsset, world math.Mat4, out *DrawContext) {
	cmd := metadata.DrawCommand{Transform: world}
	if b := mesh.Buffers; b != nil {
		cmd.IndexBuffer = b.IndexBuffer.Handle
		cmd.VertexBuffer = b.VertexBuffer.Handle
		cmd.VertexBufferAddress = b.VertexBufferAddress
	}
	for _, s := range mesh.Surfaces {
		// Surfaces whose material failed to build are not drawn.
		if s.Material == nil {
			continue
		}
		cmd.IndexCount = s.Count
		cmd.FirstIndex = s.StartIndex
		cmd.Material = s.Material
		out.add(cmd)
	}
}
