// Package scene holds the node hierarchy of a scene and flattens it into
// draw commands.
package scene

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/math"
	"github.com/spaghettifunk/anima-core/engine/renderer/metadata"
)

// NodeID indexes a node in its Graph.
type NodeID int32

// NoNode is the parent of a root.
const NoNode NodeID = -1

var ErrCycle = errors.New("scene: parent would create a cycle")

type Kind int

const (
	KindEmpty Kind = iota
	KindMesh
	KindSubscene
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindMesh:
		return "mesh"
	case KindSubscene:
		return "subscene"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is one entry of the arena. Parent is only used to find roots; a node
// is owned by the graph and listed in its parent's Children.
type Node struct {
	ID       core.Identifier
	Name     string
	Kind     Kind
	Parent   NodeID
	Children []NodeID
	Local    math.Mat4
	World    math.Mat4

	// Mesh is set for KindMesh and may be shared with other nodes.
	Mesh *metadata.MeshAsset
	// Subscene is set for KindSubscene.
	Subscene *Graph
}

// Graph is an arena of nodes addressed by NodeID. It is not safe for
// concurrent use.
type Graph struct {
	nodes  []Node
	byName map[string]NodeID
}

func NewGraph() *Graph {
	return &Graph{byName: make(map[string]NodeID)}
}

func (g *Graph) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// AddNode appends a node. A parent that does not name an existing node
// leaves the new node a root.
func (g *Graph) AddNode(name string, kind Kind, local math.Mat4, parent NodeID) NodeID {
	id := NodeID(len(g.nodes))
	if parent != NoNode && !g.valid(parent) {
		core.LogWarn("scene: node %q has unknown parent %d, treating it as a root", name, parent)
		parent = NoNode
	}
	g.nodes = append(g.nodes, Node{
		ID:     core.NewIdentifier(),
		Name:   name,
		Kind:   kind,
		Parent: parent,
		Local:  local,
		World:  local,
	})
	if g.valid(parent) {
		g.nodes[parent].Children = append(g.nodes[parent].Children, id)
	}
	if name != "" {
		if _, dup := g.byName[name]; !dup {
			g.byName[name] = id
		}
	}
	return id
}

func (g *Graph) AddMesh(name string, mesh *metadata.MeshAsset, local math.Mat4, parent NodeID) NodeID {
	id := g.AddNode(name, KindMesh, local, parent)
	g.nodes[id].Mesh = mesh
	return id
}

func (g *Graph) AddSubscene(name string, sub *Graph, local math.Mat4, parent NodeID) NodeID {
	id := g.AddNode(name, KindSubscene, local, parent)
	g.nodes[id].Subscene = sub
	return id
}

// Node returns the node with id, or nil.
func (g *Graph) Node(id NodeID) *Node {
	if !g.valid(id) {
		return nil
	}
	return &g.nodes[id]
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// FindByName returns the first node added with name.
func (g *Graph) FindByName(name string) (NodeID, bool) {
	id, ok := g.byName[name]
	return id, ok
}

// SetLocal replaces the local transform of id. Call RefreshTransforms or
// RefreshNode before the next traversal.
func (g *Graph) SetLocal(id NodeID, local math.Mat4) {
	if g.valid(id) {
		g.nodes[id].Local = local
	}
}

// SetParent moves id under parent, or makes it a root when parent is NoNode.
func (g *Graph) SetParent(id, parent NodeID) error {
	if !g.valid(id) {
		return fmt.Errorf("scene: no node %d", id)
	}
	if parent != NoNode && !g.valid(parent) {
		core.LogWarn("scene: unknown parent %d for node %d, making it a root", parent, id)
		parent = NoNode
	}
	if g.valid(parent) {
		for p := parent; g.valid(p); p = g.nodes[p].Parent {
			if p == id {
				return ErrCycle
			}
			if g.isRoot(p) {
				break
			}
		}
	}

	if old := g.nodes[id].Parent; g.valid(old) && old != id {
		children := g.nodes[old].Children
		for i, c := range children {
			if c == id {
				g.nodes[old].Children = append(children[:i], children[i+1:]...)
				break
			}
		}
	}
	g.nodes[id].Parent = parent
	if g.valid(parent) {
		g.nodes[parent].Children = append(g.nodes[parent].Children, id)
	}
	return nil
}

func (g *Graph) isRoot(id NodeID) bool {
	p := g.nodes[id].Parent
	return p == NoNode || !g.valid(p) || p == id
}

// Roots returns every node without a resolvable parent, in arena order.
func (g *Graph) Roots() []NodeID {
	var roots []NodeID
	for i := range g.nodes {
		if g.isRoot(NodeID(i)) {
			roots = append(roots, NodeID(i))
		}
	}
	return roots
}
