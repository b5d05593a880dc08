package scene

import "github.com/spaghettifunk/anima-core/engine/math"

// RefreshTransforms recomputes the world transform of every node, parents
// before children, starting from rootWorld. Subscenes are refreshed from
// identity since their nodes are placed by the referencing node at
// traversal time.
func (g *Graph) RefreshTransforms(rootWorld math.Mat4) {
	g.refreshAll(rootWorld, map[*Graph]bool{})
}

func (g *Graph) refreshAll(rootWorld math.Mat4, seen map[*Graph]bool) {
	seen[g] = true
	for _, root := range g.Roots() {
		g.refresh(root, rootWorld)
	}
	for i := range g.nodes {
		sub := g.nodes[i].Subscene
		if sub != nil && !seen[sub] {
			sub.refreshAll(math.NewMat4Identity(), seen)
		}
	}
}

// RefreshNode recomputes the subtree rooted at id under parentWorld.
func (g *Graph) RefreshNode(id NodeID, parentWorld math.Mat4) {
	if g.valid(id) {
		g.refresh(id, parentWorld)
	}
}

func (g *Graph) refresh(id NodeID, parentWorld math.Mat4) {
	n := &g.nodes[id]
	n.World = n.Local.Then(parentWorld)
	world := n.World
	for _, child := range n.Children {
		if child != id {
			g.refresh(child, world)
		}
	}
}
