package metadata

import (
	"github.com/spaghettifunk/anima-core/engine/core"
	"github.com/spaghettifunk/anima-core/engine/renderer/materials"
)

/** @brief A contiguous index range of a mesh drawn with one material. */
type GeoSurface struct {
	StartIndex uint32
	Count      uint32
	Material   *materials.Instance
}

/**
 * @brief A mesh uploaded to the GPU. Several scene nodes may share one
 * MeshAsset; it is released once, by whoever loaded it.
 */
type MeshAsset struct {
	ID       core.Identifier
	Name     string
	Surfaces []GeoSurface
	Buffers  *GPUMeshBuffers
}
