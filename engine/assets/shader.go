package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/naga"

	"github.com/spaghettifunk/anima-core/engine/core"
)

const spirvMagic = 0x07230203

var (
	ErrUnsupportedShader = errors.New("unsupported shader source")
	ErrInvalidSPIRV      = errors.New("invalid SPIR-V")
)

// ShaderLoader resolves shader paths below Root. Precompiled .spv files are
// read as little-endian words; .wgsl sources are compiled with naga.
type ShaderLoader struct {
	Root string
}

func NewShaderLoader(root string) *ShaderLoader {
	return &ShaderLoader{Root: root}
}

func resolve(root, path string) string {
	if root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// Load returns the SPIR-V words of the shader at path.
func (sl *ShaderLoader) Load(path string) ([]uint32, error) {
	full := resolve(sl.Root, path)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(full) {
	case ".spv":
		return decodeSPIRV(data)
	case ".wgsl":
		core.LogDebug("compiling WGSL shader %s", full)
		spirv, err := naga.Compile(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", full, err)
		}
		return decodeSPIRV(spirv)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedShader, full)
}

func decodeSPIRV(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d is not a multiple of 4", ErrInvalidSPIRV, len(b))
	}
	words := bytesToBytecode(b)
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteIndex := i * 4
		byteCode[i] = uint32(b[byteIndex]) |
			uint32(b[byteIndex+1])<<8 |
			uint32(b[byteIndex+2])<<16 |
			uint32(b[byteIndex+3])<<24
	}
	return byteCode
}
