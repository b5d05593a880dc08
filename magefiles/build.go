//go:build mage

package main

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

var shaderStages = map[string]bool{".vert": true, ".frag": true, ".comp": true}

// Compiles every GLSL shader under assets/shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed binary.
func (Build) Testbed() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/anima", "."), withStream())
	return err
}

func buildShaders() error {
	return filepath.WalkDir(shaderDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !shaderStages[filepath.Ext(path)] {
			return nil
		}
		out := fmt.Sprintf("%s.spv", path)
		if _, err := executeCmd("glslc", withArgs(path, "-o", out), withStream()); err != nil {
			return err
		}
		return nil
	})
}
