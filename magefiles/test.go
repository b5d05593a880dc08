//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests of every package.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs the tests that need neither a GPU nor a window, without cgo.
func (Test) Core() error {
	_, err := executeCmd("go", withArgs("test", "./core/...", "./containers/...", "./math/...", "./scene/...", "./assets/...", "./renderer", "./renderer/deletion/...", "./renderer/descriptors/...", "./renderer/driver/...", "./renderer/frame/...", "./renderer/materials/...", "./renderer/metadata/...", "./renderer/components/..."), withDir("engine"), withEnv("CGO_ENABLED=0"), withStream())
	return err
}
