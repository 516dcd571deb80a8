// Package project locates the firmware project a run operates on.
package project

import (
	"os"
	"os/exec"
	"path/filepath"
)

// Markers that identify a project root.
const (
	StateDir     = ".simmatrix"
	Makefile     = "Makefile"
	DocumentName = "configurations.json"
)

// Project holds information about a detected firmware project.
type Project struct {
	Root        string // Absolute path to the project root
	Initialized bool   // Whether .simmatrix/ exists
}

// Health tracks which prerequisites of a run are present.
type Health struct {
	MakeAvailable   bool // make resolves on PATH
	MakefilePresent bool // Makefile exists at the root
	DocumentPresent bool // configuration document exists
}

// Problems lists the missing prerequisites in readable form.
func (h Health) Problems() []string {
	var p []string
	if !h.MakeAvailable {
		p = append(p, "make not found on PATH")
	}
	if !h.MakefilePresent {
		p = append(p, "no Makefile at project root")
	}
	if !h.DocumentPresent {
		p = append(p, "configuration document not found")
	}
	return p
}

// Detect walks up from startDir looking for a .simmatrix/ directory.
// Falls back to the nearest directory holding both a Makefile and a
// configurations.json.
func Detect(startDir string) *Project {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil
	}

	var candidate string

	for {
		if info, err := os.Stat(filepath.Join(dir, StateDir)); err == nil && info.IsDir() {
			return &Project{Root: dir, Initialized: true}
		}

		// Record the first Makefile+document pair, but keep walking
		if candidate == "" && exists(filepath.Join(dir, Makefile)) && exists(filepath.Join(dir, DocumentName)) {
			candidate = dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}

	if candidate != "" {
		return &Project{Root: candidate}
	}
	return nil
}

// StatePath joins elem under the project's .simmatrix directory.
func (p *Project) StatePath(elem ...string) string {
	return filepath.Join(append([]string{p.Root, StateDir}, elem...)...)
}

// CheckHealth reports which prerequisites are in place. makeBin and
// document may be relative to the project root.
func (p *Project) CheckHealth(makeBin, document string) Health {
	var h Health
	if makeBin == "" {
		makeBin = "make"
	}
	if _, err := exec.LookPath(makeBin); err == nil {
		h.MakeAvailable = true
	}
	h.MakefilePresent = exists(filepath.Join(p.Root, Makefile))
	if !filepath.IsAbs(document) {
		document = filepath.Join(p.Root, document)
	}
	h.DocumentPresent = exists(document)
	return h
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
