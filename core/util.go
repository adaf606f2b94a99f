package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
)

// CleanString trims the whitespace around s, lowering it when asked to.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) == 0 || !lower[0] {
		return s
	}
	return strings.ToLower(s)
}

// ProjectRoot returns the closest directory holding a go.mod file, starting from the working directory.
// Tests run from their package directory, hence the walk up.
// A deployed binary has no go.mod around it and gets its working directory.
func ProjectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	for dir := wd; ; {
		if fi, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd
		}
		dir = parent
	}
}
