package venv

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Environment is a Python virtual environment inside a checkout.
type Environment struct {
	// Root is the checkout the environment belongs to.
	Root string
	// Dir is the absolute environment directory.
	Dir string
}

// Locate returns the environment at dir inside root. A relative dir is
// resolved against root.
func Locate(root, dir string) Environment {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return Environment{Root: root, Dir: filepath.Clean(dir)}
}

// BinDir is the directory holding the environment's executables.
func (e Environment) BinDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.Dir, "Scripts")
	}
	return filepath.Join(e.Dir, "bin")
}

// Python is the environment's interpreter.
func (e Environment) Python() string {
	name := "python"
	if runtime.GOOS == "windows" {
		name = "python.exe"
	}
	return filepath.Join(e.BinDir(), name)
}

// Exists reports whether the environment has an interpreter.
func (e Environment) Exists() bool {
	info, err := os.Stat(e.Python())
	return err == nil && !info.IsDir()
}

// Activation is an environment variable set with the environment active.
// It only affects commands it is passed to; the launcher's own process
// environment is never modified.
type Activation struct {
	env    Environment
	base   []string
	vars   []string
	active bool
}

// Activate derives an activated variable set from base (usually
// os.Environ()): VIRTUAL_ENV points at the environment, its bin directory
// leads PATH and PYTHONHOME is removed. Pair it with a deferred Deactivate.
func (e Environment) Activate(base []string) *Activation {
	vars := make([]string, 0, len(base)+2)
	path := ""
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "PATH":
			path = value
		case "VIRTUAL_ENV", "PYTHONHOME":
		default:
			vars = append(vars, kv)
		}
	}

	newPath := e.BinDir()
	if path != "" {
		newPath += string(os.PathListSeparator) + path
	}
	vars = append(vars, "VIRTUAL_ENV="+e.Dir, "PATH="+newPath)

	return &Activation{
		env:    e,
		base:   append([]string(nil), base...),
		vars:   vars,
		active: true,
	}
}

// Env returns the variables for child processes. After Deactivate it
// returns the original base set.
func (a *Activation) Env() []string {
	if !a.active {
		return append([]string(nil), a.base...)
	}
	return append([]string(nil), a.vars...)
}

// Active reports whether Deactivate has not been called yet.
func (a *Activation) Active() bool {
	return a.active
}

// Environment returns the environment this activation belongs to.
func (a *Activation) Environment() Environment {
	return a.env
}

// Deactivate ends the activation. It is safe to call more than once.
func (a *Activation) Deactivate() {
	a.active = false
}

// Lookup returns the value of key in vars.
func Lookup(vars []string, key string) (string, bool) {
	for i := len(vars) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(vars[i], "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}
