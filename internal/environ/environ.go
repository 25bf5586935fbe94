// Package environ implements the shell's environment table: a string-keyed
// mapping with a per-variable exported flag and an envp export operation
// (spec §6, "Environment contract consumed from the external environment
// component"). It mirrors the shape of the teacher's expand.Environ /
// WriteEnviron split but collapses it to the single map-backed
// implementation the core actually needs, since parameter expansion here
// deals in plain strings rather than a parsed syntax.ParamExp tree.
package environ

import (
	"os"
	"sort"
)

// Var is one environment entry: its value and whether it is marked for
// export to child processes.
type Var struct {
	Value    string
	Exported bool
}

// Environ is the mutable environment table the expansion and executor
// packages consult (spec §6).
type Environ struct {
	vars map[string]Var
}

// New returns an environment seeded from the process's own environment
// block, with every inherited variable marked exported.
func New() *Environ {
	e := &Environ{vars: make(map[string]Var)}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				e.vars[kv[:i]] = Var{Value: kv[i+1:], Exported: true}
				break
			}
		}
	}
	return e
}

// Get retrieves a variable by name. The zero Var and ok=false are returned
// if it is unset.
func (e *Environ) Get(name string) (Var, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Set assigns name to value. If exported is true, or the variable was
// already exported, the process environment block is updated immediately so
// forked children inherit it without the executor having to rebuild envp
// itself (spec §6: "setting an exported variable also updates the process
// environment block").
func (e *Environ) Set(name, value string, exported bool) {
	if e.vars == nil {
		e.vars = make(map[string]Var)
	}
	prev, existed := e.vars[name]
	if existed && prev.Exported {
		exported = true
	}
	e.vars[name] = Var{Value: value, Exported: exported}
	if exported {
		os.Setenv(name, value)
	}
}

// Unset removes name entirely.
func (e *Environ) Unset(name string) {
	delete(e.vars, name)
	os.Unsetenv(name)
}

// Export marks an already-set variable as exported, pushing its current
// value into the process environment block. A no-op if name is unset.
func (e *Environ) Export(name string) {
	v, ok := e.vars[name]
	if !ok {
		return
	}
	v.Exported = true
	e.vars[name] = v
	os.Setenv(name, v.Value)
}

// BuildEnvp returns the "KEY=VALUE" slice of every exported variable, in
// sorted order for deterministic child environments.
func (e *Environ) BuildEnvp() []string {
	names := make([]string, 0, len(e.vars))
	for name, v := range e.vars {
		if v.Exported {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	envp := make([]string, len(names))
	for i, name := range names {
		envp[i] = name + "=" + e.vars[name].Value
	}
	return envp
}
