package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yasgmp/gmpauthz/internal/models"
)

// Definition describes a permission code known to the application.
type Definition struct {
	Code        string
	Name        string
	Module      string
	Description string
}

type registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

var globalRegistry = &registry{
	defs: make(map[string]*Definition),
}

var (
	errNilDefinition = errors.New("permission: nil definition")
	errEmptyCode     = errors.New("permission: code is required")
	errDuplicateCode = errors.New("permission: already registered")
	errMalformedCode = errors.New("permission: code must look like module.action")
)

// Register adds a definition to the global registry. Codes are lower-cased.
func Register(def *Definition) error {
	if def == nil {
		return errNilDefinition
	}

	code := models.NormalizeCode(def.Code)
	if code == "" {
		return errEmptyCode
	}
	if !strings.Contains(code, ".") {
		return fmt.Errorf("%w: %s", errMalformedCode, code)
	}

	cp := *def
	cp.Code = code
	cp.Module = strings.TrimSpace(cp.Module)
	if cp.Module == "" {
		cp.Module = code[:strings.Index(code, ".")]
	}

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.defs[code]; exists {
		return fmt.Errorf("%w: %s", errDuplicateCode, code)
	}
	globalRegistry.defs[code] = &cp
	return nil
}

// MustRegister registers every definition and panics on the first error.
func MustRegister(defs ...*Definition) {
	for _, def := range defs {
		if err := Register(def); err != nil {
			panic(err)
		}
	}
}

// All returns copies of every registered definition ordered by code.
func All() []Definition {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	out := make([]Definition, 0, len(globalRegistry.defs))
	for _, def := range globalRegistry.defs {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ByModule returns the definitions registered for module ordered by code.
func ByModule(module string) []Definition {
	module = strings.TrimSpace(module)
	var out []Definition
	for _, def := range All() {
		if def.Module == module {
			out = append(out, def)
		}
	}
	return out
}

// reset clears registry entries. Intended for testing only.
func reset() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.defs = make(map[string]*Definition)
}
