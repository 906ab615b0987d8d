package engine

import "github.com/conneroisu/tessera/internal/compiler"

// TemplateInfo describes one registered template for listings.
type TemplateInfo struct {
	Name     string            `json:"name" yaml:"name"`
	Path     string            `json:"path,omitempty" yaml:"path,omitempty"`
	Slots    []string          `json:"slots" yaml:"slots"`
	CatchAll bool              `json:"catch_all" yaml:"catch_all"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Calls    []string          `json:"calls,omitempty" yaml:"calls,omitempty"`
	UsedBy   []string          `json:"used_by,omitempty" yaml:"used_by,omitempty"`
}

// Templates describes every registered template in name order, against one
// consistent compile pass.
func (e *Engine) Templates() []TemplateInfo {
	snap := e.registry.Snapshot()
	names := snap.Names()
	infos := make([]TemplateInfo, 0, len(names))
	for _, name := range names {
		t, ok := snap.Template(name)
		if !ok {
			continue
		}
		infos = append(infos, TemplateInfo{
			Name:     t.Name,
			Path:     t.Path,
			Slots:    t.Document.SlotNames(),
			CatchAll: t.Document.CatchAll,
			Metadata: t.Metadata(),
			Calls:    snap.Calls(t),
			UsedBy:   snap.Dependents(name),
		})
	}
	return infos
}

// Cycles returns the call cycles among registered templates. Cycles are
// legal but only terminate when a condition stops the recursion.
func (e *Engine) Cycles() [][]string {
	return e.registry.Snapshot().Cycles()
}

// Program returns the compiled instruction listing of the named template.
func (e *Engine) Program(name string) (compiler.Program, bool) {
	return e.registry.Snapshot().Program(name)
}
