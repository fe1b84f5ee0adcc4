package methodology

import (
	"sync"

	"github.com/formdesk/flowengine/internal/domain/template"
)

// Registry maps methodology identifiers to their adapters. An unknown
// methodology is a configuration gap, not an error: adaptation becomes a
// logged no-op so template authoring is never blocked.
type Registry struct {
	mu       sync.RWMutex
	adapters map[template.Methodology]Adapter
	logger   Logger
}

// NewRegistry creates a registry with the built-in funder adapters registered
func NewRegistry(logger Logger) *Registry {
	r := &Registry{
		adapters: make(map[template.Methodology]Adapter),
		logger:   logger,
	}

	r.Register(NewUSAIDAdapter())
	r.Register(NewEUECHOAdapter())
	r.Register(NewWorldBankAdapter())

	return r
}

// Register adds or replaces an adapter
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Methodology()] = a
}

// Adapter returns the adapter for a methodology, or nil
func (r *Registry) Adapter(m template.Methodology) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[m]
}

// Adapt applies the template's methodology adapter to the draft and returns
// it. Templates without a methodology, or with an unknown one, are returned
// unchanged.
func (r *Registry) Adapt(tpl *template.Template) *template.Template {
	if tpl.Methodology == template.MethodologyNone {
		return tpl
	}

	adapter := r.Adapter(tpl.Methodology)
	if adapter == nil {
		r.logger.Warn("No adapter registered for methodology, template left unchanged",
			"methodology", tpl.Methodology,
			"template_id", tpl.ID,
		)
		return tpl
	}

	adapter.Adapt(tpl)

	r.logger.Info("Template adapted for methodology",
		"methodology", tpl.Methodology,
		"template_id", tpl.ID,
		"compliance_level", tpl.ComplianceLevel,
	)
	return tpl
}

// Requirements returns the requirement list for a methodology, or nil for an
// unknown one
func (r *Registry) Requirements(m template.Methodology) []Requirement {
	adapter := r.Adapter(m)
	if adapter == nil {
		r.logger.Warn("Requirements requested for unknown methodology", "methodology", m)
		return nil
	}
	return adapter.Requirements()
}

// ComplianceConfig returns the structured config for a methodology
func (r *Registry) ComplianceConfig(m template.Methodology) (ComplianceConfig, bool) {
	adapter := r.Adapter(m)
	if adapter == nil {
		return ComplianceConfig{}, false
	}
	return adapter.ComplianceConfig(), true
}
