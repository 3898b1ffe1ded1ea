package profile

import (
	appErr "ojbox/pkg/errors"
)

// Override replaces selected fields of a built-in language, typically from YAML config.
type Override struct {
	CompileCmd string   `yaml:"compileCmd"`
	RunCmd     string   `yaml:"runCmd"`
	Env        []string `yaml:"env"`
}

// Registry resolves languages to their specs.
type Registry struct {
	languages map[Language]LanguageSpec
	order     []Language
}

// NewRegistry creates a registry from specs. Later specs with the same ID win.
func NewRegistry(specs []LanguageSpec) *Registry {
	r := &Registry{languages: make(map[Language]LanguageSpec, len(specs))}
	for _, spec := range specs {
		if spec.ID == "" {
			continue
		}
		if _, ok := r.languages[spec.ID]; !ok {
			r.order = append(r.order, spec.ID)
		}
		r.languages[spec.ID] = spec
	}
	return r
}

// NewDefaultRegistry builds the built-in table with overrides applied.
func NewDefaultRegistry(overrides map[string]Override) (*Registry, error) {
	specs := DefaultLanguages()
	for id, override := range overrides {
		idx := -1
		for i := range specs {
			if string(specs[i].ID) == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, appErr.New(appErr.LanguageNotSupported).WithMessagef("cannot override unknown language %q", id)
		}
		if override.CompileCmd != "" {
			specs[idx].CompileCmdTpl = override.CompileCmd
		}
		if override.RunCmd != "" {
			specs[idx].RunCommand = override.RunCmd
		}
		if len(override.Env) > 0 {
			specs[idx].Env = override.Env
		}
	}
	return NewRegistry(specs), nil
}

// Lookup returns the spec for a language.
func (r *Registry) Lookup(id Language) (LanguageSpec, error) {
	if id == "" {
		return LanguageSpec{}, appErr.ValidationError("language", "required")
	}
	spec, ok := r.languages[id]
	if !ok {
		return LanguageSpec{}, appErr.New(appErr.LanguageNotSupported).WithMessagef("language %q is not supported", id)
	}
	switch spec.Kind {
	case KindNative, KindJVM, KindScript:
		return spec, nil
	default:
		return LanguageSpec{}, appErr.New(appErr.LanguageNotSupported).WithMessagef("language %q has unknown kind %q", id, spec.Kind)
	}
}

// Languages lists registered languages in registration order.
func (r *Registry) Languages() []Language {
	out := make([]Language, len(r.order))
	copy(out, r.order)
	return out
}
