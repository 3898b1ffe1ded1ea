package compiler

import (
	"strings"

	appErr "ojbox/pkg/errors"

	"github.com/google/shlex"
)

// templateVars holds the substitutions for a compile command template.
type templateVars struct {
	Src        string
	Out        string
	OutDir     string
	PCH        []string
	ExtraFlags []string
}

// buildCommand tokenizes tpl first and substitutes afterwards, so no value
// can introduce new arguments except the list tokens {pch} and {extraFlags}.
func buildCommand(tpl string, vars templateVars) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	fields, err := shlex.Split(tpl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	replacer := strings.NewReplacer(
		"{src}", vars.Src,
		"{outDir}", vars.OutDir,
		"{out}", vars.Out,
	)
	argv := make([]string, 0, len(fields)+len(vars.ExtraFlags)+len(vars.PCH))
	for _, field := range fields {
		switch field {
		case "{extraFlags}":
			argv = append(argv, vars.ExtraFlags...)
		case "{pch}":
			argv = append(argv, vars.PCH...)
		default:
			argv = append(argv, replacer.Replace(field))
		}
	}
	if len(argv) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return argv, nil
}

// splitFlags tokenizes user compiler options the way a POSIX shell would,
// without expanding anything.
func splitFlags(options string) ([]string, error) {
	if strings.TrimSpace(options) == "" {
		return nil, nil
	}
	flags, err := shlex.Split(options)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidCompileFlags, "parse compiler options failed")
	}
	return flags, nil
}
