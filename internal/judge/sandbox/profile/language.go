// Package profile defines the languages the sandbox can build and run.
package profile

// Language identifies a supported source language on the wire.
type Language string

const (
	LanguageCpp    Language = "cpp"
	LanguageJava21 Language = "java21"
	LanguagePy11   Language = "py11"
)

// Kind decides how a language is built and what its bundle contains.
type Kind string

const (
	// KindNative compiles to a standalone binary.
	KindNative Kind = "native"
	// KindJVM compiles to class files run by a JVM.
	KindJVM Kind = "jvm"
	// KindScript is syntax-checked and ships its source.
	KindScript Kind = "script"
)

// LanguageSpec defines how to compile and run a language.
//
// Command templates are tokenized with shlex before substitution. Supported
// tokens: {src} source file, {out} output binary, {outDir} output directory,
// {pch} precompiled-header include flag, {extraFlags} user compiler flags.
// A token that expands to nothing removes its argument.
type LanguageSpec struct {
	ID         Language
	Name       string
	Kind       Kind
	SourceFile string
	// BinaryFile is the build product for KindNative, relative to the output dir.
	BinaryFile    string
	CompileCmdTpl string
	// RunCommand is written verbatim into the bundle's run script.
	RunCommand string
	Env        []string
	// AcceptsFlags reports whether user compiler options reach the build command.
	AcceptsFlags bool
	// UsesPCH enables the precompiled bits/stdc++.h include path.
	UsesPCH bool
}

// ShipsSource reports whether the source file itself belongs in the bundle.
func (l LanguageSpec) ShipsSource() bool {
	return l.Kind == KindScript
}

// DefaultLanguages returns the built-in language table.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:            LanguageCpp,
			Name:          "C++",
			Kind:          KindNative,
			SourceFile:    "program.cpp",
			BinaryFile:    "program",
			CompileCmdTpl: "g++ {pch} -o {out} {extraFlags} {src}",
			RunCommand:    "./program",
			AcceptsFlags:  true,
			UsesPCH:       true,
		},
		{
			ID:            LanguageJava21,
			Name:          "Java 21",
			Kind:          KindJVM,
			SourceFile:    "Main.java",
			CompileCmdTpl: "javac {extraFlags} -d {outDir} {src}",
			RunCommand:    "java -cp . Main",
			AcceptsFlags:  true,
		},
		{
			ID:            LanguagePy11,
			Name:          "Python 3.11",
			Kind:          KindScript,
			SourceFile:    "main.py",
			CompileCmdTpl: "python3 -m py_compile {src}",
			RunCommand:    "python3 main.py",
		},
	}
}
