// Package pipeline implements jn's pipeline builder: given a parsed
// address, a top-level mode, and a plugin registry, it assembles an
// ordered, validated chain of stages with fully-computed argv and env,
// ready for internal/executor to spawn.
package pipeline

import (
	"github.com/jn-run/jn/internal/registry"
	"github.com/jn-run/jn/pkg/jnplugin"
)

// Stage is one node of an assembled Pipeline. The builder computes
// Argv/Env; internal/executor computes the concrete
// stdin/stdout/stderr wiring (pipe fds, files) at spawn time.
type Stage struct {
	Descriptor *registry.PluginDescriptor
	Mode       jnplugin.Mode
	Argv       []string // extra "--key=value" arguments, beyond --mode=<mode>
	Env        []string // "KEY=VALUE" pairs added on top of the parent's environ
	Label      string   // human-readable name for diagnostics (defaults to Descriptor.Name)
}

// InputSpec describes where a read pipeline's first stage gets its
// bytes from.
type InputSpec struct {
	FromStdin bool
	FilePath  string
}

// OutputSpec describes where a write pipeline's last stage sends its
// bytes. Atomic write policy: when sinking to a file, the last stage's
// stdout is wired to a temp file in the target's own
// directory; the executor renames it over FilePath only after every
// stage exits successfully.
type OutputSpec struct {
	ToStdout bool
	FilePath string
	Atomic   bool
	TempPath string
}

// GlobExpansion holds the per-path sub-pipelines synthesized for an
// is_glob address. The executor runs them in
// order, concatenating their stdout onto the parent Pipeline's output.
type GlobExpansion struct {
	Paths        []string
	SubPipelines []*Pipeline
}

// Pipeline is the builder's output: an ordered, non-empty sequence of
// Stages plus how the chain's two open ends connect to the caller.
type Pipeline struct {
	Stages []Stage
	Input  InputSpec
	Output OutputSpec

	// Glob is set instead of Stages being directly executable when the
	// source address expanded to multiple paths; the executor iterates
	// Glob.SubPipelines rather than Stages in that case.
	Glob *GlobExpansion
}

// Validate checks that the pipeline has at least one stage (or a
// non-empty glob expansion), and that every stage's mode is declared
// among its descriptor's modes.
func (p *Pipeline) Validate() error {
	if p.Glob != nil {
		if len(p.Glob.SubPipelines) == 0 {
			return pipelineValidationError("glob pipeline expanded to zero paths")
		}
		for _, sub := range p.Glob.SubPipelines {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if len(p.Stages) == 0 {
		return pipelineValidationError("pipeline has zero stages")
	}
	for _, s := range p.Stages {
		if s.Descriptor == nil {
			return pipelineValidationError("stage %q has no resolved plugin", s.Label)
		}
		if !s.Descriptor.SupportsMode(s.Mode) {
			return pipelineValidationError("stage %q: plugin does not declare mode %q", s.Descriptor.Name, s.Mode)
		}
	}
	return nil
}
