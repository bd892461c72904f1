package pipeline

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/jn-run/jn/internal/address"
	"github.com/jn-run/jn/internal/filterexpr"
	"github.com/jn-run/jn/internal/jnerrors"
	"github.com/jn-run/jn/internal/profile"
	"github.com/jn-run/jn/internal/registry"
	"github.com/jn-run/jn/pkg/jnplugin"
)

// Builder assembles Pipelines from addresses against a fixed registry
// and profile resolver.
type Builder struct {
	Registry *registry.Registry
	Profiles *profile.Resolver
}

func New(reg *registry.Registry, profiles *profile.Resolver) *Builder {
	return &Builder{Registry: reg, Profiles: profiles}
}

// BuildRead assembles a read pipeline for addr, writing NDJSON to
// stdout (the top-level CLI invocation's usual case).
func (b *Builder) BuildRead(addr *address.Address) (*Pipeline, error) {
	if addr.IsGlob {
		return b.buildGlobRead(addr)
	}
	p := &Pipeline{Input: InputSpec{FromStdin: addr.IsStdio}, Output: OutputSpec{ToStdout: true}}
	if !addr.IsStdio && addr.Kind != address.KindProfile && addr.Kind != address.KindURL {
		p.Input.FilePath = addr.Path
	}

	if addr.Kind == address.KindProfile {
		stage, filters, err := b.buildProfileStage(addr, jnplugin.ModeRead)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, stage)
		if fstage, ok, err := b.buildFilterStage(filters); err != nil {
			return nil, err
		} else if ok {
			p.Stages = append(p.Stages, fstage)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}

	var lastContentDescriptor *registry.PluginDescriptor

	// Step 1: protocol stage.
	var skipFormat bool
	if addr.Protocol != "" && addr.Protocol != "file" {
		protoDesc := b.Registry.Best(jnplugin.RoleProtocol, addr.Raw)
		if protoDesc == nil {
			return nil, &jnerrors.PluginNotFoundError{Role: string(jnplugin.RoleProtocol), Address: addr.Raw}
		}
		mode := jnplugin.ModeRaw
		if protoDesc.SupportsMode(jnplugin.ModeRead) {
			mode = jnplugin.ModeRead
			skipFormat = true
		}
		argv := []string{"--op=fetch"}
		if mode == jnplugin.ModeRead {
			argv = nil
		}
		p.Stages = append(p.Stages, Stage{Descriptor: protoDesc, Mode: mode, Label: protoDesc.Name, Argv: argv, Env: []string{"JN_ADDRESS=" + addr.Protocol + "://" + addr.Path}})
		lastContentDescriptor = protoDesc
	}

	// Step 2: decompress stages, in decode order.
	for _, token := range addr.Compression {
		compDesc := b.Registry.Best(jnplugin.RoleCompression, token)
		if compDesc == nil {
			return nil, &jnerrors.PluginNotFoundError{Role: string(jnplugin.RoleCompression), Address: token}
		}
		p.Stages = append(p.Stages, Stage{Descriptor: compDesc, Mode: jnplugin.ModeRaw, Label: compDesc.Name, Argv: []string{"--decompress=true"}})
	}

	// Step 3: format stage, unless the protocol stage already produced NDJSON.
	if !skipFormat {
		formatDesc, err := b.resolveFormat(addr)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, Stage{Descriptor: formatDesc, Mode: jnplugin.ModeRead, Label: formatDesc.Name})
		lastContentDescriptor = formatDesc
	}

	config, filters := SplitParams(addr.Parameters, lastContentDescriptor)
	applyConfigArgv(&p.Stages[len(p.Stages)-1], config)

	if fstage, ok, err := b.buildFilterStage(filters); err != nil {
		return nil, err
	} else if ok {
		p.Stages = append(p.Stages, fstage)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildWrite assembles a write pipeline for addr, reading NDJSON from
// stdin and sinking bytes to the address's target.
//
// Assembly mirrors BuildRead in reverse: filter (if the address carries
// filter parameters) -> format (write) -> compress stages (raw) -> sink.
// The filter stage runs *before* format encoding, so a filter on a
// write address trims records out of the NDJSON stream before they're
// serialized into the target format — not after, which would require
// decoding the target format back out to filter it.
func (b *Builder) BuildWrite(addr *address.Address) (*Pipeline, error) {
	if addr.IsGlob {
		return nil, pipelineValidationError("glob addresses are not valid write targets")
	}
	p := &Pipeline{Output: OutputSpec{ToStdout: addr.IsStdio}}

	if addr.Kind == address.KindProfile {
		stage, filters, err := b.buildProfileStage(addr, jnplugin.ModeWrite)
		if err != nil {
			return nil, err
		}
		if fstage, ok, err := b.buildFilterStage(filters); err != nil {
			return nil, err
		} else if ok {
			p.Stages = append(p.Stages, fstage)
		}
		p.Stages = append(p.Stages, stage)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}

	var sinkDescriptor *registry.PluginDescriptor
	var skipFormat bool
	if addr.Protocol != "" && addr.Protocol != "file" {
		protoDesc := b.Registry.Best(jnplugin.RoleProtocol, addr.Raw)
		if protoDesc == nil {
			return nil, &jnerrors.PluginNotFoundError{Role: string(jnplugin.RoleProtocol), Address: addr.Raw}
		}
		sinkDescriptor = protoDesc
		if protoDesc.SupportsMode(jnplugin.ModeWrite) && !protoDesc.SupportsMode(jnplugin.ModeRaw) {
			skipFormat = true
		}
	}

	_, filters := SplitParams(addr.Parameters, sinkDescriptor)
	if fstage, ok, err := b.buildFilterStage(filters); err != nil {
		return nil, err
	} else if ok {
		p.Stages = append(p.Stages, fstage)
	}

	if !skipFormat {
		formatDesc, err := b.resolveFormat(addr)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, Stage{Descriptor: formatDesc, Mode: jnplugin.ModeWrite, Label: formatDesc.Name})
	}

	for i := len(addr.Compression) - 1; i >= 0; i-- {
		token := addr.Compression[i]
		compDesc := b.Registry.Best(jnplugin.RoleCompression, token)
		if compDesc == nil {
			return nil, &jnerrors.PluginNotFoundError{Role: string(jnplugin.RoleCompression), Address: token}
		}
		p.Stages = append(p.Stages, Stage{Descriptor: compDesc, Mode: jnplugin.ModeRaw, Label: compDesc.Name, Argv: []string{"--decompress=false"}})
	}

	if sinkDescriptor != nil {
		mode := jnplugin.ModeRaw
		var sinkArgv []string
		if skipFormat {
			mode = jnplugin.ModeWrite
		} else {
			sinkArgv = []string{"--op=push"}
		}
		p.Stages = append(p.Stages, Stage{Descriptor: sinkDescriptor, Mode: mode, Label: sinkDescriptor.Name, Argv: sinkArgv, Env: []string{"JN_ADDRESS=" + addr.Protocol + "://" + addr.Path}})
	} else if !addr.IsStdio {
		p.Output.FilePath = addr.Path
		p.Output.Atomic = true
		dir := filepath.Dir(addr.Path)
		// uuid suffix keeps two concurrent writes to the same target
		// (e.g. two scheduled jobs racing) from colliding on one temp
		// file and clobbering each other's atomic rename.
		p.Output.TempPath = filepath.Join(dir, "."+filepath.Base(addr.Path)+".jn-tmp."+uuid.NewString())
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// resolveFormat picks a format-role plugin by precedence: explicit
// ~format hint, else the retained path extension, else best registry
// match on the address path (the raw address when the path is empty).
func (b *Builder) resolveFormat(addr *address.Address) (*registry.PluginDescriptor, error) {
	if addr.FormatHint != "" {
		if byName := b.Registry.ByName(jnplugin.RoleFormat, addr.FormatHint); len(byName) > 0 {
			return byName[0], nil
		}
	}
	if addr.RetainedExt != "" {
		if byName := b.Registry.ByName(jnplugin.RoleFormat, addr.RetainedExt); len(byName) > 0 {
			return byName[0], nil
		}
	}
	candidate := addr.Raw
	if addr.Path != "" {
		candidate = addr.Path
	}
	if desc := b.Registry.Best(jnplugin.RoleFormat, candidate); desc != nil {
		return desc, nil
	}
	return nil, &jnerrors.PluginNotFoundError{Role: string(jnplugin.RoleFormat), Address: addr.Raw}
}

// buildProfileStage resolves addr's profile reference and constructs
// the single stage that invokes the kind-associated plugin. It returns
// the leftover (filter) parameters alongside the stage since the
// caller still needs to wire a filter stage around it.
func (b *Builder) buildProfileStage(addr *address.Address, direction jnplugin.Mode) (Stage, []address.Param, error) {
	if b.Profiles == nil {
		return Stage{}, nil, pipelineValidationError("no profile resolver configured")
	}
	resolved, err := b.Profiles.Resolve(*addr.ProfileRef)
	if err != nil {
		return Stage{}, nil, err
	}

	candidates := b.Registry.ByName(jnplugin.RoleProtocol, resolved.Kind)
	if len(candidates) == 0 {
		return Stage{}, nil, &jnerrors.PluginNotFoundError{Role: resolved.Kind, Address: addr.Raw}
	}
	descriptor := candidates[0]

	mode := direction
	if descriptor.SupportsMode(jnplugin.ModeProfiles) {
		mode = jnplugin.ModeProfiles
	} else if !descriptor.SupportsMode(direction) {
		return Stage{}, nil, &jnerrors.ModeUnsupportedError{Plugin: descriptor.Name, Mode: string(direction)}
	}

	merged := MergeParameters(addr.Parameters, resolved.Defaults)
	config, filters := SplitParams(merged, descriptor)

	if assertion, ok := profile.ExtractJWTAssertion(resolved.Config); ok {
		token, err := profile.MintBearerAssertion(assertion)
		if err != nil {
			return Stage{}, nil, &jnerrors.ProfileMergeError{File: addr.Raw, Err: err}
		}
		headers, _ := resolved.Config["headers"].(map[string]interface{})
		if headers == nil {
			headers = map[string]interface{}{}
			resolved.Config["headers"] = headers
		}
		headers["Authorization"] = "Bearer " + token
	}

	profileJSON, err := json.Marshal(resolved.Config)
	if err != nil {
		return Stage{}, nil, &jnerrors.ProfileMergeError{File: addr.Raw, Err: err}
	}

	stage := Stage{Descriptor: descriptor, Mode: mode, Label: descriptor.Name, Env: []string{"JN_PROFILE_JSON=" + string(profileJSON)}}
	applyConfigArgv(&stage, config)
	return stage, filters, nil
}

// buildFilterStage wraps non-config parameters into a filter stage, or
// reports ok=false if there's nothing to filter.
func (b *Builder) buildFilterStage(filters []address.Param) (Stage, bool, error) {
	if len(filters) == 0 {
		return Stage{}, false, nil
	}
	expr := filterexpr.Build(filters)
	desc := b.Registry.Best(jnplugin.RoleFilter, expr)
	if desc == nil {
		return Stage{}, false, &jnerrors.PluginNotFoundError{Role: string(jnplugin.RoleFilter), Address: expr}
	}
	stage := Stage{Descriptor: desc, Mode: jnplugin.ModeFilter, Label: desc.Name, Argv: []string{"--expr=" + expr}}
	return stage, true, nil
}

func applyConfigArgv(stage *Stage, config map[string]string) {
	var keys []string
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stage.Argv = append(stage.Argv, fmt.Sprintf("--%s=%s", k, config[k]))
	}
}

// buildGlobRead expands addr.Path and builds one sub-pipeline per
// match. The glob driver itself is core logic (not a plugin process):
// it needs to recursively invoke the builder, which only the core can
// do.
func (b *Builder) buildGlobRead(addr *address.Address) (*Pipeline, error) {
	matches, err := filepathGlob(addr.Path)
	if err != nil {
		return nil, &jnerrors.IOError{Op: "glob", Path: addr.Path, Err: err}
	}
	if len(matches) == 0 {
		return nil, pipelineValidationError("glob %q matched no files", addr.Path)
	}
	exp := &GlobExpansion{Paths: matches}
	for _, m := range matches {
		sub := *addr
		sub.Path = m
		sub.IsGlob = false
		sub.Kind = address.KindFile
		subPipeline, err := b.BuildRead(&sub)
		if err != nil {
			return nil, err
		}
		exp.SubPipelines = append(exp.SubPipelines, subPipeline)
	}
	p := &Pipeline{Output: OutputSpec{ToStdout: true}, Glob: exp}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func filepathGlob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}
