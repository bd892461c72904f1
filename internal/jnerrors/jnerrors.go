// Package jnerrors defines the error kinds shared across jn's pipeline
// substrate (address parsing, profile resolution, plugin discovery, and
// pipeline assembly/execution). Each kind is a small struct with an
// Error() method, so callers can type-switch on the concrete kind
// instead of parsing an error string.
package jnerrors

import "fmt"

// AddressParseError reports a malformed address string and the byte
// offset at which parsing failed.
type AddressParseError struct {
	Raw      string
	Position int
	Reason   string
}

func (e *AddressParseError) Error() string {
	return fmt.Sprintf("address parse error at position %d in %q: %s", e.Position, e.Raw, e.Reason)
}

// ProfileNotFound is returned when no file matches (kind, namespace, name)
// in any search tier.
type ProfileNotFound struct {
	Kind, Namespace, Name string
	SearchedTiers         []string
}

func (e *ProfileNotFound) Error() string {
	return fmt.Sprintf("profile not found: %s/%s/%s (searched: %v)", e.Kind, e.Namespace, e.Name, e.SearchedTiers)
}

// VarUnsetError is the specific ProfileMergeError cause for an
// unset ${VAR} substitution with no default clause.
type VarUnsetError struct {
	Var  string
	File string
}

func (e *VarUnsetError) Error() string {
	return fmt.Sprintf("VAR_UNSET(%s) in %s", e.Var, e.File)
}

// ProfileMergeError wraps a failure while merging or substituting a
// profile's ancestor chain.
type ProfileMergeError struct {
	File string
	Err  error
}

func (e *ProfileMergeError) Error() string {
	return fmt.Sprintf("profile merge error in %s: %v", e.File, e.Err)
}

func (e *ProfileMergeError) Unwrap() error { return e.Err }

// PluginNotFoundError is returned when no registry entry matches for a
// required role/address combination.
type PluginNotFoundError struct {
	Role    string
	Address string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("no %s plugin matches %q", e.Role, e.Address)
}

// PluginMetaError is returned when discovery could not extract a
// plugin's self-description. Discovery continues; the plugin is omitted.
type PluginMetaError struct {
	Path   string
	Reason string
}

func (e *PluginMetaError) Error() string {
	return fmt.Sprintf("META_EXTRACTION_FAILED(%s): %s", e.Path, e.Reason)
}

// ModeUnsupportedError is returned when a chosen plugin's metadata does
// not declare the mode the builder needs.
type ModeUnsupportedError struct {
	Plugin string
	Mode   string
}

func (e *ModeUnsupportedError) Error() string {
	return fmt.Sprintf("plugin %q does not support mode %q", e.Plugin, e.Mode)
}

// StageFailure carries a spawned process's failure, including a tail of
// its captured stderr.
type StageFailure struct {
	Plugin   string
	ExitCode int
	Stderr   string
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %q exited %d: %s", e.Plugin, e.ExitCode, e.Stderr)
}

// PipelineValidationError reports a structural problem detected before
// any process is spawned.
type PipelineValidationError struct {
	Reason string
}

func (e *PipelineValidationError) Error() string {
	return fmt.Sprintf("pipeline validation failed: %s", e.Reason)
}

// IOError wraps a file/fd management failure (open, rename, pipe
// creation, ...).
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error during %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Cancelled is returned when the parent process received a termination
// signal before or during execution.
type Cancelled struct {
	Signal string
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("cancelled by %s", e.Signal)
}

// Process exit codes.
const (
	ExitSuccess    = 0
	ExitUsageError = 2
	ExitRuntime    = 1
	ExitSIGINT     = 130
)
