package module

import "errors"

// Sentinel errors matching spec.md §7's error taxonomy for the module
// lifecycle.
var (
	ErrDuplicateName = errors.New("module: name already registered")
	ErrUnknownName   = errors.New("module: unknown module")
	ErrInvalidState  = errors.New("module: invalid state transition")
	ErrReloadFailure = errors.New("module: reload failed")
)

// CoreModuleName is the always-loaded built-in module's registered name.
// Unloading it with reloading=false is an invalid, fatal state transition
// (spec.md §7: "unload of the core module when reloading=false").
const CoreModuleName = "core"
