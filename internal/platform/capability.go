// Package platform abstracts the OS-specific facilities self-protection
// depends on but gopsutil has no equivalent for (code-signature
// verification, registry/service presence, per-category protection setup).
// Grounded on spec.md §9 "Platform-conditional code paths": every facility
// is exposed through a Capability with a default "no-op but succeed"
// implementation so the engine runs, degraded, on platforms without it.
package platform

// Capability is implemented once per target OS; DefaultCapability below is
// the fallback used on platforms with no dedicated implementation.
type Capability interface {
	// VerifyOwnSignature checks the running binary's code signature.
	// Platforms without a signing facility report true (pass).
	VerifyOwnSignature() bool

	// CheckRegistryIntegrity is a placeholder per spec.md §9 Open
	// Questions: real semantics unspecified, always returns true.
	CheckRegistryIntegrity() bool

	// CheckServiceIntegrity is a placeholder per spec.md §9 Open
	// Questions: real semantics unspecified, always returns true.
	CheckServiceIntegrity() bool

	// SetupProcessProtection, SetupFileProtection, ... install whatever
	// OS-level hooks the category needs. No-op but succeed when the
	// platform offers no such hook.
	SetupProcessProtection() bool
	SetupFileProtection() bool
	SetupRegistryProtection() bool
	SetupMemoryProtection() bool
	SetupDebugProtection() bool
	SetupServiceProtection() bool
	SetupThreadProtection() bool
	SetupHandleProtection() bool
	SetupStructuredExceptionProtection() bool
}

// DefaultCapability succeeds at every operation without doing anything. It
// is the capability used whenever no platform-specific implementation has
// been wired in — the engine's self-protection subsystem degrades to
// logging-only rather than failing to start.
type DefaultCapability struct{}

func (DefaultCapability) VerifyOwnSignature() bool    { return true }
func (DefaultCapability) CheckRegistryIntegrity() bool { return true }
func (DefaultCapability) CheckServiceIntegrity() bool  { return true }

func (DefaultCapability) SetupProcessProtection() bool             { return true }
func (DefaultCapability) SetupFileProtection() bool                { return true }
func (DefaultCapability) SetupRegistryProtection() bool             { return true }
func (DefaultCapability) SetupMemoryProtection() bool               { return true }
func (DefaultCapability) SetupDebugProtection() bool                { return true }
func (DefaultCapability) SetupServiceProtection() bool              { return true }
func (DefaultCapability) SetupThreadProtection() bool               { return true }
func (DefaultCapability) SetupHandleProtection() bool               { return true }
func (DefaultCapability) SetupStructuredExceptionProtection() bool  { return true }
