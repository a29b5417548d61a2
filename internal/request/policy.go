package request

// CachePolicy controls whether a cache tier may be read and/or written.
// The zero value, PolicyUnset, defers to the Engine's defaults.
type CachePolicy int

const (
	PolicyUnset CachePolicy = iota
	PolicyEnabled
	PolicyDisabled
	PolicyWriteOnly
	PolicyReadOnly
)

var policyNames = map[string]CachePolicy{
	"ENABLED":    PolicyEnabled,
	"DISABLED":   PolicyDisabled,
	"WRITE_ONLY": PolicyWriteOnly,
	"READ_ONLY":  PolicyReadOnly,
}

// ResolvePolicy maps a policy string onto CachePolicy. The mapping is a
// bijection over ENABLED, DISABLED, WRITE_ONLY and READ_ONLY; any other
// input fails with a ConfigError of kind UnknownCachePolicy.
func ResolvePolicy(s string) (CachePolicy, error) {
	p, ok := policyNames[s]
	if !ok {
		return PolicyUnset, &ConfigError{Kind: UnknownCachePolicy, Value: s}
	}
	return p, nil
}

// String returns the policy string accepted by ResolvePolicy, or "UNSET".
func (p CachePolicy) String() string {
	switch p {
	case PolicyEnabled:
		return "ENABLED"
	case PolicyDisabled:
		return "DISABLED"
	case PolicyWriteOnly:
		return "WRITE_ONLY"
	case PolicyReadOnly:
		return "READ_ONLY"
	default:
		return "UNSET"
	}
}

// ReadEnabled reports whether the tier may be read.
func (p CachePolicy) ReadEnabled() bool {
	return p == PolicyEnabled || p == PolicyReadOnly
}

// WriteEnabled reports whether the tier may be written.
func (p CachePolicy) WriteEnabled() bool {
	return p == PolicyEnabled || p == PolicyWriteOnly
}

// Or returns p, or def when p is unset.
func (p CachePolicy) Or(def CachePolicy) CachePolicy {
	if p == PolicyUnset {
		return def
	}
	return p
}
