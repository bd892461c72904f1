package pipeline

import (
	"sort"

	"github.com/jn-run/jn/internal/address"
	"github.com/jn-run/jn/internal/registry"
)

// SplitParams separates params into the subset a plugin declared as
// configuration (descriptor.config_params) from the remainder, which
// become filter-stage predicates. A nil descriptor consumes nothing, so
// every parameter becomes a filter.
func SplitParams(params []address.Param, descriptor *registry.PluginDescriptor) (config map[string]string, filters []address.Param) {
	config = map[string]string{}
	for _, p := range params {
		if descriptor != nil && descriptor.ConsumesParam(p.Key) {
			config[p.Key] = p.Value
			continue
		}
		filters = append(filters, p)
	}
	return config, filters
}

// MergeParameters unions address-level parameters with a profile's
// "defaults", preserving the address's own order and appending any
// default keys the address didn't already specify (sorted, since Go
// map iteration order isn't stable and JSON objects carry no order of
// their own).
//
// On a key present in both, the address wins outright; it is not
// combined (e.g. OR-ed) with the profile's default for that key.
func MergeParameters(addrParams []address.Param, defaults map[string]string) []address.Param {
	present := make(map[string]bool, len(addrParams))
	out := append([]address.Param(nil), addrParams...)
	for _, p := range addrParams {
		present[p.Key] = true
	}

	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if present[k] {
			continue
		}
		out = append(out, address.Param{Key: k, Value: defaults[k]})
	}
	return out
}
