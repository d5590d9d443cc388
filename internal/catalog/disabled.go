package catalog

// ApplyDisabled returns entries with Enabled derived from the disabled set.
// Entries whose flag already matches are reused; the others are copied.
func ApplyDisabled[P Program](entries []P, disabled map[string]struct{}, withEnabled func(P, bool) P) []P {
	out := make([]P, len(entries))
	for i, e := range entries {
		_, off := disabled[e.Identifier()]
		if e.IsEnabled() == !off {
			out[i] = e
			continue
		}
		out[i] = withEnabled(e, !off)
	}
	return out
}

// NativeWithEnabled returns a copy of n with the given enabled flag
func NativeWithEnabled(n *Native, enabled bool) *Native {
	clone := *n
	clone.Enabled = enabled
	return &clone
}

// PackagedWithEnabled returns a copy of p with the given enabled flag
func PackagedWithEnabled(p *Packaged, enabled bool) *Packaged {
	clone := *p
	clone.Enabled = enabled
	return &clone
}
