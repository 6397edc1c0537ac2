package vm

import "sort"

// Profiler counts method invocations and executed instructions. It is
// attached with WithProfiler and, like the interpreter, is not safe for
// concurrent use.
type Profiler struct {
	methods map[*Method]*MethodProfile

	// HotThreshold is the invocation count at which a method is reported hot.
	HotThreshold uint64

	// OnHot, if set, is called once per method when it becomes hot.
	OnHot func(m *Method, profile *MethodProfile)
}

// MethodProfile holds the counters for one method.
type MethodProfile struct {
	Method       *Method
	Invocations  uint64
	Instructions uint64
	IsHot        bool
}

// NewProfiler creates a profiler with the default hot threshold.
func NewProfiler() *Profiler {
	return &Profiler{
		methods:      make(map[*Method]*MethodProfile),
		HotThreshold: 100,
	}
}

func (p *Profiler) profile(m *Method) *MethodProfile {
	mp := p.methods[m]
	if mp == nil {
		mp = &MethodProfile{Method: m}
		p.methods[m] = mp
	}
	return mp
}

// RecordInvocation counts a frame push for m.
func (p *Profiler) RecordInvocation(m *Method) {
	mp := p.profile(m)
	mp.Invocations++
	if !mp.IsHot && mp.Invocations >= p.HotThreshold {
		mp.IsHot = true
		if p.OnHot != nil {
			p.OnHot(m, mp)
		}
	}
}

// RecordInstruction counts one executed instruction of m.
func (p *Profiler) RecordInstruction(m *Method) {
	p.profile(m).Instructions++
}

// Profile returns the counters for m, or nil if m never ran.
func (p *Profiler) Profile(m *Method) *MethodProfile {
	return p.methods[m]
}

// Top returns up to n profiles ordered by executed instructions, then by
// invocations. n <= 0 returns all of them.
func (p *Profiler) Top(n int) []*MethodProfile {
	all := make([]*MethodProfile, 0, len(p.methods))
	for _, mp := range p.methods {
		all = append(all, mp)
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].Instructions != all[b].Instructions {
			return all[a].Instructions > all[b].Instructions
		}
		if all[a].Invocations != all[b].Invocations {
			return all[a].Invocations > all[b].Invocations
		}
		return all[a].Method.String() < all[b].Method.String()
	})
	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// HotMethods returns the methods that crossed the hot threshold.
func (p *Profiler) HotMethods() []*Method {
	var hot []*Method
	for _, mp := range p.Top(0) {
		if mp.IsHot {
			hot = append(hot, mp.Method)
		}
	}
	return hot
}

// Reset clears all counters.
func (p *Profiler) Reset() {
	p.methods = make(map[*Method]*MethodProfile)
}
