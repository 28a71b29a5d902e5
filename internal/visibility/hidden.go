package visibility

import (
	"github.com/agentx-labs/unitcore/internal/unit"
)

// Prepare caches u's hidden packages ahead of enabling it: its own hides
// plus those of its fragments that are enabled or part of aboutToEnable.
// Preparing a fragment extends its host's cached set.
func (r *Resolver) Prepare(u *unit.Unit, aboutToEnable []*unit.Unit) {
	batch := make(map[string]bool, len(aboutToEnable))
	for _, b := range aboutToEnable {
		batch[b.ID()] = true
	}

	set := newPrefixSet(u.Hidden())
	for _, f := range r.graph.Fragments(u.ID()) {
		if f.Enabled() || batch[f.ID()] {
			set = set.with(f.Hidden())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.hidden[u.ID()] = set
	if host := u.FragmentHost(); host != "" {
		if hs, ok := r.hidden[host]; ok {
			r.hidden[host] = hs.with(u.Hidden())
		}
	}
}

// Invalidate drops everything cached for id.
func (r *Resolver) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hidden, id)
	delete(r.kosher, id)
}

// hiddenBy returns u's hidden set, computing an unprepared one from u and
// its enabled fragments without caching it.
func (r *Resolver) hiddenBy(u *unit.Unit) prefixSet {
	r.mu.Lock()
	set, ok := r.hidden[u.ID()]
	r.mu.Unlock()
	if ok {
		return set
	}

	set = newPrefixSet(u.Hidden())
	for _, f := range r.graph.Fragments(u.ID()) {
		if f.Enabled() {
			set = set.with(f.Hidden())
		}
	}
	return set
}

var _ unit.Installer = (*Resolver)(nil)
