package engine

import (
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/roach88/loopsched/internal/ir"
)

// boostMode controls whether an instruction may run inside loops it does
// not require.
type boostMode int

const (
	// boostDisabled never boosts.
	boostDisabled boostMode = iota
	// boostAllowed retries a dead end with boosting on.
	boostAllowed
	// boostOn subtracts each instruction's boostable inames from the
	// active set when testing whether it can run.
	boostOn
)

func (m boostMode) String() string {
	switch m {
	case boostAllowed:
		return "allowed"
	case boostOn:
		return "on"
	}
	return "disabled"
}

// Search lazily yields every complete schedule reachable for k.
//
// loopPriority lists inames the caller wants entered outermost first. With
// allowBoost false the search is strict; with it true a dead end is retried
// once with boosting on. rec may be nil.
//
// Breaking out of the range loop stops the search. A cancelled ctx ends
// the sequence early without error; callers check ctx.Err.
func Search(ctx context.Context, k KernelInfo, loopPriority []string, allowBoost bool, rec *Recorder) iter.Seq[ir.Schedule] {
	return func(yield func(ir.Schedule) bool) {
		s := &searcher{
			ctx:          ctx,
			k:            newKernelView(k),
			loopPriority: loopPriority,
			rec:          rec,
		}
		mode := boostDisabled
		if allowBoost {
			mode = boostAllowed
		}
		s.walk(nil, mode, yield)
	}
}

type searcher struct {
	ctx          context.Context
	k            *kernelView
	loopPriority []string
	rec          *Recorder

	// found counts yielded schedules across the whole search.
	found int
}

// walk extends sched and reports whether the consumer wants more.
func (s *searcher) walk(sched ir.Schedule, boost boostMode, yield func(ir.Schedule) bool) bool {
	if s.ctx.Err() != nil {
		return false
	}

	next := boostDisabled
	if boost != boostDisabled {
		next = boostAllowed
	}

	scheduled := newSet()
	var active []string
	for _, item := range sched {
		switch it := item.(type) {
		case ir.RunInstruction:
			scheduled.add(it.InsnID)
		case ir.EnterLoop:
			active = append(active, it.Iname)
		case ir.LeaveLoop:
			active = active[:len(active)-1]
		}
	}
	activeSet := newSet(active...)

	debug := s.rec.debugging(len(sched))
	if debug {
		s.rec.tracef("%s", strings.Repeat("-", 75))
		s.rec.tracef("KERNEL:\n%s", s.k.info)
		s.rec.tracef("CURRENT SCHEDULE: %s", ir.DumpSchedule(sched))
		s.rec.tracef("boost mode: %s", boost)
		s.rec.tracef("%s", strings.Repeat("-", 75))
	}

	// Run an instruction if one is ready.
	reachable := newSet()
	var unscheduled []string
	for _, insn := range s.k.insns {
		if scheduled.has(insn.ID) {
			continue
		}
		unscheduled = append(unscheduled, insn.ID)
	}

	for _, id := range unscheduled {
		if missing := s.k.deps[id].minus(scheduled); len(missing) > 0 {
			if debug {
				s.rec.tracef("instruction %q is missing dependencies %s", id, strings.Join(missing.sorted(), ","))
			}
			continue
		}

		want := s.k.inames[id].minus(s.k.parallel)
		have := activeSet.minus(s.k.parallel)
		if boost == boostOn {
			have = have.minus(s.k.boost[id])
		}

		if want.equal(have) {
			if debug {
				s.rec.tracef("scheduling %q", id)
			}
			return s.walk(extend(sched, ir.RunInstruction{InsnID: id}), next, yield)
		}

		if debug {
			if extra := have.minus(want); len(extra) > 0 {
				s.rec.tracef("instruction %q won't work under inames %s", id, strings.Join(extra.sorted(), ","))
			}
			if short := want.minus(have); len(short) > 0 {
				s.rec.tracef("instruction %q needs inames %s", id, strings.Join(short.sorted(), ","))
			}
		}
		if have.subsetOf(want) {
			reachable.add(id)
		}
	}

	// Leave the innermost loop if nothing still needs it.
	if len(active) > 0 {
		last := active[len(active)-1]
		canLeave := true
		if !s.k.breakable.has(last) {
			for _, id := range unscheduled {
				if s.k.inames[id].has(last) {
					if debug {
						s.rec.tracef("cannot leave %q because %q still depends on it", last, id)
					}
					canLeave = false
					break
				}
			}
		}
		if canLeave && !ranSinceEntering(sched, last) {
			if debug {
				s.rec.tracef("cannot leave %q: no instruction scheduled since entering it", last)
			}
			canLeave = false
		}
		if canLeave {
			return s.walk(extend(sched, ir.LeaveLoop{Iname: last}), next, yield)
		}
	}

	// Enter a loop that some reachable instruction could use.
	needed := newSet()
	for _, id := range unscheduled {
		needed.addAll(s.k.inames[id])
	}
	needed = needed.minus(s.k.parallel).minus(activeSet)

	if debug {
		s.rec.tracef("active: %s", strings.Join(active, ","))
		s.rec.tracef("inames still needed: %s", strings.Join(needed.sorted(), ","))
		s.rec.tracef("reachable instructions: %s", strings.Join(reachable.sorted(), ","))
	}

	if len(needed) > 0 {
		var useful []string
		for _, iname := range needed.sorted() {
			if !s.k.loopParents(iname).subsetOf(activeSet.union(s.k.parallel)) {
				if debug {
					s.rec.tracef("iname %q cannot be entered: nesting parents not active", iname)
				}
				continue
			}

			hypothetical := activeSet.clone()
			hypothetical.add(iname)
			usable := false
			for id := range reachable {
				if hypothetical.subsetOf(s.k.inames[id].union(s.k.boost[id])) {
					usable = true
					break
				}
			}
			if !usable {
				if debug {
					s.rec.tracef("iname %q deemed not useful", iname)
				}
				continue
			}
			useful = append(useful, iname)
		}

		for _, tier := range s.priorityTiers(useful) {
			before := s.found
			for _, iname := range tier {
				if debug {
					s.rec.tracef("entering %q", iname)
				}
				if !s.walk(extend(sched, ir.EnterLoop{Iname: iname}), next, yield) {
					return false
				}
			}
			if s.found > before {
				return true
			}
		}
	}

	if debug {
		s.rec.pause()
	}

	if len(active) == 0 && len(unscheduled) == 0 {
		s.rec.logSuccess()
		s.found++
		return yield(sched)
	}

	if boost == boostAllowed {
		if debug {
			s.rec.tracef("dead end, retrying with boost")
		}
		return s.walk(sched, boostOn, yield)
	}

	s.rec.logDeadEnd(sched)
	return true
}

// priorityTiers groups candidate loops into the order they are tried.
// Loops named in the loop priority come first, one per tier, then the
// remaining loops together, then each lowest-priority loop on its own.
func (s *searcher) priorityTiers(useful []string) [][]string {
	candidates := newSet(useful...)
	prio := newSet(s.loopPriority...)
	var tiers [][]string

	if len(candidates.intersect(prio)) > 0 {
		seen := newSet()
		for _, iname := range s.loopPriority {
			if candidates.has(iname) && !s.k.lowestSet.has(iname) && !seen.has(iname) {
				seen.add(iname)
				tiers = append(tiers, []string{iname})
			}
		}
		if rest := candidates.minus(prio).minus(s.k.lowestSet); len(rest) > 0 {
			tiers = append(tiers, rest.sorted())
		}
	} else if rest := candidates.minus(s.k.lowestSet); len(rest) > 0 {
		tiers = append(tiers, rest.sorted())
	}

	for _, iname := range s.k.lowest {
		if candidates.has(iname) {
			tiers = append(tiers, []string{iname})
		}
	}
	return tiers
}

// ranSinceEntering reports whether an instruction ran since the innermost
// open EnterLoop for iname.
func ranSinceEntering(sched ir.Schedule, iname string) bool {
	depth := 0
	ran := false
	for i := len(sched) - 1; i >= 0; i-- {
		switch it := sched[i].(type) {
		case ir.RunInstruction:
			ran = true
		case ir.LeaveLoop:
			depth++
		case ir.EnterLoop:
			if depth > 0 {
				depth--
				continue
			}
			if it.Iname == iname {
				return ran
			}
		}
	}
	return false
}

// extend returns a new schedule with item appended. It never shares a
// backing array with sched.
func extend(sched ir.Schedule, item ir.Item) ir.Schedule {
	return append(slices.Clip(sched), item)
}
