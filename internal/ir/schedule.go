package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Item is one event of a schedule.
//
// This is a sealed interface: only the four types in this file implement
// it, so type switches over Item are exhaustive.
//
//	switch it := item.(type) {
//	case EnterLoop:
//	case LeaveLoop:
//	case RunInstruction:
//	case Barrier:
//	}
type Item interface {
	scheduleItem() // Marker method - seals interface to this package
}

// EnterLoop opens a sequential loop over Iname.
type EnterLoop struct {
	Iname string
}

// LeaveLoop closes the innermost open loop, which must be over Iname.
type LeaveLoop struct {
	Iname string
}

// RunInstruction executes one instruction.
type RunInstruction struct {
	InsnID string
}

// Barrier is a workgroup synchronization point.
type Barrier struct {
	Comment string
}

func (EnterLoop) scheduleItem()      {}
func (LeaveLoop) scheduleItem()      {}
func (RunInstruction) scheduleItem() {}
func (Barrier) scheduleItem()        {}

// Schedule is an ordered sequence of items.
type Schedule []Item

// String returns the compact dump of the schedule.
func (s Schedule) String() string {
	return DumpSchedule(s)
}

// DumpSchedule renders a schedule as "<i> a b </i> | c": loop entry as
// <iname>, loop exit as </iname>, instructions by id and barriers as "|".
func DumpSchedule(s Schedule) string {
	entries := make([]string, 0, len(s))
	for _, item := range s {
		switch it := item.(type) {
		case EnterLoop:
			entries = append(entries, "<"+it.Iname+">")
		case LeaveLoop:
			entries = append(entries, "</"+it.Iname+">")
		case RunInstruction:
			entries = append(entries, it.InsnID)
		case Barrier:
			entries = append(entries, "|")
		default:
			panic(fmt.Sprintf("unknown schedule item %T", item))
		}
	}
	return strings.Join(entries, " ")
}

// RunInstructionIDs returns the instruction ids in program order.
func (s Schedule) RunInstructionIDs() []string {
	var ids []string
	for _, item := range s {
		if run, ok := item.(RunInstruction); ok {
			ids = append(ids, run.InsnID)
		}
	}
	return ids
}

// BarrierCount returns the number of barriers in the schedule.
func (s Schedule) BarrierCount() int {
	n := 0
	for _, item := range s {
		if _, ok := item.(Barrier); ok {
			n++
		}
	}
	return n
}

// GatherSubloop returns the items from the EnterLoop at start up to and
// including its matching LeaveLoop, along with the index following it.
//
// Panics if s[start] is not an EnterLoop or the loop is unterminated.
func GatherSubloop(s Schedule, start int) (Schedule, int) {
	if _, ok := s[start].(EnterLoop); !ok {
		panic(fmt.Sprintf("GatherSubloop: item %d is %T, not EnterLoop", start, s[start]))
	}

	level := 0
	for i := start; i < len(s); i++ {
		switch s[i].(type) {
		case EnterLoop:
			level++
		case LeaveLoop:
			level--
			if level == 0 {
				return s[start : i+1], i + 1
			}
		}
	}
	panic(fmt.Sprintf("GatherSubloop: loop at %d is never left", start))
}

// ActiveInamesAt returns the loops open just before index idx.
func ActiveInamesAt(s Schedule, idx int) []string {
	var active []string
	for _, item := range s[:idx] {
		switch it := item.(type) {
		case EnterLoop:
			active = append(active, it.Iname)
		case LeaveLoop:
			active = active[:len(active)-1]
		}
	}
	return active
}

// HasBarrierWithin reports whether the item at idx is a barrier or a loop
// containing one.
func HasBarrierWithin(s Schedule, idx int) bool {
	switch s[idx].(type) {
	case EnterLoop:
		body, _ := GatherSubloop(s, idx)
		return body.BarrierCount() > 0
	case Barrier:
		return true
	}
	return false
}

// UsedInamesWithin returns the inames required by the instructions run at
// idx (a single instruction or a whole loop).
func UsedInamesWithin(k *Kernel, s Schedule, idx int) []string {
	var run []string
	switch it := s[idx].(type) {
	case EnterLoop:
		body, _ := GatherSubloop(s, idx)
		run = body.RunInstructionIDs()
	case RunInstruction:
		run = []string{it.InsnID}
	default:
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, id := range run {
		for _, iname := range k.InsnInames(id) {
			if !seen[iname] {
				seen[iname] = true
				out = append(out, iname)
			}
		}
	}
	return out
}

// itemJSON is the wire form of an Item.
type itemJSON struct {
	Kind    string `json:"kind"`
	Iname   string `json:"iname,omitempty"`
	InsnID  string `json:"insn_id,omitempty"`
	Comment string `json:"comment,omitempty"`
}

const (
	kindEnter   = "enter_loop"
	kindLeave   = "leave_loop"
	kindRun     = "run_instruction"
	kindBarrier = "barrier"
)

func encodeItem(item Item) itemJSON {
	switch it := item.(type) {
	case EnterLoop:
		return itemJSON{Kind: kindEnter, Iname: it.Iname}
	case LeaveLoop:
		return itemJSON{Kind: kindLeave, Iname: it.Iname}
	case RunInstruction:
		return itemJSON{Kind: kindRun, InsnID: it.InsnID}
	case Barrier:
		return itemJSON{Kind: kindBarrier, Comment: it.Comment}
	}
	panic(fmt.Sprintf("unknown schedule item %T", item))
}

func decodeItem(j itemJSON) (Item, error) {
	switch j.Kind {
	case kindEnter:
		return EnterLoop{Iname: j.Iname}, nil
	case kindLeave:
		return LeaveLoop{Iname: j.Iname}, nil
	case kindRun:
		return RunInstruction{InsnID: j.InsnID}, nil
	case kindBarrier:
		return Barrier{Comment: j.Comment}, nil
	}
	return nil, fmt.Errorf("unknown schedule item kind %q", j.Kind)
}

// MarshalJSON encodes the schedule as a list of tagged items.
func (s Schedule) MarshalJSON() ([]byte, error) {
	out := make([]itemJSON, len(s))
	for i, item := range s {
		out[i] = encodeItem(item)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a schedule written by MarshalJSON.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var raw []itemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Schedule, len(raw))
	for i, j := range raw {
		item, err := decodeItem(j)
		if err != nil {
			return fmt.Errorf("schedule[%d]: %w", i, err)
		}
		out[i] = item
	}
	*s = out
	return nil
}

// canonical returns the schedule as canonical-JSON-ready values.
func (s Schedule) canonical() []any {
	out := make([]any, len(s))
	for i, item := range s {
		j := encodeItem(item)
		m := map[string]any{"kind": j.Kind}
		if j.Iname != "" {
			m["iname"] = j.Iname
		}
		if j.InsnID != "" {
			m["insn_id"] = j.InsnID
		}
		if j.Comment != "" {
			m["comment"] = j.Comment
		}
		out[i] = m
	}
	return out
}
