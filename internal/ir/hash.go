package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainKernel   = "loopsched/kernel/v1"
	DomainSchedule = "loopsched/schedule/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// KernelHash computes the content hash of a kernel's scheduling inputs.
// The attached schedule is not part of the identity.
func KernelHash(k *Kernel) (string, error) {
	canonical, err := MarshalCanonical(kernelCanonical(k))
	if err != nil {
		return "", fmt.Errorf("KernelHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainKernel, canonical), nil
}

// ScheduleHash computes the content hash of a schedule.
func ScheduleHash(s Schedule) (string, error) {
	canonical, err := MarshalCanonical(s)
	if err != nil {
		return "", fmt.Errorf("ScheduleHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSchedule, canonical), nil
}

func kernelCanonical(k *Kernel) map[string]any {
	inames := make([]any, len(k.Inames))
	for i, in := range k.Inames {
		inames[i] = map[string]any{
			"name":      in.Name,
			"tag":       string(in.Tag),
			"breakable": in.Breakable,
			"parents":   nonNil(in.Parents),
			"lower":     in.Domain.Lower,
			"upper":     in.Domain.Upper,
			"stride":    in.Domain.Stride,
		}
	}

	insns := make([]any, len(k.Instructions))
	for i, insn := range k.Instructions {
		insns[i] = map[string]any{
			"id":             insn.ID,
			"inames":         nonNil(insn.Inames),
			"deps":           nonNil(insn.Deps),
			"assignee":       insn.Assignee,
			"reads":          nonNil(insn.Reads),
			"boostable_into": nonNil(insn.BoostableInto),
			"tags":           nonNil(insn.Tags),
		}
	}

	temps := make([]any, len(k.Temporaries))
	for i, t := range k.Temporaries {
		temps[i] = map[string]any{
			"name":    t.Name,
			"storage": string(t.Storage),
		}
	}

	return map[string]any{
		"name":            k.Name,
		"inames":          inames,
		"instructions":    insns,
		"temporaries":     temps,
		"lowest_priority": nonNil(k.LowestPriority),
		"loop_priority":   nonNil(k.LoopPriority),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
