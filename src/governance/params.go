package governance

import "fmt"

// Params are the protocol thresholds.
type Params struct {
	// A proposal whose core-concern count reaches this at openVoting is blocked.
	CoreConcernThreshold uint32
	// Minimum number of votes for an outcome to be actionable.
	MinQuorum uint32
	// Minimum floor(for*100/total) for a proposal to pass.
	SupermajorityPercent uint32
	// Upper bound on listening and voting days.
	MaxPhaseDays uint32
}

func DefaultParams() Params {
	return Params{
		CoreConcernThreshold: 3,
		MinQuorum:            3,
		SupermajorityPercent: 60,
		MaxPhaseDays:         30,
	}
}

func (p Params) Validate() error {
	switch {
	case p.CoreConcernThreshold == 0:
		return fmt.Errorf("core concern threshold must be at least 1")
	case p.MinQuorum == 0:
		return fmt.Errorf("min quorum must be at least 1")
	case p.SupermajorityPercent == 0 || p.SupermajorityPercent > 100:
		return fmt.Errorf("supermajority percent must be in 1..100, got %d", p.SupermajorityPercent)
	case p.MaxPhaseDays == 0:
		return fmt.Errorf("max phase days must be at least 1")
	}
	return nil
}

// QuorumMet reports whether total reaches the quorum.
func (p Params) QuorumMet(total uint32) bool {
	return total > 0 && total >= p.MinQuorum
}

// Passes applies the quorum and the integer supermajority rule.
func (p Params) Passes(forVotes, total uint32) bool {
	if !p.QuorumMet(total) {
		return false
	}
	return uint64(forVotes)*100/uint64(total) >= uint64(p.SupermajorityPercent)
}

// Blocks reports whether concerns are enough to block a proposal.
func (p Params) Blocks(concerns uint32) bool {
	return concerns >= p.CoreConcernThreshold
}
