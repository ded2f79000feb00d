package governance

import (
	"time"

	"github.com/stake-plus/commons/src/shared/gov"
)

// Phase is what readers should treat a proposal as. Stored status lags the
// clock until someone calls the advancing operation, so an elapsed
// Listening proposal reads as ListeningClosed until openVoting runs.
type Phase string

const (
	PhaseListening        Phase = "Listening"
	PhaseListeningClosed  Phase = "ListeningClosed"
	PhaseConsensusBlocked Phase = "ConsensusBlocked"
	PhaseVoting           Phase = "Voting"
	PhaseVotingClosed     Phase = "VotingClosed"
	PhaseExecuted         Phase = "Executed"
	PhaseRejected         Phase = "Rejected"
)

func EffectivePhase(p *gov.Proposal, now time.Time) Phase {
	switch p.Status {
	case gov.StatusListening:
		if !now.Before(p.ListeningEnd) {
			return PhaseListeningClosed
		}
		return PhaseListening
	case gov.StatusVoting:
		if p.VotingEnd != nil && !now.Before(*p.VotingEnd) {
			return PhaseVotingClosed
		}
		return PhaseVoting
	case gov.StatusConsensusBlocked:
		return PhaseConsensusBlocked
	case gov.StatusExecuted:
		return PhaseExecuted
	default:
		return PhaseRejected
	}
}

// View is a proposal plus its display phase.
type View struct {
	gov.Proposal
	Phase Phase `json:"phase"`
}

func viewOf(p gov.Proposal, now time.Time) View {
	return View{Proposal: p, Phase: EffectivePhase(&p, now)}
}
