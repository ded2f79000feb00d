package discord

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stake-plus/commons/src/events"
)

const (
	MaxDiscordMessageLen = 2000
	SafeChunkLen         = 1900
)

// SplitMessage breaks message into chunks Discord accepts, preferring
// paragraph and then word boundaries.
func SplitMessage(message string) []string {
	if len(message) <= MaxDiscordMessageLen {
		return []string{message}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, paragraph := range strings.Split(message, "\n\n") {
		if cur.Len()+len(paragraph)+2 <= SafeChunkLen {
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(paragraph)
			continue
		}
		flush()
		for _, word := range strings.Fields(paragraph) {
			for len(word) > SafeChunkLen {
				flush()
				chunks = append(chunks, word[:SafeChunkLen])
				word = word[SafeChunkLen:]
			}
			if cur.Len()+len(word)+1 > SafeChunkLen {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteString(" ")
			}
			cur.WriteString(word)
		}
	}
	flush()
	return chunks
}

// announced lists the public transitions posted to the channel. Consent
// and relationship events are private to their parties and never posted.
var announced = map[string]string{
	"ProposalCreated":   "New proposal",
	"ConsensusBlocked":  "Proposal blocked by core concerns",
	"VotingOpened":      "Voting open",
	"ProposalExecuted":  "Proposal resolved",
	"FundsTransferred":  "Treasury payout",
	"MemberJoined":      "Welcome",
	"MemberDeactivated": "Member deactivated",
	"TreasuryDeposit":   "Treasury deposit",
}

// FormatEvent renders m for the announcement channel. ok is false for
// events that are not announced.
func FormatEvent(m events.Message, baseURL string) (text string, ok bool) {
	title, ok := announced[m.Kind]
	if !ok {
		return "", false
	}
	var data map[string]any
	if m.Payload != "" {
		if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
			data = nil
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** · #%d\n", title, m.Seq)
	switch m.Kind {
	case "ProposalCreated":
		fmt.Fprintf(&b, "%s proposal **%s** by `%s`\n", str(data, "type"), str(data, "title"), m.Actor)
		fmt.Fprintf(&b, "Listening until <t:%s:f>\n", str(data, "listeningEnd"))
	case "ConsensusBlocked":
		fmt.Fprintf(&b, "Proposal %s collected %s core concerns and cannot go to a vote.\n", m.EntityID, str(data, "coreConcernCount"))
	case "VotingOpened":
		fmt.Fprintf(&b, "Proposal %s is open for votes until <t:%s:f>. Only members who responded while listening may vote.\n", m.EntityID, str(data, "votingEnd"))
	case "ProposalExecuted":
		outcome := "rejected"
		if data["passed"] == true {
			outcome = "passed"
		}
		fmt.Fprintf(&b, "Proposal %s %s with %s for and %s against (%s votes).\n",
			m.EntityID, outcome, str(data, "forVotes"), str(data, "againstVotes"), str(data, "totalVotes"))
	case "FundsTransferred":
		fmt.Fprintf(&b, "%s sent to `%s` for proposal %s (ref %s).\n", str(data, "amount"), str(data, "recipient"), m.EntityID, str(data, "reference"))
	case "TreasuryDeposit":
		fmt.Fprintf(&b, "%s deposited by `%s`.\n", str(data, "amount"), str(data, "depositor"))
	default:
		fmt.Fprintf(&b, "`%s`\n", m.EntityID)
	}
	if baseURL != "" && m.EntityType == "proposal" {
		b.WriteString(EntityURL(baseURL, "proposals", m.EntityID))
	}
	return strings.TrimRight(b.String(), "\n"), true
}

func str(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return "?"
	}
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprint(v)
}
