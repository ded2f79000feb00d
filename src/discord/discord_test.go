package discord

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/commons/src/events"
)

type fakeSender struct {
	sent []string
	fail bool
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.fail {
		return nil, errors.New("discord down")
	}
	f.sent = append(f.sent, content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

// scripted returns its batches in order, then cancels the run.
type scripted struct {
	batches [][]events.Message
	cancel  context.CancelFunc
}

func (s *scripted) Next(context.Context, int64) ([]events.Message, error) {
	if len(s.batches) == 0 {
		s.cancel()
		return nil, nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitMessage("short"))

	long := strings.Repeat("word ", 900) + "\n\n" + strings.Repeat("x", 4000)
	chunks := SplitMessage(long)
	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), MaxDiscordMessageLen)
	}
}

func TestFormatEvent(t *testing.T) {
	text, ok := FormatEvent(events.Message{
		Seq: 7, Kind: "ProposalExecuted", EntityType: "proposal", EntityID: "3",
		Payload: `{"againstVotes":1,"forVotes":4,"id":3,"passed":true,"status":"Executed","totalVotes":5}`,
	}, "https://commons.example/")
	require.True(t, ok)
	assert.Contains(t, text, "Proposal 3 passed with 4 for and 1 against (5 votes)")
	assert.Contains(t, text, "<https://commons.example/proposals/3>")

	_, ok = FormatEvent(events.Message{Kind: "RelationshipEstablished", EntityType: "relationship"}, "")
	assert.False(t, ok)
}

func TestNotifierPostsAnnouncedEventsOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scripted{cancel: cancel, batches: [][]events.Message{{
		{Seq: 1, Kind: "MemberJoined", EntityType: "member", EntityID: "alice", Actor: "alice"},
		{Seq: 2, Kind: "RelationshipProposed", EntityType: "consent", EntityID: "0xabc"},
		{Seq: 3, Kind: "TreasuryDeposit", EntityType: "treasury", EntityID: "1", Payload: `{"amount":500,"depositor":"root"}`},
	}}}
	sender := &fakeSender{}

	NewNotifier(sender, src, "chan", "", zerolog.Nop()).Run(ctx)

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0], "Welcome")
	assert.Contains(t, sender.sent[1], "500 deposited by `root`")
}

func TestPostReportsSendFailure(t *testing.T) {
	n := NewNotifier(&fakeSender{fail: true}, nil, "chan", "", zerolog.Nop())
	err := n.Post(events.Message{Kind: "MemberJoined", EntityID: "alice"})
	assert.Error(t, err)
	assert.NoError(t, n.Post(events.Message{Kind: "Voted"}))
}
