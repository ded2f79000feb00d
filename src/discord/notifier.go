// Package discord posts public governance transitions to a Discord channel.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/stake-plus/commons/src/events"
)

// Sender is the part of *discordgo.Session the notifier uses.
type Sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Source yields committed ledger entries; *events.Reader implements it.
type Source interface {
	Next(ctx context.Context, count int64) ([]events.Message, error)
}

type Notifier struct {
	sender    Sender
	source    Source
	channelID string
	baseURL   string
	log       zerolog.Logger
	backoff   time.Duration
}

func NewNotifier(sender Sender, source Source, channelID, baseURL string, log zerolog.Logger) *Notifier {
	return &Notifier{
		sender:    sender,
		source:    source,
		channelID: channelID,
		baseURL:   baseURL,
		log:       log,
		backoff:   5 * time.Second,
	}
}

// Run tails the event stream until ctx is cancelled. Delivery is best
// effort: a failed post is logged and skipped.
func (n *Notifier) Run(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := n.source.Next(ctx, 50)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.log.Warn().Err(err).Msg("discord notifier: read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(n.backoff):
			}
			continue
		}
		for _, m := range msgs {
			if err := n.Post(m); err != nil {
				n.log.Warn().Err(err).Uint64("seq", m.Seq).Str("kind", m.Kind).Msg("discord notifier: post failed")
			}
		}
	}
}

// Post sends one event if it is announced.
func (n *Notifier) Post(m events.Message) error {
	text, ok := FormatEvent(m, n.baseURL)
	if !ok {
		return nil
	}
	for _, chunk := range SplitMessage(text) {
		if _, err := n.sender.ChannelMessageSend(n.channelID, chunk); err != nil {
			return fmt.Errorf("send to %s: %w", n.channelID, err)
		}
	}
	return nil
}

// Open starts a bot session for token.
func Open(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord open: %w", err)
	}
	return s, nil
}
