// Package relay posts notable session notifications to a Discord channel.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tycoon/internal/notify"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
)

var ErrNotConfigured = errors.New("discord token and channel id are required")

type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Relay struct {
	sender    Sender
	channelID string
	log       *slog.Logger
	posted    int
}

// NewDiscord builds a relay over the Discord REST API. No gateway connection
// is opened.
func NewDiscord(token, channelID string, logger *slog.Logger) (*Relay, error) {
	token = strings.TrimSpace(token)
	channelID = strings.TrimSpace(channelID)
	if token == "" || channelID == "" {
		return nil, ErrNotConfigured
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return New(dg, channelID, logger), nil
}

func New(sender Sender, channelID string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{sender: sender, channelID: channelID, log: logger}
}

// Run posts formatted envelopes until ctx is done or the feed closes. Send
// failures are logged and skipped.
func (r *Relay) Run(ctx context.Context, feed <-chan notify.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-feed:
			if !ok {
				return nil
			}
			msg, ok := Format(env)
			if !ok {
				continue
			}
			if _, err := r.sender.ChannelMessageSend(r.channelID, msg, discordgo.WithContext(ctx)); err != nil {
				r.log.Warn("discord post failed", "kind", env.Type, "err", err)
				continue
			}
			r.posted++
		}
	}
}

func (r *Relay) Posted() int {
	return r.posted
}

// Format renders the notifications worth announcing. Everything else reports
// false.
func Format(env notify.Envelope) (string, bool) {
	switch p := env.Payload.(type) {
	case notify.EventApplied:
		line := fmt.Sprintf("📰 **%s**", p.Title)
		if p.Description != "" {
			line += "\n" + p.Description
		}
		return line, true
	case notify.LevelUp:
		return fmt.Sprintf("⭐ Reached level %d (%s XP)", p.Level, humanize.Comma(p.XP)), true
	case notify.AchievementUnlocked:
		return fmt.Sprintf("🏆 Achievement unlocked: **%s** - %s", p.Name, p.Description), true
	case notify.GameEnded:
		return fmt.Sprintf("🏁 **%s** %s\nFinal net worth: %s", p.Title, p.Message, money(p.NetWorth)), true
	default:
		return "", false
	}
}

func money(v int64) string {
	if v < 0 {
		return "-$" + humanize.Comma(-v)
	}
	return "$" + humanize.Comma(v)
}
