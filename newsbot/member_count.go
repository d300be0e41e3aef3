package newsbot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

const memberCountNameFormat = "Members: %d"

// discord allows two channel renames per ten minutes
var (
	memberCountRenameLimit = rate.Every(5 * time.Minute)
	memberCountRenameBurst = 2
)

// memberCounter periodically renames the configured channels to show the
// guild's member count
type memberCounter struct {
	bot    *Bot
	config *MemberCountConfig
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newMemberCounter(b *Bot, config *MemberCountConfig, logger *slog.Logger) *memberCounter {
	return &memberCounter{
		bot:      b,
		config:   config,
		logger:   logger,
		limiters: map[string]*rate.Limiter{},
	}
}

func (m *memberCounter) enabled() bool {
	return m.config != nil &&
		len(m.config.ChannelIDs) > 0 &&
		m.config.Interval > 0 &&
		m.bot.config.Bot.ExtensionEnabled(ExtensionRStarCitizen)
}

// Run updates every channel immediately, then on each interval, until
// ctx is canceled
func (m *memberCounter) Run(ctx context.Context) {
	m.logger.InfoContext(
		ctx,
		"starting member count updates",
		"channel_ids", m.config.ChannelIDs,
		"interval", m.config.Interval,
	)
	m.updateAll(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "stopping member count updates")
			return
		case <-ticker.C:
			m.updateAll(ctx)
		}
	}
}

func (m *memberCounter) updateAll(ctx context.Context) {
	for _, channelID := range m.config.ChannelIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.update(ctx, channelID); err != nil {
			m.logger.ErrorContext(
				ctx,
				"error updating member count",
				"channel_id", channelID,
				tint.Err(err),
			)
		}
	}
}

func (m *memberCounter) limiter(channelID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(memberCountRenameLimit, memberCountRenameBurst)
		m.limiters[channelID] = l
	}
	return l
}

// update renames the channel to the current member count. It returns
// false if the channel wasn't renamed, either because the name was
// already current or the rename limit was reached.
func (m *memberCounter) update(ctx context.Context, channelID string) (bool, error) {
	session := m.bot.discord.session
	ch, err := session.Channel(channelID)
	if err != nil {
		return false, fmt.Errorf("error getting channel: %w", err)
	}
	guild, err := session.GuildWithCounts(ch.GuildID)
	if err != nil {
		return false, fmt.Errorf("error getting guild: %w", err)
	}

	name := fmt.Sprintf(memberCountNameFormat, guild.ApproximateMemberCount)
	if ch.Name == name {
		m.logger.DebugContext(ctx, "member count unchanged", "channel_id", channelID)
		return false, nil
	}
	if !m.limiter(channelID).Allow() {
		m.logger.WarnContext(ctx, "channel rename rate limited", "channel_id", channelID)
		return false, nil
	}
	if _, err = session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}); err != nil {
		return false, fmt.Errorf("error renaming channel: %w", err)
	}
	m.logger.InfoContext(ctx, "updated member count", "channel_id", channelID, "name", name)
	return true, nil
}
