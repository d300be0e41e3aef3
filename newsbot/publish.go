package newsbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

const (
	postedReply           = "Your announcement was posted! 🎉 (%s)\n" + upvoteGif
	editedReply           = "Your announcement was edited! 🎉 (%s)"
	notAnAnnouncementText = "That is not an announcement!"
	deletedReply          = "Deleted that announcement. 👌"
	messageNotFoundText   = "Could not find that message."
)

// publishResult holds the messages created when publishing a draft
type publishResult struct {
	VideoMessage *discordgo.Message
	Message      *discordgo.Message
	PingMessage  *discordgo.Message

	// Reposts are "channelID-messageID" references of the reposted embeds
	Reposts     []string
	Crossposted bool
}

// reactionEmojiID converts a custom emoji mention ("<:name:id>" or
// "<a:name:id>") to the "name:id" form accepted by the reactions
// endpoint. Unicode emoji are returned unchanged.
func reactionEmojiID(emoji string) string {
	emoji = strings.TrimSpace(emoji)
	emoji = strings.TrimPrefix(emoji, "<")
	emoji = strings.TrimSuffix(emoji, ">")
	emoji = strings.TrimPrefix(emoji, "a:")
	return strings.TrimPrefix(emoji, ":")
}

// publishDraft posts a finished draft to its target channel: the video
// message, the embed, the reaction, the reposts, the role ping and,
// if requested, the crossposts. If the embed itself couldn't be sent,
// result.Message is nil. Errors from the remaining steps are joined and
// returned alongside the result.
func (b *Bot) publishDraft(
	ctx context.Context,
	d *Draft,
	guildID string,
) (*publishResult, error) {
	ctx, logger := b.getLogger(ctx)
	session := b.discord.session
	result := &publishResult{}

	ch, ok := d.TargetChannel.Get()
	if !ok || ch == nil {
		return result, &ValidationError{Message: "You must have a channel selected!"}
	}

	var errs []error

	if d.VideoURL != "" {
		video, err := session.ChannelMessageSendComplex(
			ch.ID,
			&discordgo.MessageSend{Content: d.VideoURL, AllowedMentions: noMentions()},
		)
		if err != nil {
			return result, fmt.Errorf("error sending video message: %w", err)
		}
		result.VideoMessage = video
	}

	msg, err := session.ChannelMessageSendComplex(
		ch.ID,
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				d.Render(ctx, b.authors(), b.config.Bot.EmbedColor, false),
			},
			AllowedMentions: noMentions(),
		},
	)
	if err != nil {
		if result.VideoMessage != nil {
			if delErr := session.ChannelMessageDelete(ch.ID, result.VideoMessage.ID); delErr != nil {
				errs = append(errs, fmt.Errorf("error removing video message: %w", delErr))
			}
			result.VideoMessage = nil
		}
		errs = append(errs, fmt.Errorf("error sending announcement: %w", err))
		return result, errors.Join(errs...)
	}
	result.Message = msg
	logger.InfoContext(ctx, "posted announcement", messageLogAttrs(msg)...)

	if emoji := reactionEmojiID(b.config.Bot.AnnouncementEmoji); emoji != "" {
		if reactErr := session.MessageReactionAdd(ch.ID, msg.ID, emoji); reactErr != nil {
			errs = append(errs, fmt.Errorf("error adding reaction: %w", reactErr))
		}
	}

	reposts, repostErr := b.repost(ctx, d, guildID, msg)
	result.Reposts = reposts
	if repostErr != nil {
		errs = append(errs, repostErr)
	}

	if content := d.pingContent(); content != "" {
		role := d.PingRole.MustGet()
		ping, pingErr := session.ChannelMessageSendComplex(
			ch.ID,
			&discordgo.MessageSend{
				Content: content,
				AllowedMentions: &discordgo.MessageAllowedMentions{
					Parse: []discordgo.AllowedMentionType{},
					Roles: []string{role.ID},
				},
			},
		)
		if pingErr != nil {
			errs = append(errs, fmt.Errorf("error sending ping: %w", pingErr))
		} else {
			result.PingMessage = ping
		}
	}

	if d.Notify && d.CanNotify() {
		crossposted, crosspostErr := b.crosspost(ctx, ch.ID, result.VideoMessage, msg)
		result.Crossposted = crossposted
		if crosspostErr != nil {
			errs = append(errs, crosspostErr)
		}
	}

	return result, errors.Join(errs...)
}

// repost sends a copy of the announcement to each repost channel: the
// video, the embed with the author shown, then a link to the original.
// Channels are handled concurrently, messages within a channel in order.
func (b *Bot) repost(
	ctx context.Context,
	d *Draft,
	guildID string,
	original *discordgo.Message,
) ([]string, error) {
	channels := b.config.Bot.RepostChannels
	if len(channels) == 0 {
		return []string{}, nil
	}
	session := b.discord.session
	embed := d.Render(ctx, b.authors(), b.config.Bot.EmbedColor, true)
	jumpURL := messageJumpURL(guildID, original)

	var (
		mu      sync.Mutex
		reposts = make([]string, 0, len(channels))
	)
	g, _ := errgroup.WithContext(ctx)
	for _, channelID := range channels {
		channelID := channelID
		g.Go(
			func() error {
				if d.VideoURL != "" {
					if _, err := session.ChannelMessageSendComplex(
						channelID,
						&discordgo.MessageSend{Content: d.VideoURL, AllowedMentions: noMentions()},
					); err != nil {
						return fmt.Errorf("error reposting video to %s: %w", channelID, err)
					}
				}
				copied, err := session.ChannelMessageSendComplex(
					channelID,
					&discordgo.MessageSend{
						Embeds:          []*discordgo.MessageEmbed{embed},
						AllowedMentions: noMentions(),
					},
				)
				if err != nil {
					return fmt.Errorf("error reposting announcement to %s: %w", channelID, err)
				}
				mu.Lock()
				reposts = append(reposts, channelID+"-"+copied.ID)
				mu.Unlock()

				if _, err = session.ChannelMessageSendComplex(
					channelID,
					&discordgo.MessageSend{Content: jumpURL, AllowedMentions: noMentions()},
				); err != nil {
					return fmt.Errorf("error reposting link to %s: %w", channelID, err)
				}
				return nil
			},
		)
	}
	err := g.Wait()
	return reposts, err
}

// crosspost publishes the video message (if any) and the announcement to
// following servers. Missing permissions are logged and ignored.
func (b *Bot) crosspost(
	ctx context.Context,
	channelID string,
	video *discordgo.Message,
	msg *discordgo.Message,
) (bool, error) {
	ctx, logger := b.getLogger(ctx)
	session := b.discord.session
	if video != nil {
		if _, err := session.ChannelMessageCrosspost(channelID, video.ID); err != nil {
			if isForbidden(err) {
				logger.WarnContext(ctx, "not allowed to crosspost", "channel_id", channelID)
				return false, nil
			}
			return false, fmt.Errorf("error crossposting video: %w", err)
		}
	}
	if _, err := session.ChannelMessageCrosspost(channelID, msg.ID); err != nil {
		if isForbidden(err) {
			logger.WarnContext(ctx, "not allowed to crosspost", "channel_id", channelID)
			return false, nil
		}
		return false, fmt.Errorf("error crossposting announcement: %w", err)
	}
	return true, nil
}

// applyEdit overwrites a published announcement with the draft. The
// footer is dropped. The video message is updated in place, or removed
// if the video link was cleared.
func (b *Bot) applyEdit(
	ctx context.Context,
	d *Draft,
	target *postedAnnouncement,
) error {
	session := b.discord.session
	embed := d.Render(ctx, b.authors(), b.config.Bot.EmbedColor, false)
	embed.Footer = nil

	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := session.ChannelMessageEditComplex(
		&discordgo.MessageEdit{
			ID:      target.Message.ID,
			Channel: target.Message.ChannelID,
			Embeds:  &embeds,
		},
	); err != nil {
		return fmt.Errorf("error editing announcement: %w", err)
	}

	video := target.VideoMessage
	if video == nil || d.VideoURL == strings.TrimSpace(video.Content) {
		return nil
	}
	if d.VideoURL == "" {
		if err := session.ChannelMessageDelete(video.ChannelID, video.ID); err != nil && !isNotFound(err) {
			return fmt.Errorf("error removing video message: %w", err)
		}
		return nil
	}
	content := d.VideoURL
	if _, err := session.ChannelMessageEditComplex(
		&discordgo.MessageEdit{
			ID:      video.ID,
			Channel: video.ChannelID,
			Content: &content,
		},
	); err != nil {
		return fmt.Errorf("error editing video message: %w", err)
	}
	return nil
}

// deleteAnnouncement removes a published announcement along with its
// video and ping messages
func (b *Bot) deleteAnnouncement(ctx context.Context, m *discordgo.Message) error {
	ctx, logger := b.getLogger(ctx)
	session := b.discord.session

	posted, err := findPostedAnnouncement(session, m, b.discord.BotUserID())
	if err != nil {
		return err
	}

	var errs []error
	for _, companion := range []*discordgo.Message{posted.VideoMessage, posted.PingMessage} {
		if companion == nil {
			continue
		}
		if delErr := session.ChannelMessageDelete(companion.ChannelID, companion.ID); delErr != nil &&
			!isNotFound(delErr) {
			errs = append(errs, delErr)
		}
	}
	if delErr := session.ChannelMessageDelete(m.ChannelID, m.ID); delErr != nil {
		errs = append(errs, fmt.Errorf("error deleting announcement: %w", delErr))
		return errors.Join(errs...)
	}
	logger.InfoContext(ctx, "deleted announcement", messageLogAttrs(m)...)
	b.recordDeleted(ctx, m.ID)

	if len(errs) > 0 {
		logger.WarnContext(ctx, "error deleting companion messages", tint.Err(errors.Join(errs...)))
	}
	return nil
}

// fetchReferencedMessage resolves a message reference (link, ID pair or
// bare ID) and fetches the message
func (b *Bot) fetchReferencedMessage(
	ref string,
	defaultChannelID string,
) (*discordgo.Message, error) {
	channelID, messageID, err := parseMessageReference(ref, defaultChannelID)
	if err != nil {
		return nil, err
	}
	m, err := b.discord.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessageNotFound, err)
	}
	if m.ChannelID == "" {
		m.ChannelID = channelID
	}
	return m, nil
}
