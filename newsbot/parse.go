package newsbot

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/samber/mo"
)

// companionScanWindow is the number of messages fetched on either side of
// an announcement when looking for its video and ping messages
const companionScanWindow = 5

var rolePingPattern = regexp.MustCompile(`^<@&(\d+)>`)

// postedAnnouncement is a published announcement along with the bot
// messages posted alongside it
type postedAnnouncement struct {
	Message      *discordgo.Message
	VideoMessage *discordgo.Message
	PingMessage  *discordgo.Message
}

// isAnnouncement reports whether m looks like a finalized announcement:
// posted by the bot, with a single embed, no content and no components.
func isAnnouncement(m *discordgo.Message, botUserID string) bool {
	if m == nil || m.Author == nil || m.Author.ID != botUserID {
		return false
	}
	return len(m.Embeds) == 1 && m.Content == "" && len(m.Components) == 0
}

// isCompanionCandidate reports whether m is a plain message sent by the
// bot itself, as opposed to an interaction response or a reply (the
// builder's confirmation notice, for example).
func isCompanionCandidate(m *discordgo.Message, botUserID string) bool {
	if m == nil || m.Author == nil || m.Author.ID != botUserID {
		return false
	}
	return m.Type == discordgo.MessageTypeDefault &&
		m.Interaction == nil &&
		m.MessageReference == nil
}

// isVideoMessage reports whether m is a standalone video link posted by
// the bot. Link unfurls are allowed, rich embeds and mentions aren't.
func isVideoMessage(m *discordgo.Message, botUserID string) bool {
	if !isCompanionCandidate(m, botUserID) {
		return false
	}
	if strings.TrimSpace(m.Content) == "" {
		return false
	}
	if len(m.Mentions) > 0 || len(m.MentionRoles) > 0 || m.MentionEveryone {
		return false
	}
	if len(m.Components) > 0 {
		return false
	}
	for _, e := range m.Embeds {
		if e.Type == discordgo.EmbedTypeRich || e.Type == "" {
			return false
		}
	}
	return !rolePingPattern.MatchString(m.Content)
}

// isPingMessage reports whether m is a role ping posted by the bot
func isPingMessage(m *discordgo.Message, botUserID string) bool {
	if !isCompanionCandidate(m, botUserID) {
		return false
	}
	if len(m.Embeds) > 0 || len(m.Components) > 0 {
		return false
	}
	return len(m.MentionRoles) > 0 || rolePingPattern.MatchString(m.Content)
}

// adjacentBotMessage returns the nearest message authored by the bot
// before (or after) m, within companionScanWindow. Returns nil if there
// isn't one.
func adjacentBotMessage(
	session DiscordSessionHandler,
	m *discordgo.Message,
	botUserID string,
	after bool,
) (*discordgo.Message, error) {
	var (
		msgs []*discordgo.Message
		err  error
	)
	if after {
		msgs, err = session.ChannelMessages(m.ChannelID, companionScanWindow, "", m.ID, "")
	} else {
		msgs, err = session.ChannelMessages(m.ChannelID, companionScanWindow, m.ID, "", "")
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching channel history: %w", err)
	}

	// nearest first, regardless of the order the API returned them in
	slices.SortFunc(
		msgs, func(a, b *discordgo.Message) int {
			if a.ID == b.ID {
				return 0
			}
			if snowflakeLess(a.ID, b.ID) == after {
				return -1
			}
			return 1
		},
	)
	for _, msg := range msgs {
		if msg.Author != nil && msg.Author.ID == botUserID {
			return msg, nil
		}
	}
	return nil, nil
}

// findPostedAnnouncement checks m is an announcement and locates the
// video message before it and the ping message after it, if present.
func findPostedAnnouncement(
	session DiscordSessionHandler,
	m *discordgo.Message,
	botUserID string,
) (*postedAnnouncement, error) {
	if !isAnnouncement(m, botUserID) {
		return nil, ErrNotAnAnnouncement
	}
	posted := &postedAnnouncement{Message: m}

	prev, err := adjacentBotMessage(session, m, botUserID, false)
	if err != nil {
		return nil, err
	}
	if isVideoMessage(prev, botUserID) {
		posted.VideoMessage = prev
	}

	next, err := adjacentBotMessage(session, m, botUserID, true)
	if err != nil {
		return nil, err
	}
	if isPingMessage(next, botUserID) {
		posted.PingMessage = next
	}
	return posted, nil
}

// ParseFromPosted reconstructs a Draft from a published announcement.
//
// The reconstruction is heuristic: the embed description is split on the
// first blank line into the link and the body, so a body containing a
// blank line with no link set comes back with its first paragraph as the
// link.
func ParseFromPosted(
	ctx context.Context,
	session DiscordSessionHandler,
	guildID string,
	m *discordgo.Message,
	botUserID string,
	placeholderImage string,
) (*Draft, *postedAnnouncement, error) {
	posted, err := findPostedAnnouncement(session, m, botUserID)
	if err != nil {
		return nil, nil, err
	}

	embed := m.Embeds[0]
	d := NewDraft("", placeholderImage)
	d.Title = embed.Title
	d.ImageURL = ""
	if embed.Image != nil {
		d.ImageURL = embed.Image.URL
	}

	if before, after, found := strings.Cut(embed.Description, "\n\n"); found {
		d.LinkURL = before
		d.Body = after
	} else {
		d.Body = embed.Description
	}

	if embed.Footer == nil || embed.Footer.Text == "" {
		d.Anonymous = true
	} else if name, ok := strings.CutPrefix(embed.Footer.Text, footerPrefix); ok {
		d.AuthorID = findMemberIDByName(ctx, session, guildID, name)
	}

	if posted.VideoMessage != nil {
		d.VideoURL = strings.TrimSpace(posted.VideoMessage.Content)
	}

	if posted.PingMessage != nil {
		mention, preview, _ := strings.Cut(posted.PingMessage.Content, " - ")
		d.PingPreview = strings.TrimSpace(preview)
		if match := rolePingPattern.FindStringSubmatch(mention); match != nil {
			d.PingRole = findRoleByID(session, guildID, match[1])
		}
	}

	if ch, chErr := session.Channel(m.ChannelID); chErr == nil && ch != nil {
		d.TargetChannel = mo.Some(ch)
	}

	return d, posted, nil
}

// findMemberIDByName searches the guild for a member whose username
// matches name, as rendered in an announcement footer. Returns an empty
// string when there's no match.
func findMemberIDByName(
	ctx context.Context,
	session DiscordSessionHandler,
	guildID string,
	name string,
) string {
	if guildID == "" || name == "" {
		return ""
	}
	query, _, _ := strings.Cut(name, "#")
	members, err := session.GuildMembersSearch(guildID, query, 100)
	if err != nil {
		if logger, ok := ContextLogger(ctx); ok {
			logger.WarnContext(ctx, "error searching guild members", "query", query, tint.Err(err))
		}
		return ""
	}
	for _, member := range members {
		if member.User != nil && member.User.String() == name {
			return member.User.ID
		}
	}
	return ""
}

func findRoleByID(
	session DiscordSessionHandler,
	guildID string,
	roleID string,
) mo.Option[*discordgo.Role] {
	if guildID == "" {
		return mo.None[*discordgo.Role]()
	}
	roles, err := session.GuildRoles(guildID)
	if err != nil {
		return mo.None[*discordgo.Role]()
	}
	for _, role := range roles {
		if role.ID == roleID {
			return mo.Some(role)
		}
	}
	return mo.None[*discordgo.Role]()
}
