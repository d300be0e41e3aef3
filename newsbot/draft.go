package newsbot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/samber/mo"
)

const (
	defaultDraftTitle = "Announcement"
	footerPrefix      = "This post was written by "
	unknownAuthor     = "Unknown Author"

	bulletGlyph    = "➣"
	subBulletGlyph = "ㅤ✦"
)

// OptionID identifies a draft field that can be set from the builder
type OptionID string

const (
	OptionTitle       OptionID = "title"
	OptionURL         OptionID = "url"
	OptionDescription OptionID = "description"
	OptionVideoURL    OptionID = "video_url"
	OptionImageURL    OptionID = "image_url"
	OptionChannel     OptionID = "channel"
	OptionPing        OptionID = "ping"
	OptionPingPreview OptionID = "ping_preview"
)

// Option describes one builder button and the modal it opens
type Option struct {
	ID          OptionID
	Name        string
	Placeholder string
	Row         int
	Long        bool
}

// Required reports whether the modal input must be filled
func (o Option) Required() bool {
	return o.ID == OptionTitle || o.ID == OptionChannel
}

var draftOptions = []Option{
	{ID: OptionTitle, Name: "Title"},
	{ID: OptionURL, Name: "URL", Placeholder: "https://robertsspaceindustries.com/comm-link/..."},
	{
		ID:          OptionDescription,
		Name:        "Description",
		Placeholder: "Lines starting with - become ➣, lines starting with + become ✦",
		Long:        true,
	},
	{ID: OptionVideoURL, Name: "Video", Placeholder: "https://youtu.be/..."},
	{ID: OptionImageURL, Name: "Image", Placeholder: "https://..."},
	{ID: OptionChannel, Name: "Channel", Placeholder: "Channel name or ID", Row: 1},
	{ID: OptionPing, Name: "Ping", Placeholder: "Role name or ID", Row: 1},
	{ID: OptionPingPreview, Name: "Ping Preview", Placeholder: "Use the previews command for examples", Row: 1},
}

func optionByID(id OptionID) (Option, bool) {
	for _, o := range draftOptions {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// GuildDirectory looks up the channels and roles of a single guild
type GuildDirectory interface {
	Channels() ([]*discordgo.Channel, error)
	Roles() ([]*discordgo.Role, error)
}

// AuthorResolver returns the display name for a user ID
type AuthorResolver interface {
	AuthorName(ctx context.Context, userID string) (string, error)
}

type sessionGuildDirectory struct {
	session DiscordSessionHandler
	guildID string
}

func (g sessionGuildDirectory) Channels() ([]*discordgo.Channel, error) {
	return g.session.GuildChannels(g.guildID)
}

func (g sessionGuildDirectory) Roles() ([]*discordgo.Role, error) {
	return g.session.GuildRoles(g.guildID)
}

type sessionAuthorResolver struct {
	session DiscordSessionHandler
}

func (r sessionAuthorResolver) AuthorName(_ context.Context, userID string) (string, error) {
	u, err := r.session.User(userID)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Draft is an announcement being composed in a builder session
type Draft struct {
	Title         string
	LinkURL       string
	Body          string
	VideoURL      string
	ImageURL      string
	TargetChannel mo.Option[*discordgo.Channel]
	PingRole      mo.Option[*discordgo.Role]
	PingPreview   string
	AuthorID      string
	Anonymous     bool
	Notify        bool

	// placeholderImage is the default banner, cleared when a video is set
	placeholderImage string
}

// NewDraft returns a draft with the default title and placeholder image
func NewDraft(authorID string, placeholderImage string) *Draft {
	return &Draft{
		Title:            defaultDraftTitle,
		ImageURL:         placeholderImage,
		AuthorID:         authorID,
		placeholderImage: placeholderImage,
		TargetChannel:    mo.None[*discordgo.Channel](),
		PingRole:         mo.None[*discordgo.Role](),
	}
}

// CanNotify reports whether the target channel supports publishing
// to following servers
func (d *Draft) CanNotify() bool {
	ch, ok := d.TargetChannel.Get()
	return ok && ch != nil && ch.Type == discordgo.ChannelTypeGuildNews
}

// ToggleNotify flips Notify, leaving it false when the channel
// can't be published from.
func (d *Draft) ToggleNotify() {
	if !d.CanNotify() {
		d.Notify = false
		return
	}
	d.Notify = !d.Notify
}

func (d *Draft) ToggleAnonymous() {
	d.Anonymous = !d.Anonymous
}

// SetOption sets the given field from a raw modal value. Channel and ping
// values are resolved against dir, by name (case-insensitive) or by ID.
// When resolution fails, ErrOptionResolution is returned and the draft is
// left untouched. An empty channel or ping clears the field. Every other
// value is stored as typed.
func (d *Draft) SetOption(id OptionID, raw string, dir GuildDirectory) error {
	value := strings.TrimSpace(raw)
	switch id {
	case OptionTitle:
		d.Title = raw
	case OptionURL:
		d.LinkURL = raw
	case OptionDescription:
		d.Body = reformatDescription(raw)
	case OptionVideoURL:
		d.VideoURL = raw
		if d.ImageURL == d.placeholderImage {
			d.ImageURL = ""
		}
	case OptionImageURL:
		d.ImageURL = raw
	case OptionPingPreview:
		d.PingPreview = raw
	case OptionChannel:
		if value == "" {
			d.TargetChannel = mo.None[*discordgo.Channel]()
			d.Notify = false
			return nil
		}
		ch, err := resolveChannel(dir, value)
		if err != nil {
			return err
		}
		d.TargetChannel = mo.Some(ch)
		if !d.CanNotify() {
			d.Notify = false
		}
	case OptionPing:
		if value == "" {
			d.PingRole = mo.None[*discordgo.Role]()
			return nil
		}
		role, err := resolveRole(dir, value)
		if err != nil {
			return err
		}
		d.PingRole = mo.Some(role)
	default:
		return fmt.Errorf("unknown option: %q", id)
	}
	return nil
}

// OptionValue returns the current value of a field as it would be typed
// into its modal
func (d *Draft) OptionValue(id OptionID) string {
	switch id {
	case OptionTitle:
		return d.Title
	case OptionURL:
		return d.LinkURL
	case OptionDescription:
		return d.Body
	case OptionVideoURL:
		return d.VideoURL
	case OptionImageURL:
		return d.ImageURL
	case OptionPingPreview:
		return d.PingPreview
	case OptionChannel:
		if ch, ok := d.TargetChannel.Get(); ok {
			return ch.Name
		}
	case OptionPing:
		if role, ok := d.PingRole.Get(); ok {
			return role.Name
		}
	}
	return ""
}

// Validate checks the draft can be posted. Edits of an existing post
// are always valid.
func (d *Draft) Validate(mode SessionMode) error {
	if mode == ModeEdit {
		return nil
	}
	if d.TargetChannel.IsAbsent() {
		return &ValidationError{Message: "You must have a channel selected!"}
	}
	if d.PingPreview != "" && d.PingRole.IsAbsent() {
		return &ValidationError{
			Message: "You cannot have a ping preview selected without a ping!",
		}
	}
	return nil
}

// Render builds the announcement embed. The footer credits the author
// unless the draft is anonymous, or showAuthor overrides that.
func (d *Draft) Render(
	ctx context.Context,
	authors AuthorResolver,
	color int,
	showAuthor bool,
) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       d.Title,
		Description: d.description(),
		Color:       color,
	}
	if d.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: d.ImageURL}
	}
	if !d.Anonymous || showAuthor {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: d.footerText(ctx, authors),
		}
	}
	return embed
}

func (d *Draft) description() string {
	switch {
	case d.LinkURL != "" && d.Body != "":
		return d.LinkURL + "\n\n" + d.Body
	case d.LinkURL != "":
		return d.LinkURL
	default:
		return d.Body
	}
}

func (d *Draft) footerText(ctx context.Context, authors AuthorResolver) string {
	if d.AuthorID == "" || authors == nil {
		return unknownAuthor
	}
	name, err := authors.AuthorName(ctx, d.AuthorID)
	if err != nil || name == "" {
		if logger, ok := ContextLogger(ctx); ok && err != nil {
			logger.WarnContext(
				ctx,
				"unable to resolve author",
				"author_id", d.AuthorID,
				tint.Err(err),
			)
		}
		return unknownAuthor
	}
	return footerPrefix + name
}

// pingContent returns the role ping message content, or an empty string
// if no role is set
func (d *Draft) pingContent() string {
	role, ok := d.PingRole.Get()
	if !ok {
		return ""
	}
	if d.PingPreview != "" {
		return role.Mention() + " - " + d.PingPreview
	}
	return role.Mention()
}

func (d *Draft) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("title", d.Title),
		slog.Bool("anonymous", d.Anonymous),
		slog.Bool("notify", d.Notify),
	}
	if ch, ok := d.TargetChannel.Get(); ok {
		attrs = append(attrs, slog.String("channel_id", ch.ID))
	}
	if role, ok := d.PingRole.Get(); ok {
		attrs = append(attrs, slog.String("role_id", role.ID))
	}
	return slog.GroupValue(attrs...)
}

// reformatDescription replaces a leading "-" on each line with a bullet
// and a leading "+" with an indented sub-bullet
func reformatDescription(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "-"):
			lines[i] = bulletGlyph + line[1:]
		case strings.HasPrefix(line, "+"):
			lines[i] = subBulletGlyph + line[1:]
		}
	}
	return strings.Join(lines, "\n")
}

func resolveChannel(dir GuildDirectory, value string) (*discordgo.Channel, error) {
	if dir == nil {
		return nil, ErrOptionResolution
	}
	channels, err := dir.Channels()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOptionResolution, err)
	}
	channels = slices.DeleteFunc(
		slices.Clone(channels), func(ch *discordgo.Channel) bool {
			return ch.Type != discordgo.ChannelTypeGuildText &&
				ch.Type != discordgo.ChannelTypeGuildNews
		},
	)
	name := strings.TrimPrefix(value, "#")
	for _, ch := range channels {
		if strings.EqualFold(ch.Name, name) {
			return ch, nil
		}
	}
	id := strings.Trim(name, "<>#")
	if isAllDigits(id) {
		for _, ch := range channels {
			if ch.ID == id {
				return ch, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: channel %q", ErrOptionResolution, value)
}

func resolveRole(dir GuildDirectory, value string) (*discordgo.Role, error) {
	if dir == nil {
		return nil, ErrOptionResolution
	}
	roles, err := dir.Roles()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOptionResolution, err)
	}
	name := strings.TrimPrefix(value, "@")
	for _, role := range roles {
		if strings.EqualFold(role.Name, name) {
			return role, nil
		}
	}
	id := strings.Trim(name, "<>@&")
	if isAllDigits(id) {
		for _, role := range roles {
			if role.ID == id {
				return role, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: role %q", ErrOptionResolution, value)
}
