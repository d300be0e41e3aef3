package newsbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	slashCommandPrefix = "/"

	CommandAnnouncements = "announcements"
	CommandTemplates     = "templates"
	CommandTemplate      = "template"
	CommandPreviews      = "previews"
	CommandIDs           = "ids"
	CommandChannels      = "channels"
	CommandInstructions  = "instructions"
	CommandModmailClose  = "mmc"

	SubcommandCreate       = "create"
	SubcommandEdit         = "edit"
	SubcommandDelete       = "delete"
	SubcommandInstructions = "instructions"
	SubcommandList         = "list"
	SubcommandView         = "view"

	MessageCommandEdit   = "Edit Announcement"
	MessageCommandDelete = "Delete Announcement"

	commandOptionTemplate = "template"
	commandOptionMessage  = "message"
	commandOptionName     = "name"

	permissionDeniedText = "You do not have permission to use this command."
	guildOnlyText        = "This command can only be used in a server."
	missingArgumentText  = "Missing argument: `%s`"
)

// commandRequest is a command invocation, from either a text message or a
// slash/context menu command
type commandRequest struct {
	// path is the canonical command, ex: "announcements create"
	path      string
	args      string
	prefix    string
	guildID   string
	channelID string
	userID    string
	roleIDs   []string

	// target is the message a context menu command was used on
	target *discordgo.Message

	responder Responder
}

type commandFunc func(ctx context.Context, req *commandRequest) error

// botCommand describes a command (or command group) and the extension
// that provides it
type botCommand struct {
	Name        string
	Aliases     []string
	Brief       string
	Usage       string
	Extension   string
	Restricted  bool
	Run         commandFunc
	Subcommands []*botCommand
}

func (c *botCommand) matches(name string) bool {
	name = strings.ToLower(name)
	return c.Name == name || slices.Contains(c.Aliases, name)
}

func (c *botCommand) subcommand(name string) *botCommand {
	for _, sub := range c.Subcommands {
		if sub.matches(name) {
			return sub
		}
	}
	return nil
}

// commandTree returns the commands provided by the enabled extensions
func (b *Bot) commandTree() []*botCommand {
	all := []*botCommand{
		{
			Name:      CommandAnnouncements,
			Aliases:   []string{"announcement", "news", "embed"},
			Brief:     "Commands relating to the r/starcitizen Discord news system.",
			Extension: ExtensionAnnouncements,
			Subcommands: []*botCommand{
				{
					Name:       SubcommandCreate,
					Aliases:    []string{"post"},
					Brief:      "Creates and sends a new announcement.",
					Usage:      "[template]",
					Restricted: true,
					Run:        b.cmdCreate,
				},
				{
					Name:       SubcommandEdit,
					Brief:      "Edits an existing announcement.",
					Usage:      "<message>",
					Restricted: true,
					Run:        b.cmdEdit,
				},
				{
					Name:       SubcommandDelete,
					Brief:      "Deletes an announcement.",
					Usage:      "<message>",
					Restricted: true,
					Run:        b.cmdDelete,
				},
				{
					Name:       SubcommandInstructions,
					Brief:      "Gives you instructions for using the announcement system.",
					Restricted: true,
					Run:        b.cmdInstructions,
				},
			},
		},
		{
			Name:       CommandInstructions,
			Brief:      "Gives you instructions for using the announcement system.",
			Extension:  ExtensionAnnouncements,
			Restricted: true,
			Run:        b.cmdInstructions,
		},
		{
			Name:      CommandTemplates,
			Brief:     "Commands that help with designing embeds for the news system.",
			Extension: ExtensionTemplates,
			Subcommands: []*botCommand{
				{
					Name:       SubcommandList,
					Brief:      "Lists all available templates.",
					Restricted: true,
					Run:        b.cmdTemplateList,
				},
				{
					Name:       SubcommandView,
					Brief:      "Shows a template.",
					Usage:      "<name>",
					Restricted: true,
					Run:        b.cmdTemplateView,
				},
			},
		},
		{
			Name:       CommandTemplate,
			Brief:      `A shortcut to the "templates view" command.`,
			Usage:      "<name>",
			Extension:  ExtensionTemplates,
			Restricted: true,
			Run:        b.cmdTemplateView,
		},
		{
			Name:       CommandPreviews,
			Brief:      "Shows all the possible ping previews.",
			Extension:  ExtensionTemplates,
			Restricted: true,
			Run:        b.cmdPreviews,
		},
		{
			Name:       CommandIDs,
			Aliases:    []string{CommandChannels},
			Brief:      "Shows all the channel and role IDs for announcements.",
			Extension:  ExtensionTemplates,
			Restricted: true,
			Run:        b.cmdIDs,
		},
		{
			Name:      CommandModmailClose,
			Brief:     "Modmail Close Message",
			Extension: ExtensionRStarCitizen,
			Run:       b.cmdModmailClose,
		},
	}

	enabled := make([]*botCommand, 0, len(all))
	for _, c := range all {
		if b.config.Bot.ExtensionEnabled(c.Extension) {
			enabled = append(enabled, c)
		}
	}
	return enabled
}

// resolveCommand finds the command for the given words. The returned
// request path and args reflect the matched command. If a group is
// matched without a valid subcommand, the group is returned.
func resolveCommand(tree []*botCommand, words []string) (
	cmd *botCommand,
	group *botCommand,
	args []string,
) {
	if len(words) == 0 {
		return nil, nil, nil
	}
	for _, c := range tree {
		if !c.matches(words[0]) {
			continue
		}
		if len(c.Subcommands) == 0 {
			return c, nil, words[1:]
		}
		if len(words) > 1 {
			if sub := c.subcommand(words[1]); sub != nil {
				return sub, c, words[2:]
			}
		}
		return nil, c, words[1:]
	}
	return nil, nil, nil
}

// parseTextCommand strips the command prefix (or a mention of the bot)
// from content. ok is false if content isn't a command.
func parseTextCommand(content string, prefix string, botUserID string) (
	words []string,
	usedPrefix string,
	ok bool,
) {
	prefixes := []string{prefix}
	if botUserID != "" {
		prefixes = append(prefixes, "<@"+botUserID+">", "<@!"+botUserID+">")
	}
	for _, p := range prefixes {
		if p == "" || len(content) < len(p) {
			continue
		}
		if !strings.EqualFold(content[:len(p)], p) {
			continue
		}
		words = strings.Fields(content[len(p):])
		if len(words) == 0 {
			return nil, "", false
		}
		return words, p, true
	}
	return nil, "", false
}

// helpText describes a command group and its subcommands
func helpText(prefix string, group *botCommand) string {
	var sb strings.Builder
	sb.WriteString(group.Brief)
	sb.WriteString("\n```\n")
	for _, sub := range group.Subcommands {
		line := strings.TrimSpace(fmt.Sprintf("%s%s %s %s", prefix, group.Name, sub.Name, sub.Usage))
		sb.WriteString(line)
		if sub.Brief != "" {
			sb.WriteString("\n    ")
			sb.WriteString(sub.Brief)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("```")
	return sb.String()
}

// handleMessage handles text commands. Messages that aren't commands,
// and commands the author isn't permitted to use, are ignored.
func (b *Bot) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	ctx, logger := b.getLogger(ctx)
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	botUserID := b.discord.BotUserID()
	if m.Author.ID == botUserID {
		return
	}

	words, prefix, ok := parseTextCommand(m.Content, b.config.Bot.Prefix, botUserID)
	if !ok {
		return
	}
	cmd, group, args := resolveCommand(b.commandTree(), words)
	if cmd == nil && group == nil {
		logger.DebugContext(ctx, "unknown command", "words", words)
		return
	}

	logger = logger.With(slog.Group("message", messageLogAttrs(m.Message)...))
	ctx = WithLogger(ctx, logger)

	// mentions are normalized to the configured prefix for help text
	if strings.HasPrefix(prefix, "<@") {
		prefix = b.config.Bot.Prefix
	}
	var roles []string
	if m.Member != nil {
		roles = m.Member.Roles
	}
	req := &commandRequest{
		args:      strings.Join(args, " "),
		prefix:    prefix,
		guildID:   m.GuildID,
		channelID: m.ChannelID,
		userID:    m.Author.ID,
		roleIDs:   roles,
		responder: messageResponder{session: b.discord.session, message: m.Message},
	}

	if cmd == nil {
		req.path = group.Name
		if err := req.responder.Reply(ctx, helpText(prefix, group)); err != nil {
			logger.ErrorContext(ctx, "error sending help", tint.Err(err))
		}
		return
	}
	req.path = cmd.Name
	if group != nil {
		req.path = group.Name + " " + cmd.Name
	}

	if cmd.Restricted && !b.canPublish(req.guildID, req.userID, req.roleIDs) {
		logger.InfoContext(ctx, "ignoring command from user without permission", "command", req.path)
		return
	}
	b.runCommand(ctx, cmd, req)
}

// canPublish checks the configured allow-lists
func (b *Bot) canPublish(guildID, userID string, roleIDs []string) bool {
	return canPublish(*b.config.Permissions, b.config.Debug, guildID, userID, roleIDs)
}

func (b *Bot) runCommand(ctx context.Context, cmd *botCommand, req *commandRequest) {
	ctx, logger := b.getLogger(ctx)
	logger.InfoContext(ctx, "running command", "command", req.path, "args", req.args)
	if err := cmd.Run(ctx, req); err != nil {
		logger.ErrorContext(ctx, "error running command", "command", req.path, tint.Err(err))
		if noticeErr := req.responder.Notice(ctx, DefaultDiscordErrorMessage); noticeErr != nil {
			logger.ErrorContext(ctx, "error sending error notice", tint.Err(noticeErr))
		}
	}
}

// handleApplicationCommand handles slash and message context menu commands
func (b *Bot) handleApplicationCommand(ctx context.Context, handler InteractionHandler) {
	ctx, logger := b.getLogger(ctx)
	i := handler.GetInteraction()
	data := i.ApplicationCommandData()
	responder := interactionResponder{handler: handler}

	if i.GuildID == "" {
		_ = responder.Notice(ctx, guildOnlyText)
		return
	}

	user := getDiscordUser(i)
	req := &commandRequest{
		prefix:    slashCommandPrefix,
		guildID:   i.GuildID,
		channelID: i.ChannelID,
		userID:    user.ID,
		roleIDs:   interactionRoles(i),
		responder: responder,
	}

	var words []string
	switch data.CommandType {
	case discordgo.MessageApplicationCommand:
		switch data.Name {
		case MessageCommandEdit:
			words = []string{CommandAnnouncements, SubcommandEdit}
		case MessageCommandDelete:
			words = []string{CommandAnnouncements, SubcommandDelete}
		}
		if data.Resolved != nil {
			req.target = data.Resolved.Messages[data.TargetID]
		}
	default:
		words = []string{data.Name}
		opts := data.Options
		if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
			words = append(words, opts[0].Name)
			opts = opts[0].Options
		}
		for _, opt := range opts {
			if opt.Type == discordgo.ApplicationCommandOptionString {
				req.args = strings.TrimSpace(opt.StringValue())
			}
		}
	}

	cmd, group, _ := resolveCommand(b.commandTree(), words)
	if cmd == nil && group == nil {
		logger.WarnContext(ctx, "unknown application command", "command", data.Name)
		_ = responder.Notice(ctx, DefaultDiscordErrorMessage)
		return
	}
	if cmd == nil {
		_ = responder.Notice(ctx, helpText(slashCommandPrefix, group))
		return
	}
	req.path = cmd.Name
	if group != nil {
		req.path = group.Name + " " + cmd.Name
	}
	if cmd.Restricted && !b.canPublish(req.guildID, req.userID, req.roleIDs) {
		logger.InfoContext(ctx, "permission denied", "command", req.path, tint.Err(ErrPermissionDenied))
		_ = responder.Notice(ctx, permissionDeniedText)
		return
	}
	b.runCommand(ctx, cmd, req)
}

func (b *Bot) cmdCreate(ctx context.Context, req *commandRequest) error {
	draft := NewDraft(req.userID, b.config.Bot.DefaultImageURL)
	if req.args != "" {
		t, ok := lookupTemplate(req.args)
		if !ok {
			return req.responder.Notice(ctx, templateNotFoundText(req.prefix))
		}
		t.Apply(draft)
	}
	_, err := b.openBuilder(ctx, req.responder, ModeCreate, req.userID, req.guildID, draft, nil)
	return err
}

// targetMessage returns the message a command refers to, either the
// context menu target or the message referenced in the arguments
func (b *Bot) targetMessage(req *commandRequest) (*discordgo.Message, error) {
	if req.target != nil {
		if req.target.ChannelID == "" {
			req.target.ChannelID = req.channelID
		}
		return req.target, nil
	}
	if req.args == "" {
		return nil, fmt.Errorf("%w: no message given", ErrMessageNotFound)
	}
	return b.fetchReferencedMessage(req.args, req.channelID)
}

func (b *Bot) cmdEdit(ctx context.Context, req *commandRequest) error {
	m, err := b.targetMessage(req)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return req.responder.Notice(ctx, messageNotFoundText)
		}
		return err
	}
	draft, posted, err := ParseFromPosted(
		ctx,
		b.discord.session,
		req.guildID,
		m,
		b.discord.BotUserID(),
		b.config.Bot.DefaultImageURL,
	)
	if err != nil {
		if errors.Is(err, ErrNotAnAnnouncement) {
			return req.responder.Notice(ctx, notAnAnnouncementText)
		}
		return err
	}
	_, err = b.openBuilder(ctx, req.responder, ModeEdit, req.userID, req.guildID, draft, posted)
	return err
}

func (b *Bot) cmdDelete(ctx context.Context, req *commandRequest) error {
	m, err := b.targetMessage(req)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return req.responder.Notice(ctx, messageNotFoundText)
		}
		return err
	}
	if err = b.deleteAnnouncement(ctx, m); err != nil {
		if errors.Is(err, ErrNotAnAnnouncement) {
			return req.responder.Reply(ctx, notAnAnnouncementText)
		}
		return err
	}
	return req.responder.Reply(ctx, deletedReply)
}

func (b *Bot) cmdInstructions(ctx context.Context, req *commandRequest) error {
	_, err := req.responder.Send(ctx, b.instructionsMessage())
	return err
}

func (b *Bot) cmdTemplateList(ctx context.Context, req *commandRequest) error {
	return req.responder.Reply(ctx, templateListText())
}

func (b *Bot) cmdTemplateView(ctx context.Context, req *commandRequest) error {
	if req.args == "" {
		return req.responder.Notice(ctx, fmt.Sprintf(missingArgumentText, commandOptionName))
	}
	t, ok := lookupTemplate(req.args)
	if !ok {
		return req.responder.Reply(ctx, templateNotFoundText(req.prefix))
	}
	draft := NewDraft("", b.config.Bot.DefaultImageURL)
	t.Apply(draft)
	draft.Anonymous = true
	_, err := req.responder.Send(
		ctx, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				draft.Render(ctx, nil, b.config.Bot.EmbedColor, false),
			},
		},
	)
	return err
}

func (b *Bot) embedReply(ctx context.Context, req *commandRequest, description string) error {
	_, err := req.responder.Send(
		ctx, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				{
					Type:        discordgo.EmbedTypeRich,
					Description: description,
					Color:       b.config.Bot.EmbedColor,
				},
			},
			AllowedMentions: noMentions(),
		},
	)
	return err
}

func (b *Bot) cmdPreviews(ctx context.Context, req *commandRequest) error {
	return b.embedReply(ctx, req, pingPreviewsText)
}

func (b *Bot) cmdIDs(ctx context.Context, req *commandRequest) error {
	return b.embedReply(ctx, req, idsText)
}

func (b *Bot) cmdModmailClose(ctx context.Context, req *commandRequest) error {
	return req.responder.Reply(ctx, modmailCloseMessage)
}

// applicationCommands returns the slash and context menu commands for the
// enabled extensions
func (b *Bot) applicationCommands() []*discordgo.ApplicationCommand {
	dmPerm := false
	contexts := []discordgo.InteractionContextType{discordgo.InteractionContextGuild}
	integrationTypes := []discordgo.ApplicationIntegrationType{
		discordgo.ApplicationIntegrationGuildInstall,
	}

	templateChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(templates))
	for _, name := range templateNames() {
		templateChoices = append(
			templateChoices,
			&discordgo.ApplicationCommandOptionChoice{Name: name, Value: name},
		)
	}

	newCommand := func(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
		return &discordgo.ApplicationCommand{
			Name:             name,
			Description:      description,
			Type:             discordgo.ChatApplicationCommand,
			DMPermission:     &dmPerm,
			Contexts:         &contexts,
			IntegrationTypes: &integrationTypes,
			Options:          options,
		}
	}
	messageCommand := func(name string) *discordgo.ApplicationCommand {
		return &discordgo.ApplicationCommand{
			Name:             name,
			Type:             discordgo.MessageApplicationCommand,
			DMPermission:     &dmPerm,
			Contexts:         &contexts,
			IntegrationTypes: &integrationTypes,
		}
	}
	messageOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        commandOptionMessage,
		Description: "Message link, channelID-messageID, or message ID",
		Required:    true,
	}
	nameOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        commandOptionName,
		Description: "Template name",
		Required:    true,
		Choices:     templateChoices,
	}

	var commands []*discordgo.ApplicationCommand
	for _, c := range b.commandTree() {
		switch c.Name {
		case CommandAnnouncements:
			commands = append(
				commands,
				newCommand(
					c.Name,
					"Manage announcements",
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        SubcommandCreate,
						Description: "Creates and sends a new announcement",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        commandOptionTemplate,
								Description: "Start from a template",
								Choices:     templateChoices,
							},
						},
					},
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        SubcommandEdit,
						Description: "Edits an existing announcement",
						Options:     []*discordgo.ApplicationCommandOption{messageOption},
					},
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        SubcommandDelete,
						Description: "Deletes an announcement",
						Options:     []*discordgo.ApplicationCommandOption{messageOption},
					},
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        SubcommandInstructions,
						Description: "Instructions for using the announcement system",
					},
				),
				messageCommand(MessageCommandEdit),
				messageCommand(MessageCommandDelete),
			)
		case CommandTemplates:
			commands = append(
				commands,
				newCommand(
					c.Name,
					"Templates for news posts",
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        SubcommandList,
						Description: "Lists all available templates",
					},
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        SubcommandView,
						Description: "Shows a template",
						Options:     []*discordgo.ApplicationCommandOption{nameOption},
					},
				),
			)
		case CommandTemplate:
			commands = append(commands, newCommand(c.Name, "Shows a template", nameOption))
		case CommandIDs:
			commands = append(
				commands,
				newCommand(c.Name, "Shows all the channel and role IDs for announcements"),
				newCommand(CommandChannels, "Shows all the channel and role IDs for announcements"),
			)
		case CommandInstructions:
			// available as /announcements instructions
		default:
			commands = append(commands, newCommand(c.Name, c.Brief))
		}
	}
	return commands
}
