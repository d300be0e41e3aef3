package newsbot

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sendText handles a text command sent by userID in the command channel,
// and returns the message
func sendText(t *testing.T, b *Bot, d *mockDiscordSession, userID string, content string) *discordgo.Message {
	t.Helper()
	member := testMember(userID)
	m := d.addMessage(
		testCommandChannelID,
		&discordgo.Message{
			Author:  member.User,
			Member:  &discordgo.Member{Roles: member.Roles},
			Content: content,
		},
	)
	b.handleMessage(context.Background(), &discordgo.MessageCreate{Message: m})
	return m
}

// replies returns the bot's replies to the given message
func replies(d *mockDiscordSession, m *discordgo.Message) []sentMessage {
	var rv []sentMessage
	for _, s := range d.sentTo(m.ChannelID) {
		if s.Data.Reference != nil && s.Data.Reference.MessageID == m.ID {
			rv = append(rv, s)
		}
	}
	return rv
}

func TestParseTextCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		words   []string
		prefix  string
		ok      bool
	}{
		{"prefix", "sc announcements create", []string{"announcements", "create"}, "sc ", true},
		{"case insensitive prefix", "SC ids", []string{"ids"}, "sc ", true},
		{"mention", "<@" + testBotUserID + "> template isc", []string{"template", "isc"}, "<@" + testBotUserID + ">", true},
		{"nick mention", "<@!" + testBotUserID + ">  previews", []string{"previews"}, "<@!" + testBotUserID + ">", true},
		{"no prefix", "hello there", nil, "", false},
		{"prefix only", "sc ", nil, "", false},
		{"short", "s", nil, "", false},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				words, prefix, ok := parseTextCommand(tc.content, "sc ", testBotUserID)
				assert.Equal(t, tc.ok, ok)
				assert.Equal(t, tc.words, words)
				assert.Equal(t, tc.prefix, prefix)
			},
		)
	}
}

func TestResolveCommand(t *testing.T) {
	b, _ := newTestBot(t)
	tree := b.commandTree()

	cmd, group, args := resolveCommand(tree, []string{"news", "post", "isc"})
	require.NotNil(t, cmd)
	require.NotNil(t, group)
	assert.Equal(t, SubcommandCreate, cmd.Name)
	assert.Equal(t, CommandAnnouncements, group.Name)
	assert.Equal(t, []string{"isc"}, args)

	cmd, group, args = resolveCommand(tree, []string{"announcements"})
	assert.Nil(t, cmd)
	require.NotNil(t, group)
	assert.Empty(t, args)

	cmd, group, _ = resolveCommand(tree, []string{"announcements", "bogus"})
	assert.Nil(t, cmd)
	assert.NotNil(t, group)

	cmd, group, _ = resolveCommand(tree, []string{"channels"})
	require.NotNil(t, cmd)
	assert.Nil(t, group)
	assert.Equal(t, CommandIDs, cmd.Name)

	cmd, group, _ = resolveCommand(tree, []string{"unknown"})
	assert.Nil(t, cmd)
	assert.Nil(t, group)

	cmd, group, _ = resolveCommand(tree, nil)
	assert.Nil(t, cmd)
	assert.Nil(t, group)
}

func TestCommandTree_Extensions(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Bot.Extensions = []string{ExtensionAnnouncements}
	b, _ := newTestBotWithConfig(t, cfg)

	var names []string
	for _, c := range b.commandTree() {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{CommandAnnouncements, CommandInstructions}, names)
}

func TestHelpText(t *testing.T) {
	b, _ := newTestBot(t)
	_, group, _ := resolveCommand(b.commandTree(), []string{"templates"})
	require.NotNil(t, group)

	text := helpText("sc ", group)
	assert.True(t, strings.HasPrefix(text, group.Brief))
	assert.Contains(t, text, "sc templates list\n")
	assert.Contains(t, text, "sc templates view <name>")
	assert.Contains(t, text, "Lists all available templates.")
}

func TestHandleMessage_Create(t *testing.T) {
	b, d := newTestBot(t)
	m := sendText(t, b, d, testOperatorID, "sc announcements create patchnotes")

	sent := replies(d, m)
	require.Len(t, sent, 1)
	builder := sent[0].Message
	require.Len(t, builder.Embeds, 1)
	assert.Equal(t, templates["patchnotes"].Title, builder.Embeds[0].Title)
	assert.NotEmpty(t, builder.Components)

	sessions := b.sessions.List()
	require.Len(t, sessions, 1)
	assert.Equal(t, builder.ID, sessions[0].MessageID)
	assert.Equal(t, testCommandChannelID, sessions[0].ChannelID)

	// the builder works the same as one opened by a slash command
	tb := &testBuilder{t: t, b: b, d: d, sessionID: sessions[0].ID, message: builder}
	tb.set(testOperatorID, OptionChannel, "general")
	tb.press(testOperatorID, controlConfirm)
	assert.Len(t, d.sentTo(testTextChannelID), 1)
}

func TestHandleMessage_NotPermitted(t *testing.T) {
	b, d := newTestBot(t)
	sendText(t, b, d, testOtherUserID, "sc announcements create")
	sendText(t, b, d, testOtherUserID, "sc templates list")

	assert.Empty(t, d.sentMessages())
	assert.Equal(t, 0, b.sessions.Len())
}

func TestHandleMessage_AllowedUser(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Permissions.AllowedUsers = []string{testOtherUserID}
	b, d := newTestBotWithConfig(t, cfg)

	m := sendText(t, b, d, testOtherUserID, "sc templates list")
	sent := replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, templateListText(), sent[0].Message.Content)
}

func TestHandleMessage_Ignored(t *testing.T) {
	b, d := newTestBot(t)

	sendText(t, b, d, testOperatorID, "not a command")
	sendText(t, b, d, testOperatorID, "sc unknown")

	bot := d.addMessage(
		testCommandChannelID,
		&discordgo.Message{Author: d.botUser, Content: "sc templates list"},
	)
	b.handleMessage(context.Background(), &discordgo.MessageCreate{Message: bot})

	dm := &discordgo.Message{
		ID:        "1400000000000000001",
		ChannelID: "1400000000000000002",
		Author:    testMember(testOperatorID).User,
		Content:   "sc templates list",
	}
	b.handleMessage(context.Background(), &discordgo.MessageCreate{Message: dm})

	assert.Empty(t, d.sentMessages())
}

func TestHandleMessage_GroupHelp(t *testing.T) {
	b, d := newTestBot(t)
	_, group, _ := resolveCommand(b.commandTree(), []string{"announcements"})

	m := sendText(t, b, d, testOperatorID, "sc announcements")
	sent := replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, helpText("sc ", group), sent[0].Message.Content)

	// a mention is normalized to the configured prefix
	m = sendText(t, b, d, testOperatorID, "<@"+testBotUserID+"> news what")
	sent = replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, helpText("sc ", group), sent[0].Message.Content)
}

func TestHandleMessage_Templates(t *testing.T) {
	b, d := newTestBot(t)

	m := sendText(t, b, d, testOperatorID, "sc template TWISC")
	sent := replies(d, m)
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Message.Embeds, 1)
	embed := sent[0].Message.Embeds[0]
	assert.Equal(t, templates["twisc"].Title, embed.Title)
	assert.Nil(t, embed.Footer)
	assert.Empty(t, sent[0].Message.Components)

	m = sendText(t, b, d, testOperatorID, "sc templates view nope")
	sent = replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, templateNotFoundText("sc "), sent[0].Message.Content)

	m = sendText(t, b, d, testOperatorID, "sc template")
	sent = replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, "Missing argument: `name`", sent[0].Message.Content)
}

func TestHandleMessage_Reference(t *testing.T) {
	b, d := newTestBot(t)

	for _, content := range []string{"sc previews", "sc ids", "sc channels", "sc instructions", "sc mmc"} {
		m := sendText(t, b, d, testOperatorID, content)
		sent := replies(d, m)
		require.Len(t, sent, 1, content)
		require.NotNil(t, sent[0].Data.AllowedMentions, content)
		assert.Empty(t, sent[0].Data.AllowedMentions.Parse, content)
	}

	m := sendText(t, b, d, testOperatorID, "sc previews")
	assert.Equal(t, pingPreviewsText, replies(d, m)[0].Message.Embeds[0].Description)

	m = sendText(t, b, d, testOperatorID, "sc mmc")
	assert.Equal(t, modmailCloseMessage, replies(d, m)[0].Message.Content)

	m = sendText(t, b, d, testOperatorID, "sc announcements instructions")
	embed := replies(d, m)[0].Message.Embeds[0]
	assert.Equal(t, instructionsTitle, embed.Title)
	assert.Equal(t, instructionsText("sc "), embed.Description)
}

func TestHandleMessage_ModmailCloseUnrestricted(t *testing.T) {
	b, d := newTestBot(t)
	m := sendText(t, b, d, testOtherUserID, "sc mmc")
	require.Len(t, replies(d, m), 1)
}

func TestHandleMessage_Delete(t *testing.T) {
	b, d := newTestBot(t)
	video, announcement, ping := seedAnnouncement(t, d)
	_, err := b.writeDB.Create(
		context.Background(),
		&AnnouncementRecord{
			State:     SessionPublished,
			GuildID:   testGuildID,
			ChannelID: testNewsChannelID,
			MessageID: announcement.ID,
		},
	)
	require.NoError(t, err)

	link := messageJumpURL(testGuildID, announcement)
	m := sendText(t, b, d, testOperatorID, "sc announcements delete "+link)
	sent := replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, deletedReply, sent[0].Message.Content)

	assert.ElementsMatch(
		t,
		[]string{
			testNewsChannelID + "-" + video.ID,
			testNewsChannelID + "-" + announcement.ID,
			testNewsChannelID + "-" + ping.ID,
		},
		d.deletedMessages(),
	)
	assert.Empty(t, d.channelMessages(testNewsChannelID))

	var count int64
	require.NoError(t, b.db.Model(&AnnouncementRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, b.db.Unscoped().Model(&AnnouncementRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleMessage_DeleteNotAnnouncement(t *testing.T) {
	b, d := newTestBot(t)
	other := d.addMessage(
		testNewsChannelID,
		&discordgo.Message{Author: testMember(testOtherUserID).User, Content: "hello"},
	)

	m := sendText(t, b, d, testOperatorID, "sc announcements delete "+testNewsChannelID+"-"+other.ID)
	sent := replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, notAnAnnouncementText, sent[0].Message.Content)
	assert.Empty(t, d.deletedMessages())
}

func TestHandleMessage_DeleteNotFound(t *testing.T) {
	b, d := newTestBot(t)

	for _, ref := range []string{"1234", testNewsChannelID + "-1200000000000009999", "garbage"} {
		m := sendText(t, b, d, testOperatorID, "sc announcements delete "+ref)
		sent := replies(d, m)
		require.Len(t, sent, 1, ref)
		assert.Equal(t, messageNotFoundText, sent[0].Message.Content, ref)
	}

	m := sendText(t, b, d, testOperatorID, "sc announcements delete")
	sent := replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, messageNotFoundText, sent[0].Message.Content)
}

func TestHandleMessage_EditNotAnnouncement(t *testing.T) {
	b, d := newTestBot(t)
	other := d.addMessage(
		testCommandChannelID,
		&discordgo.Message{Author: d.botUser, Content: "not an embed"},
	)

	// a bare message ID is looked up in the current channel
	m := sendText(t, b, d, testOperatorID, "sc announcements edit "+other.ID)
	sent := replies(d, m)
	require.Len(t, sent, 1)
	assert.Equal(t, notAnAnnouncementText, sent[0].Message.Content)
	assert.Equal(t, 0, b.sessions.Len())
}

func TestApplicationCommand_PermissionDenied(t *testing.T) {
	b, d := newTestBot(t)
	i := slashCommand(testOtherUserID, CommandAnnouncements, subcommandOption(SubcommandCreate))
	interact(t, b, i)

	assertEphemeral(t, d, i.ID, permissionDeniedText)
	assert.Equal(t, 0, b.sessions.Len())
}

func TestApplicationCommand_GuildOnly(t *testing.T) {
	b, d := newTestBot(t)
	i := slashCommand(testOperatorID, CommandTemplates, subcommandOption(SubcommandList))
	i.GuildID = ""
	i.User = i.Member.User
	i.Member = nil
	interact(t, b, i)

	assertEphemeral(t, d, i.ID, guildOnlyText)
}

func TestApplicationCommand_Templates(t *testing.T) {
	b, d := newTestBot(t)

	i := slashCommand(testOperatorID, CommandTemplates, subcommandOption(SubcommandList))
	interact(t, b, i)
	resp := lastResponse(t, d, i.ID)
	assert.Equal(t, templateListText(), resp.Data.Content)
	assert.Zero(t, resp.Data.Flags)

	i = slashCommand(testOperatorID, CommandTemplate, stringOption(commandOptionName, "devreply"))
	interact(t, b, i)
	resp = lastResponse(t, d, i.ID)
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, templates["devreply"].Title, resp.Data.Embeds[0].Title)

	i = slashCommand(testOperatorID, CommandTemplates)
	interact(t, b, i)
	_, group, _ := resolveCommand(b.commandTree(), []string{CommandTemplates})
	assertEphemeral(t, d, i.ID, helpText(slashCommandPrefix, group))

	i = slashCommand(testOperatorID, "unregistered")
	interact(t, b, i)
	assertEphemeral(t, d, i.ID, DefaultDiscordErrorMessage)
}

func TestApplicationCommand_ContextMenuDelete(t *testing.T) {
	b, d := newTestBot(t)
	_, announcement, _ := seedAnnouncement(t, d)

	i := messageCommand(testOperatorID, MessageCommandDelete, announcement)
	interact(t, b, i)

	resp := lastResponse(t, d, i.ID)
	assert.Equal(t, deletedReply, resp.Data.Content)
	assert.Len(t, d.deletedMessages(), 3)
}

func TestApplicationCommand_ContextMenuNotAnnouncement(t *testing.T) {
	b, d := newTestBot(t)
	other := d.addMessage(
		testNewsChannelID,
		&discordgo.Message{Author: testMember(testOtherUserID).User, Content: "hello"},
	)

	i := messageCommand(testOperatorID, MessageCommandEdit, other)
	interact(t, b, i)
	assertEphemeral(t, d, i.ID, notAnAnnouncementText)

	i = messageCommand(testOperatorID, MessageCommandDelete, other)
	interact(t, b, i)
	resp := lastResponse(t, d, i.ID)
	assert.Equal(t, notAnAnnouncementText, resp.Data.Content)
	assert.Empty(t, d.deletedMessages())
}

func TestApplicationCommands(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Bot.Extensions = DefaultExtensions
	b, _ := newTestBotWithConfig(t, cfg)

	commands := b.applicationCommands()
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.Name)
		require.NotNil(t, c.DMPermission)
		assert.False(t, *c.DMPermission)
	}
	assert.Equal(
		t,
		[]string{
			CommandAnnouncements,
			MessageCommandEdit,
			MessageCommandDelete,
			CommandTemplates,
			CommandTemplate,
			CommandPreviews,
			CommandIDs,
			CommandChannels,
		},
		names,
	)

	announcements := commands[0]
	require.Len(t, announcements.Options, 4)
	create := announcements.Options[0]
	assert.Equal(t, SubcommandCreate, create.Name)
	require.Len(t, create.Options, 1)
	assert.Len(t, create.Options[0].Choices, len(templates))
	assert.Equal(t, discordgo.MessageApplicationCommand, commands[1].Type)

	cfg.Bot.Extensions = []string{ExtensionRStarCitizen}
	commands = b.applicationCommands()
	require.Len(t, commands, 1)
	assert.Equal(t, CommandModmailClose, commands[0].Name)
}
