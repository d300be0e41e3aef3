package newsbot

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	testGuildID          = "1100000000000000001"
	testBotUserID        = "1100000000000000002"
	testOperatorID       = "1100000000000000003"
	testOtherUserID      = "1100000000000000004"
	testPingRoleID       = "1100000000000000005"
	testCommandChannelID = "1100000000000000006"
	testNewsChannelID    = "1100000000000000007"
	testTextChannelID    = "1100000000000000008"
	testRepostChannelID  = "1100000000000000009"
	testAllowedRoleID    = "1100000000000000010"
	testVoiceChannelID   = "1100000000000000011"
	testCountChannelID   = "1100000000000000012"
)

// restError returns a discord REST error with the given status code
func restError(status int) error {
	return &discordgo.RESTError{
		Response: &http.Response{
			StatusCode: status,
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		},
		ResponseBody: []byte(http.StatusText(status)),
	}
}

type sentMessage struct {
	ChannelID string
	Data      *discordgo.MessageSend
	Message   *discordgo.Message
}

type recordedResponse struct {
	InteractionID string
	Response      *discordgo.InteractionResponse
}

type recordedWebhookEdit struct {
	InteractionID string
	Edit          *discordgo.WebhookEdit
}

// mockDiscordSession is an in-memory DiscordSessionHandler. Messages
// sent through it are kept per channel, so they can be fetched, edited
// and deleted like they would be on discord.
type mockDiscordSession struct {
	mu       sync.Mutex
	logger   *slog.Logger
	logLevel *slog.LevelVar
	botUser  *discordgo.User
	nextID   int64

	channels     map[string]*discordgo.Channel
	roles        map[string][]*discordgo.Role
	members      map[string][]*discordgo.Member
	users        map[string]*discordgo.User
	memberCounts map[string]int

	// channel ID -> messages, oldest first
	messages map[string][]*discordgo.Message

	// interaction ID -> original response message
	interactionMessages map[string]*discordgo.Message

	sent                 []sentMessage
	edits                []*discordgo.MessageEdit
	deleted              []string
	crossposts           []string
	reactions            []string
	channelEdits         []*discordgo.ChannelEdit
	interactionResponses []recordedResponse
	interactionEdits     []recordedWebhookEdit
	registered           []*discordgo.ApplicationCommand
	customStatus         string

	// sendErr, if set, is checked before each message is sent
	sendErr      func(channelID string, data *discordgo.MessageSend) error
	crosspostErr error
}

func newMockDiscordSession(t testing.TB) *mockDiscordSession {
	t.Helper()
	m := &mockDiscordSession{
		logLevel: &slog.LevelVar{},
		botUser: &discordgo.User{
			ID:            testBotUserID,
			Username:      "scnewsbot",
			Discriminator: "0",
			Bot:           true,
		},
		nextID:              1200000000000000000,
		channels:            map[string]*discordgo.Channel{},
		roles:               map[string][]*discordgo.Role{},
		members:             map[string][]*discordgo.Member{},
		users:               map[string]*discordgo.User{},
		memberCounts:        map[string]int{},
		messages:            map[string][]*discordgo.Message{},
		interactionMessages: map[string]*discordgo.Message{},
	}
	m.logLevel.Set(slog.LevelDebug)
	m.logger = slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     m.logLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord_session_handler", "test_name", t.Name())

	for _, ch := range []*discordgo.Channel{
		{ID: testCommandChannelID, GuildID: testGuildID, Name: "bot-commands", Type: discordgo.ChannelTypeGuildText},
		{ID: testNewsChannelID, GuildID: testGuildID, Name: "news", Type: discordgo.ChannelTypeGuildNews},
		{ID: testTextChannelID, GuildID: testGuildID, Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: testRepostChannelID, GuildID: testGuildID, Name: "reposts", Type: discordgo.ChannelTypeGuildText},
		{ID: testVoiceChannelID, GuildID: testGuildID, Name: "voice", Type: discordgo.ChannelTypeGuildVoice},
		{ID: testCountChannelID, GuildID: testGuildID, Name: "Members: 1", Type: discordgo.ChannelTypeGuildVoice},
	} {
		m.channels[ch.ID] = ch
	}
	m.roles[testGuildID] = []*discordgo.Role{
		{ID: testPingRoleID, Name: "Patch Notes"},
		{ID: testAllowedRoleID, Name: "News Team"},
	}
	operator := &discordgo.User{ID: testOperatorID, Username: "operator", Discriminator: "0"}
	other := &discordgo.User{ID: testOtherUserID, Username: "someone", Discriminator: "0"}
	m.users[operator.ID] = operator
	m.users[other.ID] = other
	m.users[m.botUser.ID] = m.botUser
	m.members[testGuildID] = []*discordgo.Member{
		{User: operator, Roles: []string{testAllowedRoleID}},
		{User: other},
	}
	m.memberCounts[testGuildID] = 1234
	return m
}

func (d *mockDiscordSession) newID() string {
	d.nextID++
	return strconv.FormatInt(d.nextID, 10)
}

// addMessage stores a message as if it had been posted earlier. The ID
// and channel are assigned if unset.
func (d *mockDiscordSession) addMessage(channelID string, m *discordgo.Message) *discordgo.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m.ID == "" {
		m.ID = d.newID()
	}
	m.ChannelID = channelID
	if ch, ok := d.channels[channelID]; ok {
		m.GuildID = ch.GuildID
	}
	d.messages[channelID] = append(d.messages[channelID], m)
	return m
}

// channelMessages returns the messages currently in a channel, oldest first
func (d *mockDiscordSession) channelMessages(channelID string) []*discordgo.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.messages[channelID])
}

func (d *mockDiscordSession) sentMessages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.sent)
}

func (d *mockDiscordSession) sentTo(channelID string) []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	var rv []sentMessage
	for _, s := range d.sent {
		if s.ChannelID == channelID {
			rv = append(rv, s)
		}
	}
	return rv
}

func (d *mockDiscordSession) deletedMessages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.deleted)
}

func (d *mockDiscordSession) messageEdits() []*discordgo.MessageEdit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.edits)
}

// messageEditsTo returns the edits made to the given message ID
func (d *mockDiscordSession) messageEditsTo(messageID string) []*discordgo.MessageEdit {
	d.mu.Lock()
	defer d.mu.Unlock()
	var rv []*discordgo.MessageEdit
	for _, e := range d.edits {
		if e.ID == messageID {
			rv = append(rv, e)
		}
	}
	return rv
}

func (d *mockDiscordSession) crosspostedMessages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.crossposts)
}

func (d *mockDiscordSession) addedReactions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.reactions)
}

// responses returns the responses sent for the given interaction
func (d *mockDiscordSession) responses(interactionID string) []*discordgo.InteractionResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	var rv []*discordgo.InteractionResponse
	for _, r := range d.interactionResponses {
		if r.InteractionID == interactionID {
			rv = append(rv, r.Response)
		}
	}
	return rv
}

// webhookEdits returns the edits made to the given interaction's response
func (d *mockDiscordSession) webhookEdits(interactionID string) []*discordgo.WebhookEdit {
	d.mu.Lock()
	defer d.mu.Unlock()
	var rv []*discordgo.WebhookEdit
	for _, e := range d.interactionEdits {
		if e.InteractionID == interactionID {
			rv = append(rv, e.Edit)
		}
	}
	return rv
}

func (d *mockDiscordSession) findMessage(channelID string, messageID string) (int, *discordgo.Message) {
	for idx, m := range d.messages[channelID] {
		if m.ID == messageID {
			return idx, m
		}
	}
	return -1, nil
}

func (d *mockDiscordSession) Open() error {
	d.logger.Info("opened session")
	return nil
}

func (d *mockDiscordSession) Close() error {
	d.logger.Info("closed session")
	return nil
}

func (d *mockDiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		if err := d.sendErr(channelID, data); err != nil {
			d.logger.Info("mock send failed", "channel_id", channelID, tint.Err(err))
			return nil, err
		}
	}
	m := &discordgo.Message{
		ID:         d.newID(),
		ChannelID:  channelID,
		Content:    data.Content,
		Embeds:     data.Embeds,
		Components: data.Components,
		Author:     d.botUser,
	}
	if ch, ok := d.channels[channelID]; ok {
		m.GuildID = ch.GuildID
	}
	if data.AllowedMentions != nil {
		m.MentionRoles = slices.Clone(data.AllowedMentions.Roles)
	}
	d.messages[channelID] = append(d.messages[channelID], m)
	d.sent = append(d.sent, sentMessage{ChannelID: channelID, Data: data, Message: m})
	d.logger.Info("mock sent message", "channel_id", channelID, "message_id", m.ID)
	return m, nil
}

func (d *mockDiscordSession) ChannelMessageEditComplex(
	e *discordgo.MessageEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.edits = append(d.edits, e)
	_, m := d.findMessage(e.Channel, e.ID)
	if m == nil {
		return nil, restError(http.StatusNotFound)
	}
	if e.Content != nil {
		m.Content = *e.Content
	}
	if e.Embeds != nil {
		m.Embeds = *e.Embeds
	}
	if e.Components != nil {
		m.Components = *e.Components
	}
	return m, nil
}

func (d *mockDiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, m := d.findMessage(channelID, messageID)
	if m == nil {
		return restError(http.StatusNotFound)
	}
	d.messages[channelID] = slices.Delete(d.messages[channelID], idx, idx+1)
	d.deleted = append(d.deleted, channelID+"-"+messageID)
	return nil
}

func (d *mockDiscordSession) ChannelMessage(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, m := d.findMessage(channelID, messageID)
	if m == nil {
		return nil, restError(http.StatusNotFound)
	}
	return m, nil
}

// ChannelMessages returns messages newest first, as discord does
func (d *mockDiscordSession) ChannelMessages(
	channelID string,
	limit int,
	beforeID string,
	afterID string,
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matched []*discordgo.Message
	for _, m := range d.messages[channelID] {
		switch {
		case beforeID != "" && snowflakeLess(m.ID, beforeID):
			matched = append(matched, m)
		case afterID != "" && snowflakeLess(afterID, m.ID):
			matched = append(matched, m)
		}
	}
	if len(matched) > limit {
		if beforeID != "" {
			matched = matched[len(matched)-limit:]
		} else {
			matched = matched[:limit]
		}
	}
	slices.Reverse(matched)
	return matched, nil
}

func (d *mockDiscordSession) ChannelMessageCrosspost(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.crosspostErr != nil {
		return nil, d.crosspostErr
	}
	_, m := d.findMessage(channelID, messageID)
	if m == nil {
		return nil, restError(http.StatusNotFound)
	}
	d.crossposts = append(d.crossposts, channelID+"-"+messageID)
	return m, nil
}

func (d *mockDiscordSession) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	_ ...discordgo.RequestOption,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reactions = append(d.reactions, channelID+"-"+messageID+"-"+emojiID)
	return nil
}

func (d *mockDiscordSession) Channel(
	channelID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.channels[channelID]
	if !ok {
		return nil, restError(http.StatusNotFound)
	}
	return ch, nil
}

func (d *mockDiscordSession) ChannelEdit(
	channelID string,
	data *discordgo.ChannelEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.channels[channelID]
	if !ok {
		return nil, restError(http.StatusNotFound)
	}
	d.channelEdits = append(d.channelEdits, data)
	if data.Name != "" {
		ch.Name = data.Name
	}
	return ch, nil
}

func (d *mockDiscordSession) GuildChannels(
	guildID string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var rv []*discordgo.Channel
	for _, ch := range d.channels {
		if ch.GuildID == guildID {
			rv = append(rv, ch)
		}
	}
	sort.Slice(rv, func(i, j int) bool { return snowflakeLess(rv[i].ID, rv[j].ID) })
	return rv, nil
}

func (d *mockDiscordSession) GuildRoles(
	guildID string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.roles[guildID]), nil
}

func (d *mockDiscordSession) GuildMembersSearch(
	guildID string,
	query string,
	limit int,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var rv []*discordgo.Member
	for _, member := range d.members[guildID] {
		if len(rv) >= limit {
			break
		}
		if strings.HasPrefix(strings.ToLower(member.User.Username), strings.ToLower(query)) {
			rv = append(rv, member)
		}
	}
	return rv, nil
}

func (d *mockDiscordSession) GuildWithCounts(
	guildID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Guild, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	count, ok := d.memberCounts[guildID]
	if !ok {
		return nil, restError(http.StatusNotFound)
	}
	return &discordgo.Guild{ID: guildID, ApproximateMemberCount: count}, nil
}

func (d *mockDiscordSession) User(
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, restError(http.StatusNotFound)
	}
	return u, nil
}

func (d *mockDiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger.Info(
		"overwrite application commands",
		"app_id", appID,
		"guild_id", guildID,
		"count", len(commands),
	)
	d.registered = commands
	created := make([]*discordgo.ApplicationCommand, len(commands))
	for i, c := range commands {
		created[i] = &discordgo.ApplicationCommand{
			ID:            d.newID(),
			ApplicationID: appID,
			GuildID:       guildID,
			Name:          c.Name,
			Type:          c.Type,
			Description:   c.Description,
		}
	}
	return created, nil
}

func (d *mockDiscordSession) UpdateCustomStatus(status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customStatus = status
	return nil
}

func (d *mockDiscordSession) AddHandler(_ any) func() {
	d.logger.Info("added handler")
	return func() {
		d.logger.Info("mock-removed handler function")
	}
}

// InteractionRespond records the response. Message responses are
// stored so InteractionResponse can return them, and update responses
// are applied to the message the component was attached to.
func (d *mockDiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interactionResponses = append(
		d.interactionResponses,
		recordedResponse{InteractionID: interaction.ID, Response: resp},
	)
	switch resp.Type {
	case discordgo.InteractionResponseChannelMessageWithSource:
		m := &discordgo.Message{
			ID:        d.newID(),
			ChannelID: interaction.ChannelID,
			GuildID:   interaction.GuildID,
			Author:    d.botUser,
		}
		if resp.Data != nil {
			m.Content = resp.Data.Content
			m.Embeds = resp.Data.Embeds
			m.Components = resp.Data.Components
		}
		d.interactionMessages[interaction.ID] = m
		d.messages[m.ChannelID] = append(d.messages[m.ChannelID], m)
	case discordgo.InteractionResponseUpdateMessage:
		if interaction.Message == nil || resp.Data == nil {
			return nil
		}
		if _, m := d.findMessage(interaction.Message.ChannelID, interaction.Message.ID); m != nil {
			m.Content = resp.Data.Content
			m.Embeds = resp.Data.Embeds
			m.Components = resp.Data.Components
		}
	}
	return nil
}

func (d *mockDiscordSession) InteractionResponse(
	interaction *discordgo.Interaction,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.interactionMessages[interaction.ID]
	if !ok {
		return nil, restError(http.StatusNotFound)
	}
	return m, nil
}

func (d *mockDiscordSession) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interactionEdits = append(
		d.interactionEdits,
		recordedWebhookEdit{InteractionID: interaction.ID, Edit: newresp},
	)
	return &discordgo.Message{ID: d.newID(), ChannelID: interaction.ChannelID}, nil
}

func (d *mockDiscordSession) InteractionResponseDelete(
	interaction *discordgo.Interaction,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info("mock deleting interaction", "interaction_id", interaction.ID)
	return nil
}

func (d *mockDiscordSession) SetHTTPClient(_ *http.Client) {
	d.logger.Info("mock setting http client")
}

func (d *mockDiscordSession) SetIdentify(_ discordgo.Identify) {
	d.logger.Info("mock setting identify")
}

func (d *mockDiscordSession) SetLogLevel(lvl slog.Level) error {
	d.logLevel.Set(lvl)
	return nil
}
