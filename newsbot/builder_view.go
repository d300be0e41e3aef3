package newsbot

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	builderCustomIDPrefix = "announce"
	builderModalPrefix    = "announce_modal"

	controlCancel    = "cancel"
	controlAnonymous = "anonymous"
	controlNotify    = "notify"
	controlConfirm   = "confirm"

	discordModalTitleMaxLength    = 45
	discordTextInputMaxLength     = 4000
	discordEmbedTitleMaxLength    = 256
	discordMaxButtonsPerActionRow = 5
)

// builderCustomID returns the custom ID for a builder control
func builderCustomID(prefix string, sessionID string, control string) string {
	return prefix + ":" + sessionID + ":" + control
}

// parseBuilderCustomID splits a builder custom ID into its session ID and
// control. ok is false if customID doesn't have the given prefix.
func parseBuilderCustomID(prefix string, customID string) (
	sessionID string,
	control string,
	ok bool,
) {
	rest, found := strings.CutPrefix(customID, prefix+":")
	if !found {
		return "", "", false
	}
	sessionID, control, found = strings.Cut(rest, ":")
	if !found || sessionID == "" || control == "" {
		return "", "", false
	}
	return sessionID, control, true
}

// noMentions disables all mentions on a message
func noMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{},
	}
}

func toggleStyle(on bool) discordgo.ButtonStyle {
	if on {
		return discordgo.SuccessButton
	}
	return discordgo.SecondaryButton
}

// builderComponents returns the builder controls: one button per draft
// option, then cancel/anonymous/notify/confirm. The caller must hold s.mu.
func builderComponents(s *Session) []discordgo.MessageComponent {
	optionRows := map[int][]discordgo.MessageComponent{}
	maxRow := 0
	for _, opt := range draftOptions {
		optionRows[opt.Row] = append(
			optionRows[opt.Row],
			discordgo.Button{
				Label:    opt.Name,
				Style:    toggleStyle(s.filled[opt.ID]),
				CustomID: builderCustomID(builderCustomIDPrefix, s.ID, string(opt.ID)),
			},
		)
		maxRow = max(maxRow, opt.Row)
	}

	var rows []discordgo.MessageComponent
	for row := 0; row <= maxRow; row++ {
		for _, chunk := range chunkItems(discordMaxButtonsPerActionRow, optionRows[row]...) {
			rows = append(rows, discordgo.ActionsRow{Components: chunk})
		}
	}

	confirmLabel := "Post"
	if s.Mode == ModeEdit {
		confirmLabel = "Edit"
	}
	rows = append(
		rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Cancel",
					Style:    discordgo.DangerButton,
					CustomID: builderCustomID(builderCustomIDPrefix, s.ID, controlCancel),
				},
				discordgo.Button{
					Label:    "Anonymous?",
					Style:    toggleStyle(s.draft.Anonymous),
					CustomID: builderCustomID(builderCustomIDPrefix, s.ID, controlAnonymous),
				},
				discordgo.Button{
					Label:    "Published?",
					Style:    toggleStyle(s.draft.Notify),
					CustomID: builderCustomID(builderCustomIDPrefix, s.ID, controlNotify),
					Disabled: !s.draft.CanNotify(),
				},
				discordgo.Button{
					Label:    confirmLabel,
					Style:    discordgo.PrimaryButton,
					CustomID: builderCustomID(builderCustomIDPrefix, s.ID, controlConfirm),
				},
			},
		},
	)
	return rows
}

// builderMessage renders the builder preview: the video link as content
// (so it unfurls), the rendered embed, and the controls. The caller must
// hold s.mu.
func (b *Bot) builderMessage(ctx context.Context, s *Session) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: s.draft.VideoURL,
		Embeds: []*discordgo.MessageEmbed{
			s.draft.Render(ctx, b.authors(), b.config.Bot.EmbedColor, false),
		},
		Components:      builderComponents(s),
		AllowedMentions: noMentions(),
	}
}

// builderUpdateResponse re-renders the builder in place
func (b *Bot) builderUpdateResponse(ctx context.Context, s *Session) *discordgo.InteractionResponse {
	msg := b.builderMessage(ctx, s)
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:         msg.Content,
			Embeds:          msg.Embeds,
			Components:      msg.Components,
			AllowedMentions: msg.AllowedMentions,
		},
	}
}

// optionModal returns the modal used to edit a single option, seeded with
// its current value
func optionModal(sessionID string, opt Option, current string) *discordgo.InteractionResponse {
	style := discordgo.TextInputShort
	if opt.Long {
		style = discordgo.TextInputParagraph
	}
	maxLength := 0
	if opt.ID == OptionTitle {
		maxLength = discordEmbedTitleMaxLength
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: builderCustomID(builderModalPrefix, sessionID, string(opt.ID)),
			Title:    truncate("Set "+opt.Name, discordModalTitleMaxLength),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    string(opt.ID),
							Label:       opt.Name,
							Style:       style,
							Placeholder: opt.Placeholder,
							Value:       truncate(current, discordTextInputMaxLength),
							Required:    opt.Required(),
							MaxLength:   maxLength,
						},
					},
				},
			},
		},
	}
}

// modalTextValue returns the value of the first text input in a
// submitted modal
func modalTextValue(data discordgo.ModalSubmitInteractionData) (string, bool) {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if input, isInput := rc.(*discordgo.TextInput); isInput {
				return input.Value, true
			}
		}
	}
	return "", false
}

func ephemeralResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: noMentions(),
		},
	}
}
