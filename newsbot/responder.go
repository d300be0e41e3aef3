package newsbot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
)

// Responder replies to a command, regardless of whether it was invoked as
// a text command or a slash command
type Responder interface {
	// Send posts a public reply and returns the created message
	Send(ctx context.Context, data *discordgo.MessageSend) (*discordgo.Message, error)

	// Reply posts a public text reply
	Reply(ctx context.Context, content string) error

	// Notice sends a short notice to the invoking user. For slash
	// commands, it's ephemeral.
	Notice(ctx context.Context, content string) error
}

// messageResponder replies to a text command message
type messageResponder struct {
	session DiscordSessionHandler
	message *discordgo.Message
}

func (r messageResponder) Send(
	_ context.Context,
	data *discordgo.MessageSend,
) (*discordgo.Message, error) {
	data.Reference = r.message.Reference()
	if data.AllowedMentions == nil {
		data.AllowedMentions = noMentions()
	}
	return r.session.ChannelMessageSendComplex(r.message.ChannelID, data)
}

func (r messageResponder) Reply(ctx context.Context, content string) error {
	_, err := r.Send(ctx, &discordgo.MessageSend{Content: content})
	return err
}

func (r messageResponder) Notice(ctx context.Context, content string) error {
	return r.Reply(ctx, content)
}

// interactionResponder replies to an application command interaction. Only
// one of Send, Reply or Notice should be called, as each uses the initial
// interaction response.
type interactionResponder struct {
	handler InteractionHandler
}

func (r interactionResponder) Send(
	ctx context.Context,
	data *discordgo.MessageSend,
) (*discordgo.Message, error) {
	allowed := data.AllowedMentions
	if allowed == nil {
		allowed = noMentions()
	}
	err := r.handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:         data.Content,
				Embeds:          data.Embeds,
				Components:      data.Components,
				AllowedMentions: allowed,
			},
		},
	)
	if err != nil {
		return nil, err
	}
	msg, err := r.handler.GetResponse(ctx)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errors.New("no interaction response message")
	}
	return msg, nil
}

func (r interactionResponder) Reply(ctx context.Context, content string) error {
	return r.handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:         content,
				AllowedMentions: noMentions(),
			},
		},
	)
}

func (r interactionResponder) Notice(ctx context.Context, content string) error {
	return r.handler.Respond(ctx, ephemeralResponse(content))
}
