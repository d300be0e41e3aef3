package newsbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	notOwnerText       = "You cannot use this menu."
	builderExpiredText = "This announcement menu has expired. Start a new one to continue."
	optionNotFoundText = "Could not find that role or channel."
	cancelledPostText  = "Cancelled posting this announcement."
	cancelledEditText  = "Cancelled editing this announcement."
	publishFailedText  = "Sorry, the announcement could not be posted. The menu is still open, try again."
	editFailedText     = "Sorry, the announcement could not be edited. The menu is still open, try again."
	instructionsTitle  = "Instructions"
)

// openBuilder registers a new session for draft and sends the builder
// preview using r
func (b *Bot) openBuilder(
	ctx context.Context,
	r Responder,
	mode SessionMode,
	ownerID string,
	guildID string,
	draft *Draft,
	target *postedAnnouncement,
) (*Session, error) {
	s := b.sessions.Open(mode, ownerID, guildID, draft, target)
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := r.Send(ctx, b.builderMessage(ctx, s))
	if err != nil {
		b.sessions.finish(s, SessionCancelled)
		return nil, fmt.Errorf("error sending builder: %w", err)
	}
	s.channelID = msg.ChannelID
	s.messageID = msg.ID
	return s, nil
}

// lockSession looks up the session for a builder interaction, checks it's
// still open and owned by the interacting user, and locks it. If ok is
// false, the user has already been notified and the caller should return.
func (b *Bot) lockSession(
	ctx context.Context,
	handler InteractionHandler,
	sessionID string,
) (s *Session, ok bool) {
	i := handler.GetInteraction()
	user := getDiscordUser(i)

	s, err := b.sessions.Get(sessionID)
	if err != nil {
		_ = handler.Respond(ctx, ephemeralResponse(builderExpiredText))
		return nil, false
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		_ = handler.Respond(ctx, ephemeralResponse(builderExpiredText))
		return nil, false
	}
	if user == nil || user.ID != s.OwnerID {
		s.mu.Unlock()
		_ = handler.Respond(ctx, ephemeralResponse(notOwnerText))
		return nil, false
	}

	if i.Message != nil && s.messageID == "" {
		s.channelID = i.Message.ChannelID
		s.messageID = i.Message.ID
	}
	b.sessions.touch(s)
	return s, true
}

// handleBuilderComponent handles a button press on a builder
func (b *Bot) handleBuilderComponent(
	ctx context.Context,
	handler InteractionHandler,
	sessionID string,
	control string,
) {
	ctx, logger := b.getLogger(ctx)
	s, ok := b.lockSession(ctx, handler, sessionID)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	logger = logger.With("session", s, "control", control)
	ctx = WithLogger(ctx, logger)

	switch control {
	case controlCancel:
		b.cancelSession(ctx, handler, s)
	case controlAnonymous:
		s.draft.ToggleAnonymous()
		_ = handler.Respond(ctx, b.builderUpdateResponse(ctx, s))
	case controlNotify:
		s.draft.ToggleNotify()
		_ = handler.Respond(ctx, b.builderUpdateResponse(ctx, s))
	case controlConfirm:
		b.confirmSession(ctx, handler, s)
	default:
		opt, found := optionByID(OptionID(control))
		if !found {
			logger.WarnContext(ctx, "unknown builder control")
			_ = handler.Respond(ctx, ephemeralResponse(DefaultDiscordErrorMessage))
			return
		}
		_ = handler.Respond(
			ctx,
			optionModal(s.ID, opt, s.draft.OptionValue(opt.ID)),
		)
	}
}

// handleBuilderModal applies a submitted option modal to the draft
func (b *Bot) handleBuilderModal(
	ctx context.Context,
	handler InteractionHandler,
	sessionID string,
	optionID string,
) {
	ctx, logger := b.getLogger(ctx)
	s, ok := b.lockSession(ctx, handler, sessionID)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	opt, found := optionByID(OptionID(optionID))
	if !found {
		logger.WarnContext(ctx, "unknown option submitted", "option", optionID)
		_ = handler.Respond(ctx, ephemeralResponse(DefaultDiscordErrorMessage))
		return
	}

	value, _ := modalTextValue(handler.GetInteraction().ModalSubmitData())
	dir := sessionGuildDirectory{session: b.discord.session, guildID: s.GuildID}
	if err := s.draft.SetOption(opt.ID, value, dir); err != nil {
		if errors.Is(err, ErrOptionResolution) {
			logger.InfoContext(ctx, "unable to resolve option", "option", opt.ID, tint.Err(err))
			_ = handler.Respond(ctx, ephemeralResponse(optionNotFoundText))
			return
		}
		logger.ErrorContext(ctx, "error setting option", "option", opt.ID, tint.Err(err))
		_ = handler.Respond(ctx, ephemeralResponse(DefaultDiscordErrorMessage))
		return
	}
	s.filled[opt.ID] = strings.TrimSpace(value) != ""
	logger.DebugContext(ctx, "set option", "option", opt.ID, "draft", s.draft)
	_ = handler.Respond(ctx, b.builderUpdateResponse(ctx, s))
}

// cancelSession closes the session without posting. The caller must
// hold s.mu.
func (b *Bot) cancelSession(
	ctx context.Context,
	handler InteractionHandler,
	s *Session,
) {
	b.sessions.finish(s, SessionCancelled)
	text := cancelledPostText
	if s.Mode == ModeEdit {
		text = cancelledEditText
	}
	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:         text,
				AllowedMentions: noMentions(),
			},
		},
	)
	b.detachBuilder(ctx, s.channelID, s.messageID)
}

// confirmSession validates the draft and then publishes it (or applies
// the edit). If nothing was posted, the session is reopened so the
// operator can try again. The caller must hold s.mu.
func (b *Bot) confirmSession(
	ctx context.Context,
	handler InteractionHandler,
	s *Session,
) {
	ctx, logger := b.getLogger(ctx)

	if err := s.draft.Validate(s.Mode); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			_ = handler.Respond(ctx, ephemeralResponse(validationErr.Message))
		} else {
			_ = handler.Respond(ctx, ephemeralResponse(DefaultDiscordErrorMessage))
		}
		return
	}

	finalState := SessionPublished
	if s.Mode == ModeEdit {
		finalState = SessionEdited
	}
	b.sessions.finish(s, finalState)

	if err := handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		},
	); err != nil {
		logger.ErrorContext(ctx, "error acknowledging confirm", tint.Err(err))
	}

	if s.Mode == ModeEdit {
		if err := b.applyEdit(ctx, s.draft, s.target); err != nil {
			logger.ErrorContext(ctx, "error editing announcement", tint.Err(err))
			b.sessions.reopen(s)
			b.editResponse(ctx, handler, editFailedText)
			return
		}
		b.detachBuilder(ctx, s.channelID, s.messageID)
		b.recordEdited(ctx, s, s.target)
		b.editResponse(
			ctx,
			handler,
			fmt.Sprintf(editedReply, messageJumpURL(s.GuildID, s.target.Message)),
		)
		return
	}

	result, err := b.publishDraft(ctx, s.draft, s.GuildID)
	if result == nil || result.Message == nil {
		logger.ErrorContext(ctx, "error publishing announcement", tint.Err(err))
		b.sessions.reopen(s)
		b.editResponse(ctx, handler, publishFailedText)
		return
	}
	if err != nil {
		logger.WarnContext(ctx, "announcement posted with errors", tint.Err(err))
	}
	b.detachBuilder(ctx, s.channelID, s.messageID)
	b.recordPublished(ctx, s, result)
	b.editResponse(
		ctx,
		handler,
		fmt.Sprintf(postedReply, messageJumpURL(s.GuildID, result.Message)),
	)
}

func (b *Bot) editResponse(ctx context.Context, handler InteractionHandler, content string) {
	_, _ = handler.Edit(
		ctx, &discordgo.WebhookEdit{
			Content:         &content,
			AllowedMentions: noMentions(),
		},
	)
}

// detachBuilder removes the controls from a builder message, leaving the
// preview in place
func (b *Bot) detachBuilder(ctx context.Context, channelID string, messageID string) {
	if channelID == "" || messageID == "" {
		return
	}
	ctx, logger := b.getLogger(ctx)
	components := []discordgo.MessageComponent{}
	if _, err := b.discord.session.ChannelMessageEditComplex(
		&discordgo.MessageEdit{
			ID:         messageID,
			Channel:    channelID,
			Components: &components,
		},
	); err != nil && !isNotFound(err) {
		logger.WarnContext(
			ctx,
			"error removing builder controls",
			"channel_id", channelID,
			"message_id", messageID,
			tint.Err(err),
		)
	}
}

// onSessionExpired detaches the controls of a timed out builder
func (b *Bot) onSessionExpired(s *Session) {
	s.mu.Lock()
	channelID, messageID := s.channelID, s.messageID
	s.mu.Unlock()
	b.logger.Info("builder session timed out", "session", s)
	b.detachBuilder(context.Background(), channelID, messageID)
}

// instructionsMessage returns the announcement instructions embed
func (b *Bot) instructionsMessage() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			{
				Type:        discordgo.EmbedTypeRich,
				Title:       instructionsTitle,
				Description: instructionsText(b.config.Bot.Prefix),
				Color:       b.config.Bot.EmbedColor,
			},
		},
	}
}
