package newsbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageReference(t *testing.T) {
	const (
		channelID = "111111111111111111"
		messageID = "222222222222222222"
		defaultID = "333333333333333333"
	)
	tests := []struct {
		name      string
		ref       string
		channelID string
		messageID string
	}{
		{"link", "https://discord.com/channels/1/" + channelID + "/" + messageID, channelID, messageID},
		{"ptb link", "https://ptb.discord.com/channels/1/" + channelID + "/" + messageID, channelID, messageID},
		{"legacy link", "https://discordapp.com/channels/1/" + channelID + "/" + messageID + "/", channelID, messageID},
		{"dm link", "https://discord.com/channels/@me/" + channelID + "/" + messageID, channelID, messageID},
		{"suppressed embed", "<https://discord.com/channels/1/" + channelID + "/" + messageID + ">", channelID, messageID},
		{"id pair", channelID + "-" + messageID, channelID, messageID},
		{"bare id", messageID, defaultID, messageID},
		{"whitespace", "  " + messageID + " ", defaultID, messageID},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				gotChannel, gotMessage, err := parseMessageReference(tc.ref, defaultID)
				require.NoError(t, err)
				assert.Equal(t, tc.channelID, gotChannel)
				assert.Equal(t, tc.messageID, gotMessage)
			},
		)
	}

	for _, ref := range []string{"", "abc", "123", "https://example.com/channels/1/2/3", channelID + "-abc"} {
		_, _, err := parseMessageReference(ref, defaultID)
		assert.ErrorIs(t, err, ErrMessageNotFound, ref)
	}

	_, _, err := parseMessageReference(messageID, "")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageJumpURL(t *testing.T) {
	m := &discordgo.Message{ID: "3", ChannelID: "2", GuildID: "9"}
	assert.Equal(t, "https://discord.com/channels/1/2/3", messageJumpURL("1", m))
	assert.Equal(t, "https://discord.com/channels/9/2/3", messageJumpURL("", m))

	m.GuildID = ""
	assert.Equal(t, "https://discord.com/channels/@me/2/3", messageJumpURL("", m))
}

func TestSnowflakeLess(t *testing.T) {
	assert.True(t, snowflakeLess("99", "100"))
	assert.True(t, snowflakeLess("100", "101"))
	assert.False(t, snowflakeLess("101", "100"))
	assert.False(t, snowflakeLess("100", "100"))
	assert.False(t, snowflakeLess("1000", "999"))
}

func TestIsAllDigits(t *testing.T) {
	assert.True(t, isAllDigits("0123"))
	assert.False(t, isAllDigits(""))
	assert.False(t, isAllDigits("12a"))
	assert.False(t, isAllDigits("-1"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "hel", truncate("hello", 3))
	assert.Equal(t, "➣➣", truncate("➣➣➣", 2))
	assert.Equal(t, "", truncate("abc", 0))
}

func TestChunkItems(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunkItems(2, 1, 2, 3, 4, 5))
	assert.Equal(t, [][]int{{1, 2, 3}}, chunkItems(5, 1, 2, 3))
	assert.Nil(t, chunkItems[int](5))
}

func TestStructToSlogValue(t *testing.T) {
	type inner struct {
		Name string `json:"name"`
	}
	type sample struct {
		Token   string   `json:"token" log:"[redacted]"`
		Name    string   `json:"name,omitempty"`
		Empty   string   `json:"empty"`
		Count   int      `json:"count"`
		Tags    []string `json:"tags"`
		Inner   *inner   `json:"inner"`
		NoTag   bool
		private string
	}

	v := structToSlogValue(
		&sample{
			Token:   "secret",
			Name:    "bot",
			Count:   3,
			Inner:   &inner{Name: "x"},
			NoTag:   true,
			private: "hidden",
		},
	)
	require.Equal(t, slog.KindGroup, v.Kind())

	attrs := map[string]slog.Value{}
	for _, a := range v.Group() {
		attrs[a.Key] = a.Value
	}
	assert.Equal(t, "[redacted]", attrs["token"].String())
	assert.Equal(t, "bot", attrs["name"].String())
	assert.Equal(t, int64(3), attrs["count"].Int64())
	assert.True(t, attrs["NoTag"].Bool())
	assert.NotContains(t, attrs, "empty")
	assert.NotContains(t, attrs, "tags")
	assert.NotContains(t, attrs, "private")

	require.Equal(t, slog.KindGroup, attrs["inner"].Kind())
	assert.Equal(t, "name", attrs["inner"].Group()[0].Key)

	assert.Equal(t, slog.KindAny, structToSlogValue(nil).Kind())
	assert.Equal(t, slog.KindAny, structToSlogValue((*sample)(nil)).Kind())
	assert.Equal(t, "plain", structToSlogValue("plain").String())
}

func TestContextLogger(t *testing.T) {
	_, ok := ContextLogger(context.Background())
	assert.False(t, ok)

	logger := slog.Default().With("k", "v")
	got, ok := ContextLogger(WithLogger(context.Background(), logger))
	require.True(t, ok)
	assert.Same(t, logger, got)

	got, ok = ContextLogger(WithLogger(context.Background(), nil))
	require.True(t, ok)
	assert.NotNil(t, got)
}

func TestReactionEmojiID(t *testing.T) {
	assert.Equal(t, "news:123", reactionEmojiID("<:news:123>"))
	assert.Equal(t, "party:456", reactionEmojiID("<a:party:456>"))
	assert.Equal(t, "news:123", reactionEmojiID(" news:123 "))
	assert.Equal(t, "👍", reactionEmojiID("👍"))
}

func TestRESTErrorHelpers(t *testing.T) {
	forbidden := fmt.Errorf("wrapped: %w", restError(http.StatusForbidden))
	notFound := restError(http.StatusNotFound)

	assert.True(t, isForbidden(forbidden))
	assert.False(t, isNotFound(forbidden))
	assert.True(t, isNotFound(notFound))
	assert.False(t, isForbidden(notFound))
	assert.False(t, isForbidden(errors.New("nope")))
	assert.False(t, isNotFound(&discordgo.RESTError{}))
}

func TestValidationError(t *testing.T) {
	var err error = &ValidationError{Message: "bad"}
	assert.Equal(t, "bad", err.Error())

	var validationErr *ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &validationErr))
}
