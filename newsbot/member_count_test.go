package newsbot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberCounter_Update(t *testing.T) {
	b, d := newTestBot(t)
	ctx := context.Background()

	updated, err := b.memberCounter.update(ctx, testCountChannelID)
	require.NoError(t, err)
	assert.True(t, updated)

	ch, err := d.Channel(testCountChannelID)
	require.NoError(t, err)
	assert.Equal(t, "Members: 1234", ch.Name)

	// unchanged, so there's no rename
	updated, err = b.memberCounter.update(ctx, testCountChannelID)
	require.NoError(t, err)
	assert.False(t, updated)

	d.mu.Lock()
	assert.Len(t, d.channelEdits, 1)
	d.mu.Unlock()
}

func TestMemberCounter_RateLimited(t *testing.T) {
	b, d := newTestBot(t)
	ctx := context.Background()

	for i := 1; i <= memberCountRenameBurst; i++ {
		d.mu.Lock()
		d.memberCounts[testGuildID] = 1000 + i
		d.mu.Unlock()
		updated, err := b.memberCounter.update(ctx, testCountChannelID)
		require.NoError(t, err)
		assert.True(t, updated)
	}

	d.mu.Lock()
	d.memberCounts[testGuildID] = 2000
	d.mu.Unlock()
	updated, err := b.memberCounter.update(ctx, testCountChannelID)
	require.NoError(t, err)
	assert.False(t, updated)

	ch, err := d.Channel(testCountChannelID)
	require.NoError(t, err)
	assert.Equal(t, "Members: 1002", ch.Name)

	// limits are per channel
	updated, err = b.memberCounter.update(ctx, testVoiceChannelID)
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestMemberCounter_Errors(t *testing.T) {
	b, d := newTestBot(t)
	ctx := context.Background()

	_, err := b.memberCounter.update(ctx, "1999999999999999999")
	assert.Error(t, err)

	d.mu.Lock()
	delete(d.memberCounts, testGuildID)
	d.mu.Unlock()
	_, err = b.memberCounter.update(ctx, testCountChannelID)
	assert.Error(t, err)
}

func TestMemberCounter_Enabled(t *testing.T) {
	b, _ := newTestBot(t)
	assert.False(t, b.memberCounter.enabled(), "no channels")

	b.config.MemberCount.ChannelIDs = []string{testCountChannelID}
	b.config.MemberCount.Interval = time.Minute
	assert.True(t, b.memberCounter.enabled())

	b.config.Bot.Extensions = []string{ExtensionAnnouncements}
	assert.False(t, b.memberCounter.enabled(), "extension disabled")

	b.config.Bot.Extensions = []string{ExtensionRStarCitizen}
	b.config.MemberCount.Interval = 0
	assert.False(t, b.memberCounter.enabled(), "no interval")
}

func TestMemberCounter_Run(t *testing.T) {
	b, d := newTestBot(t)
	b.config.MemberCount.ChannelIDs = []string{testCountChannelID}
	b.config.MemberCount.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.memberCounter.Run(ctx)
	}()

	require.Eventually(
		t, func() bool {
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.channels[testCountChannelID].Name == "Members: 1234"
		}, 5*time.Second, 10*time.Millisecond,
	)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("member counter didn't stop")
	}
}
