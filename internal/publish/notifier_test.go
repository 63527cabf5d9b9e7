package publish

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcast/internal/mailer"
	"feedcast/internal/models"
)

type fakeMail struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMail) Send(ctx context.Context, msg mailer.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func fixtures() (*models.User, *models.Job, *models.Podcast) {
	email := "ada@example.com"
	user := &models.User{ID: 1, Email: &email}
	job := &models.Job{ID: 2, Name: "Morning <Go>", FeedUUID: "feed-1"}
	podcast := &models.Podcast{ID: 3, Title: "Go 1.24", AudioURL: "https://cdn/a.mp3"}
	return user, job, podcast
}

func TestPublishedFansOut(t *testing.T) {
	user, job, podcast := fixtures()
	job.OutputConfig = models.OutputConfig{NotifyEmail: true, TelegramChatID: 42, PublishRSS: true}
	mail, bot := &fakeMail{}, &fakeBot{}

	n := NewNotifier(mail, bot, "https://feedcast.app")
	require.NoError(t, n.Published(context.Background(), user, job, podcast))

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "ada@example.com", mail.sent[0].To)
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "Morning &lt;Go&gt;")
	assert.Contains(t, bot.sent[0].Text, "https://feedcast.app/rss/feed-1")
}

func TestPublishedSkipsDisabledChannels(t *testing.T) {
	user, job, podcast := fixtures()
	mail, bot := &fakeMail{}, &fakeBot{}

	require.NoError(t, NewNotifier(mail, bot, "").Published(context.Background(), user, job, podcast))
	assert.Empty(t, mail.sent)
	assert.Empty(t, bot.sent)

	job.OutputConfig.TelegramChatID = 42
	require.NoError(t, NewNotifier(nil, nil, "").Published(context.Background(), user, job, podcast))
}

func TestPublishedContinuesAfterEmailFailure(t *testing.T) {
	user, job, podcast := fixtures()
	job.OutputConfig = models.OutputConfig{NotifyEmail: true, TelegramChatID: 42}
	mail, bot := &fakeMail{err: errors.New("smtp down")}, &fakeBot{}

	err := NewNotifier(mail, bot, "").Published(context.Background(), user, job, podcast)
	assert.EqualError(t, err, "smtp down")
	assert.Len(t, bot.sent, 1)
}
