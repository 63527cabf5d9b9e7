// Package publish tells a job owner that a new episode is out.
package publish

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/feed"
	"feedcast/internal/mailer"
	"feedcast/internal/models"
)

// BotSender is the part of *tgbotapi.BotAPI the notifier uses.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	mail    mailer.Sender
	bot     BotSender
	baseURL string
}

// NewNotifier accepts a nil mail sender or bot; the matching channel is then skipped.
func NewNotifier(mail mailer.Sender, bot BotSender, baseURL string) *Notifier {
	return &Notifier{mail: mail, bot: bot, baseURL: baseURL}
}

// Published fans out per job.OutputConfig. It reports the first failure but
// still attempts every channel.
func (n *Notifier) Published(ctx context.Context, user *models.User, job *models.Job, podcast *models.Podcast) error {
	var firstErr error
	out := job.OutputConfig

	if out.NotifyEmail && n.mail != nil && user.Email != nil {
		msg := mailer.EpisodePublishedMessage(*user.Email, job.Name, podcast.Title, podcast.Description, podcast.AudioURL)
		if err := n.mail.Send(ctx, msg); err != nil {
			log.Printf("Error emailing user %d about podcast %d: %v", user.ID, podcast.ID, err)
			firstErr = err
		}
	}

	if out.TelegramChatID != 0 && n.bot != nil {
		msg := tgbotapi.NewMessage(out.TelegramChatID, n.telegramText(job, podcast))
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.bot.Send(msg); err != nil {
			log.Printf("Error sending Telegram message for podcast %d: %v", podcast.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (n *Notifier) telegramText(job *models.Job, podcast *models.Podcast) string {
	text := fmt.Sprintf("<b>%s</b>\n%s\n%s", html.EscapeString(job.Name), html.EscapeString(podcast.Title), podcast.AudioURL)
	if job.OutputConfig.PublishRSS {
		text += "\nRSS: " + feed.FeedURL(n.baseURL, job)
	}
	return text
}
