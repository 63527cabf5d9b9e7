package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/auth"
	"feedcast/internal/db"
	"feedcast/internal/feed"
	"feedcast/internal/models"
	"feedcast/internal/publish"
)

// StartTelegramBot long-polls for commands until ctx is done.
func (h *Handlers) StartTelegramBot(ctx context.Context, token string) error {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return err
	}
	log.Printf("Authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			h.HandleTelegramUpdate(ctx, bot, update)
		}
	}
}

// HandleTelegramUpdate answers one bot command.
func (h *Handlers) HandleTelegramUpdate(ctx context.Context, bot publish.BotSender, update tgbotapi.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}
	log.Printf("[%s] %s", message.From.UserName, message.Text)

	if !message.IsCommand() {
		h.reply(bot, message.Chat.ID, "Send /jobs to list your jobs or /run <id> to generate an episode now.")
		return
	}

	user, err := h.store.UpsertTelegramUser(ctx, message.From.ID, telegramName(message.From.FirstName, message.From.LastName, message.From.UserName))
	if err != nil {
		log.Printf("Error finding or creating user: %v", err)
		h.reply(bot, message.Chat.ID, "Error creating user.")
		return
	}
	id := auth.Identity{UserID: user.ID, Plan: user.Plan}

	switch message.Command() {
	case "start":
		h.reply(bot, message.Chat.ID, fmt.Sprintf(
			"Welcome to feedcast, %s.\nUse chat id <code>%d</code> as a job's Telegram chat to get new episodes here.",
			html.EscapeString(user.Name), message.Chat.ID))
	case "jobs":
		h.handleJobsCommand(ctx, bot, message, id)
	case "run":
		h.handleRunCommand(ctx, bot, message, id)
	default:
		h.reply(bot, message.Chat.ID, "I don't know that command")
	}
}

func (h *Handlers) handleJobsCommand(ctx context.Context, bot publish.BotSender, message *tgbotapi.Message, id auth.Identity) {
	jobs, err := h.store.ListJobsByUser(ctx, id.UserID)
	if err != nil {
		log.Printf("Error getting jobs: %v", err)
		h.reply(bot, message.Chat.ID, "Internal server error")
		return
	}
	if len(jobs) == 0 {
		h.reply(bot, message.Chat.ID, "You have no jobs.")
		return
	}

	var response strings.Builder
	for _, job := range jobs {
		fmt.Fprintf(&response, "%d. <b>%s</b> (%s)", job.ID, html.EscapeString(job.Name), job.Status)
		if job.OutputConfig.PublishRSS {
			fmt.Fprintf(&response, ": %s", feed.FeedURL(h.cfg.BaseURL, &job))
		}
		response.WriteString("\n")
	}
	h.reply(bot, message.Chat.ID, response.String())
}

func (h *Handlers) handleRunCommand(ctx context.Context, bot publish.BotSender, message *tgbotapi.Message, id auth.Identity) {
	jobID, err := strconv.ParseInt(strings.TrimSpace(message.CommandArguments()), 10, 64)
	if err != nil {
		h.reply(bot, message.Chat.ID, "Usage: /run <job id>")
		return
	}

	job, err := h.store.GetJob(ctx, jobID)
	if err == nil {
		err = auth.RequireOwner(id, job.UserID, keyJob)
	}
	if apperr.IsKind(err, apperr.KindNotFound) {
		h.reply(bot, message.Chat.ID, "Job not found.")
		return
	}
	if err != nil {
		log.Printf("Error getting job %d: %v", jobID, err)
		h.reply(bot, message.Chat.ID, "Internal server error")
		return
	}

	run, err := h.dispatcher.Dispatch(ctx, job)
	if errors.Is(err, db.ErrRunInFlight) {
		h.reply(bot, message.Chat.ID, "This job is already running.")
		return
	}
	if err != nil {
		h.reply(bot, message.Chat.ID, "Could not start the job, try again later.")
		return
	}
	h.reply(bot, message.Chat.ID, fmt.Sprintf("Run %d of <b>%s</b> is %s.", run.ID, html.EscapeString(job.Name), models.RunQueued))
}

func (h *Handlers) reply(bot publish.BotSender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := bot.Send(msg); err != nil {
		log.Printf("Error sending Telegram reply: %v", err)
	}
}
