package handlers

import (
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"feedcast/internal/apperr"
	"feedcast/internal/auth"
	"feedcast/internal/httpx"
	"feedcast/internal/mailer"
	"feedcast/internal/models"
)

var (
	ErrInvalidCredentials  = apperr.Auth("auth.invalidCredentials")
	ErrInvalidTelegramData = apperr.Auth("auth.invalidTelegramData")
)

// initDataMaxAge bounds how old a Mini App launch payload may be.
const initDataMaxAge = 24 * time.Hour

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type telegramAuthRequest struct {
	InitData string `json:"initData" validate:"required"`
}

type userResponse struct {
	User *models.User `json:"user"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpx.Error(w, r, apperr.Internal(err))
		return
	}
	user, err := h.store.CreateUser(r.Context(), req.Email, hash, strings.TrimSpace(req.Name))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.startSession(w, user.ID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	log.WithField("user_id", user.ID).Info("User registered")
	httpx.JSON(w, http.StatusCreated, userResponse{User: user})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if apperr.IsKind(err, apperr.KindNotFound) {
		httpx.Error(w, r, ErrInvalidCredentials)
		return
	}
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if user.PasswordHash == nil || !auth.CheckPassword(*user.PasswordHash, req.Password) {
		httpx.Error(w, r, ErrInvalidCredentials)
		return
	}
	if err := h.startSession(w, user.ID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{User: user})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	httpx.JSON(w, http.StatusOK, nil)
}

// ForgotPassword answers 200 whether or not the address belongs to a user.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if apperr.IsKind(err, apperr.KindNotFound) {
		httpx.JSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	token, err := auth.NewResetToken()
	if err != nil {
		httpx.Error(w, r, apperr.Internal(err))
		return
	}
	ttl := h.cfg.Auth.ResetTokenTTL
	if err := h.store.CreatePasswordReset(r.Context(), token, user.ID, h.now().Add(ttl)); err != nil {
		httpx.Error(w, r, err)
		return
	}

	resetURL := h.cfg.BaseURL + "/reset-password?token=" + token
	msg := mailer.PasswordResetMessage(*user.Email, user.Name, resetURL, ttl)
	if err := h.mail.Send(r.Context(), msg); err != nil {
		log.Printf("Error sending password reset email to user %d: %v", user.ID, err)
	}
	httpx.JSON(w, http.StatusOK, nil)
}

func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpx.Error(w, r, apperr.Internal(err))
		return
	}
	if err := h.store.ConsumePasswordReset(r.Context(), req.Token, hash, h.now()); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nil)
}

// TelegramAuth logs a Telegram Mini App user in from its signed launch data.
func (h *Handlers) TelegramAuth(w http.ResponseWriter, r *http.Request) {
	var req telegramAuthRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	botToken := h.cfg.Telegram.BotToken
	if botToken == "" {
		log.Println("TELEGRAM_BOT_TOKEN is not set")
		httpx.Error(w, r, ErrInvalidTelegramData)
		return
	}
	if err := initdata.Validate(req.InitData, botToken, initDataMaxAge); err != nil {
		log.Printf("Invalid init data: %v", err)
		httpx.Error(w, r, ErrInvalidTelegramData)
		return
	}
	data, err := initdata.Parse(req.InitData)
	if err != nil || data.User.ID == 0 {
		log.Printf("Error parsing init data: %v", err)
		httpx.Error(w, r, ErrInvalidTelegramData)
		return
	}

	user, err := h.store.UpsertTelegramUser(r.Context(), data.User.ID, telegramName(data.User.FirstName, data.User.LastName, data.User.Username))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.startSession(w, user.ID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{User: user})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{User: user})
}

func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	status, err := h.ledger.CheckUsageLimit(r.Context(), id.UserID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handlers) startSession(w http.ResponseWriter, userID int64) error {
	token, err := h.tokens.Issue(userID)
	if err != nil {
		return apperr.Internal(err)
	}
	http.SetCookie(w, h.sessionCookie(token, int(h.tokens.TTL().Seconds())))
	return nil
}

func (h *Handlers) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func telegramName(first, last, username string) string {
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		name = username
	}
	return name
}
