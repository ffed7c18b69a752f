package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
	"github.com/waterbird-i/wbapi-backend/shared/cqrs"
	"github.com/waterbird-i/wbapi-backend/shared/middleware"
	"github.com/waterbird-i/wbapi-backend/shared/models"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/command"
)

// AccountCommander defines the write-side operations used by UserHandler.
type AccountCommander interface {
	Register(ctx context.Context, cmd cqrs.RegisterCommand) (int64, error)
	RegisterByEmail(ctx context.Context, cmd cqrs.EmailRegisterCommand) (int64, error)
	Login(ctx context.Context, cmd cqrs.LoginCommand) (*command.LoginResult, error)
	LoginByEmail(ctx context.Context, cmd cqrs.EmailLoginCommand) (*command.LoginResult, error)
	Logout(ctx context.Context, cmd cqrs.LogoutCommand) error
	UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) error
	RotateKeys(ctx context.Context, cmd cqrs.RotateKeysCommand) (*models.DevKeyView, error)
	UpdateAvatar(ctx context.Context, cmd cqrs.UpdateAvatarCommand) (string, error)
}

type UserHandler struct {
	commands     AccountCommander
	cookieMaxAge int
	secureCookie bool
}

type RegisterRequest struct {
	UserAccount   string `json:"userAccount" validate:"required"`
	UserPassword  string `json:"userPassword" validate:"required"`
	CheckPassword string `json:"checkPassword" validate:"required"`
}

type LoginRequest struct {
	UserAccount  string `json:"userAccount" validate:"required"`
	UserPassword string `json:"userPassword" validate:"required"`
}

type EmailRequest struct {
	EmailNum     string `json:"emailNum" validate:"required,email"`
	EmailCaptcha string `json:"emailCaptcha" validate:"required"`
}

type UpdateUserRequest struct {
	ID         int64   `json:"id" validate:"required,gt=0"`
	UserName   *string `json:"userName" validate:"omitempty,max=256"`
	UserAvatar *string `json:"userAvatar" validate:"omitempty,max=1024"`
	UserRole   *string `json:"userRole" validate:"omitempty,oneof=user admin"`
}

// LoginResponse is the redacted user plus the token that was also set as a cookie.
type LoginResponse struct {
	*models.LoginUserView
	Token string `json:"token"`
}

func NewUserHandler(commands AccountCommander, tokenTTL time.Duration, secureCookie bool) *UserHandler {
	return &UserHandler{
		commands:     commands,
		cookieMaxAge: int(tokenTTL / time.Second),
		secureCookie: secureCookie,
	}
}

// RegisterRoutes mounts the user API; requireLogin guards the session routes.
func (h *UserHandler) RegisterRoutes(r gin.IRouter, requireLogin gin.HandlerFunc) {
	users := r.Group("/v1/users")
	users.POST("/register", h.Register)
	users.POST("/register/email", h.RegisterByEmail)
	users.POST("/login", h.Login)
	users.POST("/login/email", h.LoginByEmail)
	users.POST("/logout", h.Logout)

	authed := users.Group("", requireLogin)
	authed.GET("/current", h.Current)
	authed.POST("/update", h.UpdateUser)
	authed.POST("/keys", h.RotateKeys)
	authed.POST("/avatar", h.UpdateAvatar)
}

func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id, err := h.commands.Register(c.Request.Context(), cqrs.RegisterCommand{
		UserAccount:   req.UserAccount,
		UserPassword:  req.UserPassword,
		CheckPassword: req.CheckPassword,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	middleware.RespondOK(c, id)
}

func (h *UserHandler) RegisterByEmail(c *gin.Context) {
	var req EmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id, err := h.commands.RegisterByEmail(c.Request.Context(), cqrs.EmailRegisterCommand{
		Email: req.EmailNum,
		Code:  req.EmailCaptcha,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	middleware.RespondOK(c, id)
}

func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	res, err := h.commands.Login(c.Request.Context(), cqrs.LoginCommand{
		UserAccount:  req.UserAccount,
		UserPassword: req.UserPassword,
	})
	h.respondLogin(c, res, err)
}

func (h *UserHandler) LoginByEmail(c *gin.Context) {
	var req EmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	res, err := h.commands.LoginByEmail(c.Request.Context(), cqrs.EmailLoginCommand{
		Email: req.EmailNum,
		Code:  req.EmailCaptcha,
	})
	h.respondLogin(c, res, err)
}

func (h *UserHandler) respondLogin(c *gin.Context, res *command.LoginResult, err error) {
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, res.Token, h.cookieMaxAge, "/", "", h.secureCookie, true)
	middleware.RespondOK(c, LoginResponse{LoginUserView: res.User, Token: res.Token})
}

func (h *UserHandler) Logout(c *gin.Context) {
	tok, cookieErr := c.Cookie(middleware.TokenCookie)

	err := h.commands.Logout(c.Request.Context(), cqrs.LogoutCommand{
		Token:        tok,
		HasIndicator: cookieErr == nil,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.secureCookie, true)
	middleware.RespondOK(c, true)
}

func (h *UserHandler) Current(c *gin.Context) {
	user, ok := middleware.GetLoginUser(c)
	if !ok {
		middleware.RespondWithAppError(c, apperr.NotLogin())
		return
	}
	middleware.RespondOK(c, models.ToLoginUserView(user))
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	caller, ok := middleware.GetLoginUser(c)
	if !ok {
		middleware.RespondWithAppError(c, apperr.NotLogin())
		return
	}

	var req UpdateUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	cmd := cqrs.UpdateUserCommand{
		Caller:     caller,
		TargetID:   req.ID,
		UserName:   req.UserName,
		UserAvatar: req.UserAvatar,
	}
	if req.UserRole != nil {
		role := models.Role(*req.UserRole)
		cmd.UserRole = &role
	}
	if err := h.commands.UpdateUser(c.Request.Context(), cmd); err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	middleware.RespondOK(c, true)
}

// RotateKeys is the only endpoint that ever shows the secret key.
func (h *UserHandler) RotateKeys(c *gin.Context) {
	caller, ok := middleware.GetLoginUser(c)
	if !ok {
		middleware.RespondWithAppError(c, apperr.NotLogin())
		return
	}

	keys, err := h.commands.RotateKeys(c.Request.Context(), cqrs.RotateKeysCommand{Caller: caller})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	middleware.RespondOK(c, keys)
}

func (h *UserHandler) UpdateAvatar(c *gin.Context) {
	caller, ok := middleware.GetLoginUser(c)
	if !ok {
		middleware.RespondWithAppError(c, apperr.NotLogin())
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		middleware.RespondWithAppError(c, apperr.Params("file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		middleware.RespondWithAppError(c, apperr.System("failed to read upload", err))
		return
	}
	defer file.Close()

	url, err := h.commands.UpdateAvatar(c.Request.Context(), cqrs.UpdateAvatarCommand{
		Caller:   caller,
		FileName: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	middleware.RespondOK(c, url)
}

func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithAppError(c, apperr.Params("invalid request body"))
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}
