package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core/message"
)

type messageApi struct {
	svc      *message.Service
	auth     *Auth
	validate *validator.Validate
}

func registerMessageAPI(g *echo.Group, auth *Auth, svc *message.Service, validate *validator.Validate) {
	api := messageApi{
		svc:      svc,
		auth:     auth,
		validate: validate,
	}

	mg := g.Group("/messages", auth.required()...)
	mg.POST("", api.send)
	mg.GET("/:userId", api.conversation)
}

// Handlers

func (api *messageApi) send(ctx echo.Context) error {
	var data message.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msg, err := api.svc.Send(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, "Message sent", "direct_message", msg)
}

func (api *messageApi) conversation(ctx echo.Context) error {
	otherID, err := objectIDParam(ctx, "userId", message.ErrReceiverNotFound)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	msgs, err := api.svc.Conversation(ctx.Request().Context(), ctxUsr, otherID, limit)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return respond(ctx, http.StatusOK, "Conversation", "messages", msgs)
}
