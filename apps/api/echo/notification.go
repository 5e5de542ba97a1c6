package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core/notification"
)

type notificationApi struct {
	svc  *notification.Service
	auth *Auth
}

func registerNotificationAPI(g *echo.Group, auth *Auth, svc *notification.Service) {
	api := notificationApi{svc: svc, auth: auth}

	ng := g.Group("/notifications", auth.required()...)
	ng.GET("", api.query)
	ng.GET("/unread-count", api.unreadCount)
	ng.PUT("/read-all", api.markAllRead)
	ng.PUT("/:id/read", api.markRead)
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	var filter notification.QueryFilter
	filter.UnreadOnly, _ = strconv.ParseBool(ctx.QueryParam("unread"))
	filter.Limit, _ = strconv.Atoi(ctx.QueryParam("limit"))

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	notes, err := api.svc.List(ctx.Request().Context(), ctxUsr, filter)
	if err != nil {
		return err
	}
	if notes == nil {
		notes = []notification.Notification{}
	}
	return respond(ctx, http.StatusOK, "Notifications", "notifications", notes)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	count, err := api.svc.UnreadCount(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return respond(ctx, http.StatusOK, "Unread notifications", "count", count)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id", notification.ErrNotFound)
	if err != nil {
		return err
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	note, err := api.svc.MarkRead(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Notification marked as read", "notification", note)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	count, err := api.svc.MarkAllRead(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return respond(ctx, http.StatusOK, "All notifications marked as read", "count", count)
}
