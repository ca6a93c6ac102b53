package settings

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

type notificationSettings struct {
	NotificationEmail         string `json:"notificationEmail"`
	EmailNotificationsEnabled *bool  `json:"emailNotificationsEnabled"`
}

// RegisterRoutes wires the admin settings form endpoints. All of them
// require a superuser.
func RegisterRoutes(r *router.Router[*core.RequestEvent], newProvider func(core.App) Provider) {
	g := r.Group("/api/admin/settings")
	g.Bind(apis.RequireSuperuserAuth())

	g.GET("/organization", func(e *core.RequestEvent) error {
		org, err := LoadOrganization(newProvider(e.App))
		if err != nil {
			e.App.Logger().Warn("organization config unreadable, serving defaults", "error", err)
		}
		return e.JSON(http.StatusOK, org)
	})

	g.PUT("/organization", func(e *core.RequestEvent) error {
		var org OrganizationConfig
		if err := e.BindBody(&org); err != nil {
			return e.BadRequestError("Invalid request body.", err)
		}
		if err := org.Validate(); err != nil {
			return e.BadRequestError(err.Error(), nil)
		}
		if err := newProvider(e.App).Set(KeyOrganizationConfig, org); err != nil {
			return e.InternalServerError("Failed to save organization config.", err)
		}
		return e.JSON(http.StatusOK, org)
	})

	g.GET("/notifications", func(e *core.RequestEvent) error {
		gate := NotificationGate{Settings: newProvider(e.App)}
		enabled := gate.Enabled()
		return e.JSON(http.StatusOK, notificationSettings{
			NotificationEmail:         gate.Recipient(),
			EmailNotificationsEnabled: &enabled,
		})
	})

	g.PUT("/notifications", func(e *core.RequestEvent) error {
		var body notificationSettings
		if err := e.BindBody(&body); err != nil {
			return e.BadRequestError("Invalid request body.", err)
		}
		p := newProvider(e.App)
		addr := strings.TrimSpace(body.NotificationEmail)
		if addr != "" {
			if _, err := mail.ParseAddress(addr); err != nil {
				return e.BadRequestError("Invalid notification email.", err)
			}
		}
		if err := p.Set(KeyNotificationEmail, addr); err != nil {
			return e.InternalServerError("Failed to save settings.", err)
		}
		if body.EmailNotificationsEnabled != nil {
			if err := p.Set(KeyEmailNotificationsEnabled, *body.EmailNotificationsEnabled); err != nil {
				return e.InternalServerError("Failed to save settings.", err)
			}
		}
		return e.JSON(http.StatusOK, map[string]string{"status": "success"})
	})
}
