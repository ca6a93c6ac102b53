package notify

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// listQuery turns the polling query string into a filter and limit.
func listQuery(unread, limit string) (string, int) {
	filter := "id != ''"
	if unread == "1" || unread == "true" {
		filter = "read = false"
	}
	n, err := strconv.Atoi(limit)
	if err != nil || n <= 0 {
		n = defaultLimit
	}
	if n > maxLimit {
		n = maxLimit
	}
	return filter, n
}

// RegisterRoutes exposes the bell widget endpoints to superusers.
func RegisterRoutes(r *router.Router[*core.RequestEvent]) {
	g := r.Group("/api/admin/notifications")
	g.Bind(apis.RequireSuperuserAuth())

	g.GET("", func(e *core.RequestEvent) error {
		filter, limit := listQuery(e.Request.URL.Query().Get("unread"), e.Request.URL.Query().Get("limit"))
		records, err := e.App.FindRecordsByFilter(Collection, filter, "-created", limit, 0)
		if err != nil {
			return e.InternalServerError("Failed to load notifications", err)
		}
		unread, err := e.App.CountRecords(Collection, dbx.HashExp{"read": false})
		if err != nil {
			return e.InternalServerError("Failed to count notifications", err)
		}
		items := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			items = append(items, rec.PublicExport())
		}
		return e.JSON(http.StatusOK, map[string]any{
			"items":  items,
			"unread": unread,
		})
	})

	g.POST("/{id}/read", func(e *core.RequestEvent) error {
		record, err := e.App.FindRecordById(Collection, e.Request.PathValue("id"))
		if errors.Is(err, sql.ErrNoRows) {
			return e.NotFoundError("Notification not found", err)
		}
		if err != nil {
			return e.InternalServerError("Failed to load notification", err)
		}
		record.Set("read", true)
		if err := e.App.Save(record); err != nil {
			return e.InternalServerError("Failed to update notification", err)
		}
		return e.JSON(http.StatusOK, map[string]string{"status": "success"})
	})
}
