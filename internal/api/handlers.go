package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/changefeed"
	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/models"
	"github.com/axellelanca/affiliatelinks/internal/services"
)

// Dependencies groups what the routes need.
type Dependencies struct {
	Links    *services.LinkService
	Resolver *services.Resolver
	Activity *services.ActivityService
	Broker   changefeed.Broker
	Gatherer prometheus.Gatherer
	BaseURL  string
	Log      *zap.Logger
	// StreamsDone is closed when the server shuts down and ends every watch stream.
	StreamsDone <-chan struct{}
}

// SetupRoutes configures all Gin routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", HealthCheckHandler)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/links", CreateLinkHandler(deps.Links, deps.BaseURL))
		api.GET("/links", ListLinksHandler(deps.Links))
		api.GET("/links/:shortId", GetLinkHandler(deps.Links))
		api.PATCH("/links/:shortId", UpdateLinkHandler(deps.Links))
		api.DELETE("/links/:shortId", DeleteLinkHandler(deps.Links))
		api.GET("/links/:shortId/stats", GetLinkStatsHandler(deps.Links))
		api.GET("/links/:shortId/daily", DailyStatsHandler(deps.Links))
		api.GET("/links/:shortId/watch", WatchLinkHandler(deps.Links, deps.Broker, deps.StreamsDone))
		api.GET("/stats/daily", SiteDailyStatsHandler(deps.Links))
		api.GET("/activity", ListActivityHandler(deps.Activity))
		api.POST("/activity", LogActivityHandler(deps.Activity))
	}

	// Both the query form and the path form redirect.
	router.GET("/r", RedirectHandler(deps.Resolver, queryShortID))
	router.GET("/r/", RedirectHandler(deps.Resolver, queryShortID))
	router.GET("/:shortId", RedirectHandler(deps.Resolver, pathShortID))
}

func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps service errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var status int
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrAliasConflict):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidAlias),
		errors.Is(err, apperrors.ErrInvalidURL),
		errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrShortIDGenerationFailed),
		errors.Is(err, apperrors.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryShortID(c *gin.Context) string { return strings.TrimSpace(c.Query("l")) }
func pathShortID(c *gin.Context) string  { return c.Param("shortId") }

// RedirectHandler counts the click and sends the visitor to the destination.
func RedirectHandler(resolver *services.Resolver, shortID func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := resolver.Resolve(c.Request.Context(), shortID(c), services.ClientInfo{
			UserAgent: c.Request.UserAgent(),
			IP:        c.ClientIP(),
		})
		if err != nil {
			_ = c.Error(err)
			if errors.Is(err, apperrors.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}

		// Every visit must reach the server to be counted.
		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, res.Destination)
	}
}

type linkResponse struct {
	*models.Link
	ShortURL       string `json:"short_url,omitempty"`
	ConversionRate string `json:"conversion_rate"`
}

func newLinkResponse(link *models.Link, baseURL string) linkResponse {
	resp := linkResponse{Link: link, ConversionRate: link.ConversionRate().StringFixed(2)}
	if baseURL != "" {
		resp.ShortURL = strings.TrimRight(baseURL, "/") + "/" + link.ShortID
	}
	return resp
}

func CreateLinkHandler(links *services.LinkService, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.LinkInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		link, err := links.CreateLink(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, newLinkResponse(link, baseURL))
	}
}

func ListLinksHandler(links *services.LinkService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := links.ListLinks(c.Request.Context(), c.Query("affiliate"))
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]linkResponse, 0, len(list))
		for i := range list {
			out = append(out, newLinkResponse(&list[i], ""))
		}
		c.JSON(http.StatusOK, gin.H{"links": out})
	}
}

func GetLinkHandler(links *services.LinkService) gin.HandlerFunc {
	return func(c *gin.Context) {
		link, err := links.GetLink(c.Request.Context(), c.Param("shortId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newLinkResponse(link, ""))
	}
}

func UpdateLinkHandler(links *services.LinkService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch services.LinkPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		link, err := links.UpdateLink(c.Request.Context(), c.Param("shortId"), patch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newLinkResponse(link, ""))
	}
}

func DeleteLinkHandler(links *services.LinkService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := links.DeleteLink(c.Request.Context(), c.Param("shortId")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// GetLinkStatsHandler returns the lifetime counters of a link.
func GetLinkStatsHandler(links *services.LinkService) gin.HandlerFunc {
	return func(c *gin.Context) {
		link, err := links.GetLinkStats(c.Request.Context(), c.Param("shortId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"short_id":        link.ShortID,
			"name":            link.Name,
			"original_url":    link.OriginalURL,
			"mode":            link.Mode,
			"clicks":          link.Clicks,
			"conversions":     link.Conversions,
			"conversion_rate": link.ConversionRate().StringFixed(2),
			"created_at":      link.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
}

func DailyStatsHandler(links *services.LinkService) gin.HandlerFunc {
	return func(c *gin.Context) {
		shortID := c.Param("shortId")
		rows, err := links.DailyStats(c.Request.Context(), shortID, c.Query("from"), c.Query("to"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"short_id": shortID, "days": rows})
	}
}

func SiteDailyStatsHandler(links *services.LinkService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := links.SiteDailyStats(c.Request.Context(), c.Query("from"), c.Query("to"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"days": rows})
	}
}

// WatchLinkHandler streams committed snapshots of a link as server-sent events.
// The current state is sent first. The stream ends when the link is deleted,
// the client leaves or done is closed.
func WatchLinkHandler(links *services.LinkService, broker changefeed.Broker, done <-chan struct{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		link, err := links.GetLink(ctx, c.Param("shortId"))
		if err != nil {
			respondError(c, err)
			return
		}
		feed, err := broker.Subscribe(ctx, link.ShortID)
		if err != nil {
			respondError(c, errors.Join(apperrors.ErrStoreUnavailable, err))
			return
		}

		c.Header("Cache-Control", "no-cache")
		initial := true
		c.Stream(func(io.Writer) bool {
			if initial {
				initial = false
				c.SSEvent("snapshot", changefeed.SnapshotOf(*link, false))
				return true
			}
			select {
			case <-ctx.Done():
				return false
			case <-done:
				return false
			case snap, ok := <-feed:
				if !ok {
					return false
				}
				c.SSEvent("snapshot", snap)
				return !snap.Deleted
			}
		})
	}
}

func ListActivityHandler(activity *services.ActivityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
				return
			}
			limit = n
		}
		entries, err := activity.Recent(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"activity": entries})
	}
}

func LogActivityHandler(activity *services.ActivityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.ActivityInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		entry, err := activity.Log(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}
