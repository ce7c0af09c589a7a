package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"bailacheck/cmd/middleware"
	"bailacheck/internal/notifier"
	"bailacheck/internal/service"
)

type Routers struct {
	Service service.Service
	Hub     *notifier.Hub
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(middleware.AuthMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.GET("/events", r.Service.GetEvents)
	apiGroup.POST("/events/:id/checkin", r.Service.ToggleCheckin)

	apiGroup.GET("/checkins", r.Service.GetUserCheckins)
	apiGroup.GET("/checkins/summary", r.Service.GetCheckinSummary)
	apiGroup.GET("/checkins/by-users", r.Service.GetCheckinsByUsers)

	apiGroup.GET("/me/checkins", r.Service.GetMyCheckins)
	apiGroup.GET("/me/upcoming", r.Service.GetUpcomingCheckins)
	apiGroup.GET("/me/profile", r.Service.GetProfile)
	apiGroup.PUT("/me/profile", r.Service.SaveProfile)

	apiGroup.GET("/profiles/search", r.Service.SearchProfiles)
	apiGroup.GET("/relations", r.Service.GetRelations)

	apiGroup.GET("/friends", r.Service.GetFriends)
	apiGroup.DELETE("/friends/:id", r.Service.RemoveFriend)
	apiGroup.GET("/friends/requests", r.Service.GetFriendRequests)
	apiGroup.POST("/friends/requests", r.Service.SendFriendRequest)
	apiGroup.POST("/friends/requests/accept", r.Service.AcceptFriendRequest)
	apiGroup.POST("/friends/requests/decline", r.Service.DeclineFriendRequest)

	if r.Hub != nil {
		apiGroup.GET("/ws", func(c *ginext.Context) {
			uid := c.GetString("user_id")
			if uid == "" {
				c.AbortWithStatus(401)
				return
			}
			_ = r.Hub.Subscribe(c.Writer, c.Request, uid)
		})
	}

	// App shell, cached by the offline proxy in front of this service.
	for _, route := range []string{"/", "/events-page", "/profile-page", "/offline"} {
		page := route
		app.GET(page, func(c *ginext.Context) {
			if page == "/offline" {
				c.File("./frontend/offline.html")
				return
			}
			c.File("./frontend/index.html")
		})
	}
	app.GET("/manifest.json", func(c *ginext.Context) {
		c.File("./frontend/manifest.json")
	})
	app.Static("/frontend", "./frontend")

	return app
}
