package router

import (
	"net/http"
	"strings"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/endpoints"
	"livechat-backend/internal/api/middleware"
)

func FeedRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		sessionPrefix := strings.TrimRight(prefix, "/") + "/sessions/"
		feedEndpoints := endpoints.NewFeedEndpoints(s.Sessions(), s.Handler(), sessionPrefix)

		var guard []middleware.Middleware
		if s.Auth() != nil {
			guard = append(guard, middleware.ValidateEmployeeQueryToken(s.Auth()))
		}

		mux.HandleFunc(sessionPrefix, s.MakeHTTPHandleFunc(feedEndpoints.SessionFeed))
		mux.HandleFunc(prefix+"/dashboard", s.MakeHTTPHandleFunc(feedEndpoints.DashboardFeed, guard...))
		mux.HandleFunc(prefix+"/rooms", s.MakeHTTPHandleFunc(feedEndpoints.Rooms, guard...))
	}
}
