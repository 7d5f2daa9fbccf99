package router

import (
	"net/http"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/endpoints"
	"livechat-backend/internal/api/middleware"
)

func DashboardRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		dashboardEndpoints := endpoints.NewDashboardEndpoints(s.Sessions())

		var guard []middleware.Middleware
		if s.Auth() != nil {
			guard = append(guard, middleware.ValidateEmployeeJWT(s.Auth()))
		}

		mux.HandleFunc(prefix+"/ai-chat/sessions", s.MakeHTTPHandleFunc(dashboardEndpoints.AISessions, guard...))
		mux.HandleFunc(prefix+"/ai-chat/takeover", s.MakeHTTPHandleFunc(dashboardEndpoints.Takeover, guard...))
		mux.HandleFunc(prefix+"/live-chat/employee", s.MakeHTTPHandleFunc(dashboardEndpoints.Employee, guard...))
		mux.HandleFunc(prefix+"/live-chat/sessions", s.MakeHTTPHandleFunc(dashboardEndpoints.ActiveSessions, guard...))
		mux.HandleFunc(prefix+"/live-chat/messages", s.MakeHTTPHandleFunc(dashboardEndpoints.Messages, guard...))
		mux.HandleFunc(prefix+"/live-chat/session", s.MakeHTTPHandleFunc(dashboardEndpoints.Session, guard...))
		mux.HandleFunc(prefix+"/live-chat/poll", s.MakeHTTPHandleFunc(dashboardEndpoints.Poll, guard...))
		mux.HandleFunc(prefix+"/live-chat/close", s.MakeHTTPHandleFunc(dashboardEndpoints.Close, guard...))
	}
}
