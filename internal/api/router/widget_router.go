package router

import (
	"net/http"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/endpoints"
)

func WidgetRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		widgetEndpoints := endpoints.NewWidgetEndpoints(s.Sessions())

		mux.HandleFunc(prefix+"/ai-chat/session", s.MakeHTTPHandleFunc(widgetEndpoints.AISession))
		mux.HandleFunc(prefix+"/ai-chat/reply", s.MakeHTTPHandleFunc(widgetEndpoints.AIReply))
		mux.HandleFunc(prefix+"/live-chat/session", s.MakeHTTPHandleFunc(widgetEndpoints.LiveSession))
		mux.HandleFunc(prefix+"/live-chat/messages", s.MakeHTTPHandleFunc(widgetEndpoints.LiveMessages))
		mux.HandleFunc(prefix+"/live-chat/poll", s.MakeHTTPHandleFunc(widgetEndpoints.Poll))
		mux.HandleFunc(prefix+"/live-chat/close", s.MakeHTTPHandleFunc(widgetEndpoints.Close))
	}
}
