package main

import (
	"livechat-backend/internal/api"
	"livechat-backend/internal/env"

	"github.com/spf13/cobra"
)

var (
	serveWidget    bool
	serveDashboard bool
	serveFeed      bool
	serveAll       bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWidget, "widget", false, "serve the widget API on WIDGET_ADDR")
	serveCmd.Flags().BoolVar(&serveDashboard, "dashboard", false, "serve the dashboard API on DASHBOARD_ADDR")
	serveCmd.Flags().BoolVar(&serveFeed, "ws", false, "serve the websocket feed on WS_ADDR")
	serveCmd.Flags().BoolVar(&serveAll, "all", false, "serve all three in one process")
}

// serve --all shares one store and one feed hub between the servers, which
// makes the memory backend usable for local development.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run one or more of the servers in this process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAll {
			serveWidget, serveDashboard, serveFeed = true, true, true
		}
		if !serveWidget && !serveDashboard && !serveFeed {
			return cmd.Usage()
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var servers []*api.APIServer
		if serveWidget {
			servers = append(servers, a.WidgetServer(env.GetOrDefault(env.WidgetAddr, ":82")))
		}
		if serveDashboard {
			servers = append(servers, a.DashboardServer(env.GetOrDefault(env.DashboardAddr, ":81")))
		}
		if serveFeed {
			servers = append(servers, a.FeedServer(env.GetOrDefault(env.WSAddr, ":83")))
		}
		return a.Serve(cmd.Context(), servers...)
	},
}
