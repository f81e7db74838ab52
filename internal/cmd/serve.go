package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/osmboundaries/internal/catalog"
	"github.com/MeKo-Tech/osmboundaries/internal/config"
	"github.com/MeKo-Tech/osmboundaries/internal/downloader"
	"github.com/MeKo-Tech/osmboundaries/internal/jobs"
	"github.com/MeKo-Tech/osmboundaries/internal/landclip"
	"github.com/MeKo-Tech/osmboundaries/internal/overpass"
	"github.com/MeKo-Tech/osmboundaries/internal/preview"
	"github.com/MeKo-Tech/osmboundaries/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job, catalog, and preview API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
	mustBind("serve.addr", "addr")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	v := viper.GetViper()
	config.Bind(v)
	settings := config.Load(v)

	addr := viper.GetString("serve.addr")

	client := overpass.New(settings.OverpassURL, settings.HTTPUserAgent, settings.HTTPTimeout, logger)
	cat := catalog.New(client, settings.DataDir+"/cache", settings.HTTPTimeout)
	prevFetcher := preview.New(client, settings.DataDir+"/cache", settings.DataDir, false, settings.HTTPTimeout)

	landPolyPath := settings.DataDir + "/cache/land-polygons-split-4326.zip"
	landStore := landclip.NewStore(landPolyPath, settings.LandPolygonsURLs, logger)
	landEngine, err := landclip.NewEngine(landStore)
	if err != nil {
		return fmt.Errorf("failed to construct land clip engine: %w", err)
	}

	dl := downloader.New(settings.DataDir, client, landEngine, landStore, settings.DownloadTimeout)
	jobMgr := jobs.New(dl, logger)

	srv := server.New(jobMgr, cat, prevFetcher, landStore, settings.DataDir, logger)

	logger.Info("serving osmboundaries API",
		"addr", addr,
		"data_dir", settings.DataDir,
		"overpass_url", settings.OverpassURL,
	)
	fmt.Fprintf(os.Stderr, "\n  -> http://%s/api/health\n\n", addr)

	httpServer := &http.Server{Addr: addr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	return httpServer.ListenAndServe()
}
