package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachDebugRoutes mounts the HTML charts on the debug handler.
func (s *Server) AttachDebugRoutes(debug *tsweb.DebugHandler) {
	debug.Handle("parking-chart", "Sessions and revenue per space", http.HandlerFunc(s.handleSessionChart))
}

// handleSessionChart renders bar charts of session count and revenue per
// space. Accepts the same date filter as /api/sessions.
func (s *Server) handleSessionChart(w http.ResponseWriter, r *http.Request) {
	f, err := parseSessionFilter(r, 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	list, err := s.store.ListSessions(r.Context(), db.SessionFilter{Date: f.Date})
	if err != nil {
		httputil.InternalServerError(w, "Failed to list sessions: "+err.Error())
		return
	}
	sum := Summarize(list)

	counts := map[int]SpaceSummary{}
	for _, ps := range sum.PerSpace {
		counts[ps.SpaceID] = ps
	}

	// Every configured space gets a bar, including idle ones.
	x := make([]string, 0, len(s.spaces))
	countData := make([]opts.BarData, 0, len(s.spaces))
	revenueData := make([]opts.BarData, 0, len(s.spaces))
	for _, def := range s.spaces {
		ps := counts[def.ID]
		x = append(x, strconv.Itoa(def.ID))
		countData = append(countData, opts.BarData{Value: ps.Count})
		revenueData = append(revenueData, opts.BarData{Value: ps.Revenue})
	}

	subtitle := f.Date
	if subtitle == "" {
		subtitle = "all dates"
	}
	subtitle = fmt.Sprintf("%s, %d sessions, generated %s", subtitle, sum.Count, time.Now().Format(time.RFC3339))

	sessionsBar := charts.NewBar()
	sessionsBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Sessions per space", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Space"}),
	)
	sessionsBar.SetXAxis(x).
		AddSeries("sessions", countData,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	revenueBar := charts.NewBar()
	revenueBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Revenue per space", Subtitle: fmt.Sprintf("total %.2f", sum.Revenue)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Space"}),
	)
	revenueBar.SetXAxis(x).
		AddSeries("revenue", revenueData,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(sessionsBar, revenueBar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
