package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kerbside-data/sentinel.report/internal/httputil"
)

// showHourlyChart renders the trailing 24h alert distribution as an HTML
// bar chart. Debugging/ops convenience, not part of the dashboard API.
func (s *Server) showHourlyChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	buckets, err := s.db.GetHourlyCounts(s.clock.Now())
	if err != nil {
		httputil.InternalServerError(w, "failed to compute hourly counts")
		return
	}

	labels := make([]string, len(buckets))
	data := make([]opts.BarData, len(buckets))
	var total int64
	for i, b := range buckets {
		labels[i] = b.Hour.Local().Format("15:04")
		data[i] = opts.BarData{Value: b.Count}
		total += b.Count
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Alerts by Hour", Theme: "dark", Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Violation Alerts, Trailing 24h", Subtitle: fmt.Sprintf("total=%d", total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Hour"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Alerts"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("alerts", data)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
