package api

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/kerbside-data/sentinel.report/internal/httputil"
)

// renderZonePlot draws the configured restriction zones in frame pixel
// coordinates as a PNG. Handy for checking a zone polygon against the
// camera view without the dashboard.
func (s *Server) renderZonePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	p := plot.New()
	p.Title.Text = "Restriction Zones"
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"
	// Image coordinates grow downward.
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	zoneColors := []color.RGBA{
		{R: 215, G: 48, B: 39, A: 255},
		{R: 69, G: 117, B: 180, A: 255},
		{R: 26, G: 152, B: 80, A: 255},
		{R: 244, G: 165, B: 30, A: 255},
	}

	for i, z := range s.cfg.Zones {
		pts := make(plotter.XYs, 0, len(z.Polygon)+1)
		for _, v := range z.Polygon {
			pts = append(pts, plotter.XY{X: v[0], Y: v[1]})
		}
		if len(z.Polygon) > 0 {
			pts = append(pts, plotter.XY{X: z.Polygon[0][0], Y: z.Polygon[0][1]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to plot zone %s: %v", z.ID, err))
			return
		}
		line.Width = vg.Points(2)
		line.Color = zoneColors[i%len(zoneColors)]
		p.Add(line)
		p.Legend.Add(z.ID, line)
	}

	// Lane direction arrow drawn as a short segment from the frame center.
	if len(s.cfg.LaneDirection) == 2 {
		const arrowLen = 120.0
		cx, cy := 640.0, 360.0
		dir := plotter.XYs{
			{X: cx, Y: cy},
			{X: cx + s.cfg.LaneDirection[0]*arrowLen, Y: cy + s.cfg.LaneDirection[1]*arrowLen},
		}
		line, err := plotter.NewLine(dir)
		if err == nil {
			line.Width = vg.Points(1)
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
			p.Add(line)
			p.Legend.Add("lane direction", line)
		}
	}

	canvas := vgimg.PngCanvas{Canvas: vgimg.New(8*vg.Inch, 5*vg.Inch)}
	p.Draw(draw.New(canvas))

	w.Header().Set("Content-Type", "image/png")
	if _, err := canvas.WriteTo(w); err != nil {
		// Headers are already out; nothing left to do but log via the
		// request middleware's status line.
		return
	}
}
