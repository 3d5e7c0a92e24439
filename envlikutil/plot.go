/*
Copyright © 2019 the envlik authors.
This file is part of envlik.

envlik is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

envlik is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with envlik.  If not, see <http://www.gnu.org/licenses/>.
*/

package envlikutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/envlik"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot draws the likelihood surface in the given slot of the NetCDF
// output file outputFile and saves it as a PNG image to plotFile, which
// can be a blob storage location.
func Plot(ctx context.Context, outputFile string, slot int, plotFile string) error {
	f, err := os.Open(outputFile)
	if err != nil {
		return fmt.Errorf("envlik: opening output file for plotting: %v", err)
	}
	defer f.Close()
	st, dates, lon, lat, err := envlik.ReadStackNCF(f)
	if err != nil {
		return err
	}
	if slot < 0 || slot >= st.Len() {
		return fmt.Errorf("envlik: slot %d is outside of the %d days in %s", slot, st.Len(), outputFile)
	}
	p, err := heatMap(grid{data: st.Slot(slot), lon: lon, lat: lat}, dates[slot])
	if err != nil {
		return err
	}

	var upload uploader
	w, err := os.Create(upload.maybeUpload(plotFile))
	if err != nil {
		return fmt.Errorf("envlik: creating plot file: %v", err)
	}
	wt, err := p.WriterTo(6*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		w.Close()
		return err
	}
	if _, err = wt.WriteTo(w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return upload.uploadOutput(ctx)
}

// heatMap plots a normalized likelihood grid.
func heatMap(g grid, date time.Time) (*plot.Plot, error) {
	nx, ny := g.Dims()
	if nx < 2 || ny < 2 {
		return nil, fmt.Errorf("envlik: cannot plot a %dx%d grid", nx, ny)
	}
	cm := moreland.ExtendedBlackBody()
	cm.SetMin(0)
	cm.SetMax(1)
	h := plotter.NewHeatMap(g, cm.Palette(255))
	h.Min, h.Max = 0, 1

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Likelihood %s", date.Format("2006-01-02"))
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(h)
	return p, nil
}

// grid is a [lat, lon] likelihood grid that satisfies plotter.GridXYZ.
type grid struct {
	data     *sparse.DenseArray
	lon, lat []float64
}

func (g grid) Dims() (c, r int)   { return len(g.lon), len(g.lat) }
func (g grid) Z(c, r int) float64 { return g.data.Get(r, c) }
func (g grid) X(c int) float64    { return g.lon[c] }
func (g grid) Y(r int) float64    { return g.lat[r] }
