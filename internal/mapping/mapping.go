// Package mapping renders the daily traversal map: an overview of the whole
// leg next to a detailed view of the stretch each participant covered today.
package mapping

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log"
	"time"

	sm "github.com/flopp/go-staticmaps"
	"github.com/golang/geo/s2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/eirki/trek-api/internal/geo"
	"github.com/eirki/trek-api/internal/progress"
)

const (
	mapWidth  = 1000
	mapHeight = 600
)

type Uploader interface {
	Upload(ctx context.Context, data []byte, trekID, legID string, date time.Time, name string) (string, error)
}

type Renderer struct {
	uploader Uploader
}

func NewRenderer(uploader Uploader) *Renderer {
	return &Renderer{uploader: uploader}
}

// Tile fetching hooks the network, tests swap this out.
var renderImage = func(c *sm.Context) (image.Image, error) {
	img, err := c.Render()
	if err != nil {
		// Tile servers are flaky, one retry covers most failures.
		img, err = c.Render()
	}
	return img, err
}

func (r *Renderer) RenderTraversalMap(ctx context.Context, trekID, legID string, date time.Time, m progress.TraversalMap) string {
	overview, err := renderImage(overviewContext(m))
	if err != nil {
		log.Printf("mapping: rendering overview for trek %s: %v", trekID, err)
		overview = nil
	}
	detail, err := renderImage(detailContext(m))
	if err != nil {
		log.Printf("mapping: rendering detail for trek %s: %v", trekID, err)
		detail = nil
	}
	merged := mergeMaps(overview, detail)
	if merged == nil {
		return ""
	}
	data, err := jpegBytes(merged)
	if err != nil {
		log.Printf("mapping: encoding map for trek %s: %v", trekID, err)
		return ""
	}
	url, err := r.uploader.Upload(ctx, data, trekID, legID, date, "traversal_map")
	if err != nil {
		log.Printf("mapping: uploading map for trek %s: %v", trekID, err)
		return ""
	}
	return url
}

func overviewContext(m progress.TraversalMap) *sm.Context {
	c := newContext()
	if len(m.OldTrail) > 1 {
		c.AddObject(sm.NewPath(latLngs(m.OldTrail), color.Gray{Y: 0x80}, 2))
	}
	for _, stop := range m.Stops {
		c.AddObject(sm.NewMarker(latLng(stop), color.RGBA{B: 0xff, A: 0xff}, 6))
	}
	if len(m.Trail) > 1 {
		c.AddObject(sm.NewPath(latLngs(m.Trail), color.RGBA{R: 0xff, A: 0xff}, 2))
	}
	c.AddObject(sm.NewMarker(latLng(m.Current), color.RGBA{R: 0xff, A: 0xff}, 6))
	return c
}

func detailContext(m progress.TraversalMap) *sm.Context {
	c := newContext()
	if len(m.DaySegments) == 0 {
		c.AddObject(sm.NewMarker(latLng(m.Current), color.RGBA{R: 0xff, A: 0xff}, 6))
		return c
	}
	start := m.DaySegments[0].Points[0]
	c.AddObject(sm.NewMarker(latLng(start), color.Black, 6))
	c.AddObject(sm.NewMarker(latLng(start), color.Gray{Y: 0x80}, 4))
	for _, seg := range m.DaySegments {
		if len(seg.Points) == 0 {
			continue
		}
		col := parseColor(seg.Color)
		if len(seg.Points) > 1 {
			// Grey underlay keeps short segments visible on busy tiles.
			c.AddObject(sm.NewPath(latLngs(seg.Points), color.Gray{Y: 0x80}, 4))
			c.AddObject(sm.NewPath(latLngs(seg.Points), col, 2))
		}
		end := seg.Points[len(seg.Points)-1]
		c.AddObject(sm.NewMarker(latLng(end), color.Black, 6))
		c.AddObject(sm.NewMarker(latLng(end), col, 4))
	}
	return c
}

func newContext() *sm.Context {
	c := sm.NewContext()
	c.SetSize(mapWidth, mapHeight)
	c.SetTileProvider(cartoVoyager())
	return c
}

func cartoVoyager() *sm.TileProvider {
	return &sm.TileProvider{
		Name:        "carto-voyager",
		Attribution: "Maps (c) CARTO, Data (c) OpenStreetMap contributors",
		TileSize:    256,
		URLPattern:  "https://%[1]s.basemaps.cartocdn.com/rastertiles/voyager/%[2]d/%[3]d/%[4]d.png",
		Shards:      []string{"a", "b", "c", "d"},
	}
}

func latLng(p geo.Point) s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

func latLngs(points []geo.Point) []s2.LatLng {
	out := make([]s2.LatLng, len(points))
	for i, p := range points {
		out[i] = latLng(p)
	}
	return out
}

func parseColor(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{R: 0xff, A: 0xff}
	}
	return c
}

// mergeMaps places the two renders side by side with a thin white separator,
// matching the layout subscribers are used to.
func mergeMaps(overview, detail image.Image) image.Image {
	switch {
	case overview == nil && detail == nil:
		return nil
	case overview == nil:
		return detail
	case detail == nil:
		return overview
	}
	const sep = 3
	ob := overview.Bounds()
	db := detail.Bounds()
	height := ob.Dy()
	if db.Dy() > height {
		height = db.Dy()
	}
	merged := image.NewRGBA(image.Rect(0, 0, ob.Dx()+sep+db.Dx(), height))
	draw.Draw(merged, merged.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(merged, image.Rect(0, 0, ob.Dx(), ob.Dy()), overview, ob.Min, draw.Src)
	draw.Draw(merged, image.Rect(ob.Dx()+sep, 0, ob.Dx()+sep+db.Dx(), db.Dy()), detail, db.Min, draw.Src)
	return merged
}

func jpegBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
