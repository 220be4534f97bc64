// Package locapi resolves route coordinates to human readable places using
// Nominatim reverse geocoding and the Google Maps web APIs.
package locapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/eirki/trek-api/internal/config"
	"github.com/eirki/trek-api/internal/geo"
	"github.com/eirki/trek-api/internal/progress"
)

const poiRadius = 2500

// Place types worth announcing in a daily report.
var poiTypes = map[string]bool{
	"amusement_park":     true,
	"aquarium":           true,
	"art_gallery":        true,
	"bar":                true,
	"beauty_salon":       true,
	"bowling_alley":      true,
	"campground":         true,
	"casino":             true,
	"embassy":            true,
	"gym":                true,
	"library":            true,
	"movie_theater":      true,
	"museum":             true,
	"night_club":         true,
	"pet_store":          true,
	"rv_park":            true,
	"spa":                true,
	"stadium":            true,
	"tourist_attraction": true,
	"zoo":                true,
}

type Uploader interface {
	Upload(ctx context.Context, data []byte, trekID, legID string, date time.Time, name string) (string, error)
}

type Finder struct {
	agent        string
	apiKey       string
	apiSecret    string
	uploader     Uploader
	client       *http.Client
	nominatimURL string
	mapsURL      string
}

func NewFinder(cfg config.Config, uploader Uploader) *Finder {
	return &Finder{
		agent:        cfg.NominatimAgent,
		apiKey:       cfg.GoogleAPIKey,
		apiSecret:    cfg.GoogleAPISecret,
		uploader:     uploader,
		client:       &http.Client{Timeout: 30 * time.Second},
		nominatimURL: "https://nominatim.openstreetmap.org",
		mapsURL:      "https://maps.googleapis.com",
	}
}

// Find walks the day's sampled points until it has an address, a point of
// interest and a photo. Every lookup is best effort, missing data leaves the
// corresponding field empty.
func (f *Finder) Find(ctx context.Context, trekID, legID string, date time.Time, points []geo.Point) progress.Place {
	var place progress.Place
	var poiPhoto, swPhoto []byte
	for _, pt := range points {
		if place.Address == "" {
			place.Address, place.Country = f.reverseGeocode(ctx, pt.Lat, pt.Lon)
		}
		if place.POI == "" {
			place.POI, poiPhoto = f.poiNearby(ctx, pt.Lat, pt.Lon)
		}
		if swPhoto == nil {
			swPhoto = f.streetView(ctx, pt.Lat, pt.Lon)
		}
		if place.MapURL == "" {
			place.MapURL = mapURL(pt.Lat, pt.Lon)
		}
		if place.Address != "" && place.POI != "" && (poiPhoto != nil || swPhoto != nil) {
			break
		}
	}
	photo := swPhoto
	if place.POI != "" && poiPhoto != nil {
		photo = poiPhoto
	}
	if photo != nil && f.uploader != nil {
		photoURL, err := f.uploader.Upload(ctx, photo, trekID, legID, date, "poi_photo")
		if err != nil {
			log.Printf("locapi: uploading photo for trek %s: %v", trekID, err)
		} else {
			place.PhotoURL = photoURL
		}
	}
	return place
}

func (f *Finder) reverseGeocode(ctx context.Context, lat, lon float64) (string, string) {
	endpoint := fmt.Sprintf("%s/reverse?format=jsonv2&lat=%v&lon=%v&accept-language=en",
		f.nominatimURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", ""
	}
	req.Header.Set("User-Agent", f.agent)
	var out struct {
		DisplayName string `json:"display_name"`
		Address     struct {
			Country string `json:"country"`
		} `json:"address"`
	}
	if err := f.getJSON(req, &out); err != nil {
		log.Printf("locapi: reverse geocode: %v", err)
		return "", ""
	}
	return out.DisplayName, out.Address.Country
}

func (f *Finder) poiNearby(ctx context.Context, lat, lon float64) (string, []byte) {
	endpoint := fmt.Sprintf("%s/maps/api/place/nearbysearch/json?location=%v%%2C%v&radius=%d&key=%s",
		f.mapsURL, lat, lon, poiRadius, url.QueryEscape(f.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil
	}
	var out struct {
		Results []struct {
			Name   string   `json:"name"`
			Types  []string `json:"types"`
			Photos []struct {
				Width          int    `json:"width"`
				PhotoReference string `json:"photo_reference"`
			} `json:"photos"`
		} `json:"results"`
	}
	if err := f.getJSON(req, &out); err != nil {
		log.Printf("locapi: places nearby: %v", err)
		return "", nil
	}
	for _, place := range out.Results {
		if !interesting(place.Types) {
			continue
		}
		for _, photo := range place.Photos {
			if photo.Width >= 1000 {
				return place.Name, f.placePhoto(ctx, photo.PhotoReference)
			}
		}
		return place.Name, nil
	}
	return "", nil
}

func (f *Finder) placePhoto(ctx context.Context, ref string) []byte {
	endpoint := fmt.Sprintf("%s/maps/api/place/photo?maxwidth=2000&photo_reference=%s&key=%s",
		f.mapsURL, url.QueryEscape(ref), url.QueryEscape(f.apiKey))
	data, err := f.getBytes(ctx, endpoint)
	if err != nil {
		log.Printf("locapi: place photo: %v", err)
		return nil
	}
	return data
}

// streetView checks the metadata endpoint before fetching the image so days
// without coverage cost one cheap request.
func (f *Finder) streetView(ctx context.Context, lat, lon float64) []byte {
	params := url.Values{}
	params.Set("size", "600x400")
	params.Set("location", fmt.Sprintf("%v, %v", lat, lon))
	params.Set("fov", "120")
	params.Set("heading", "251.74")
	params.Set("pitch", "0")
	params.Set("key", f.apiKey)

	metaURL, err := f.signedURL("/maps/api/streetview/metadata", params)
	if err != nil {
		log.Printf("locapi: signing street view url: %v", err)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil
	}
	var meta struct {
		Status string `json:"status"`
	}
	if err := f.getJSON(req, &meta); err != nil {
		log.Printf("locapi: street view metadata: %v", err)
		return nil
	}
	if meta.Status != "OK" {
		return nil
	}

	imgURL, err := f.signedURL("/maps/api/streetview", params)
	if err != nil {
		return nil
	}
	data, err := f.getBytes(ctx, imgURL)
	if err != nil {
		log.Printf("locapi: street view image: %v", err)
		return nil
	}
	return data
}

// signedURL appends the request signature Google requires for keyless quota
// accounting. The shared secret is urlsafe base64.
func (f *Finder) signedURL(endpoint string, params url.Values) (string, error) {
	key, err := base64.URLEncoding.DecodeString(f.apiSecret)
	if err != nil {
		return "", fmt.Errorf("decoding signing secret: %w", err)
	}
	toSign := endpoint + "?" + params.Encode()
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(toSign))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	signed := params.Encode() + "&signature=" + url.QueryEscape(signature)
	return f.mapsURL + endpoint + "?" + signed, nil
}

func mapURL(lat, lon float64) string {
	params := url.Values{}
	params.Set("api", "1")
	params.Set("query", fmt.Sprintf("%v,%v", lat, lon))
	return "https://www.google.com/maps/search/?" + params.Encode()
}

func interesting(types []string) bool {
	for _, t := range types {
		if poiTypes[t] {
			return true
		}
	}
	return false
}

func (f *Finder) getJSON(req *http.Request, out any) error {
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: status %d", req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (f *Finder) getBytes(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: status %d", req.URL.Path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
