package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/eirki/trek-api/internal/config"
)

var ErrUnknownTracker = errors.New("unknown tracker")

// Token is the persisted credential for one linked tracker account. A Steps
// or DisplayName call may rotate the access token, in which case the caller
// gets the rotated token back and is responsible for persisting it.
type Token struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	Expiry        time.Time `json:"expiry"`
	TrackerUserID string    `json:"tracker_user_id"`
}

type Tracker interface {
	Name() string
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (Token, error)
	Steps(ctx context.Context, token Token, date time.Time) (int, Token, error)
	DisplayName(ctx context.Context, token Token) (string, Token, error)
}

type Registry struct {
	trackers map[string]Tracker
}

func NewRegistry(cfg config.Config, rdb *redis.Client) *Registry {
	r := &Registry{trackers: map[string]Tracker{}}
	for _, t := range []Tracker{
		NewFitbit(cfg),
		NewWithings(cfg),
		NewGooglefit(cfg),
		NewPolar(cfg, rdb),
	} {
		r.trackers[t.Name()] = t
	}
	return r
}

// RegistryWith builds a registry from explicit trackers, for callers that
// stub out providers.
func RegistryWith(trackers ...Tracker) *Registry {
	r := &Registry{trackers: map[string]Tracker{}}
	for _, t := range trackers {
		r.trackers[t.Name()] = t
	}
	return r
}

func (r *Registry) Get(name string) (Tracker, error) {
	t, ok := r.trackers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTracker, name)
	}
	return t, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.trackers))
	for name := range r.trackers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const maxAttempts = 10

// Pauses between retries of failed tracker calls. Tests shorten this.
var retryBackoff = time.Second

// doJSON performs an HTTP call and decodes the JSON response into out.
// Server side errors are retried, client side errors are not.
func doJSON(ctx context.Context, client *http.Client, method, url string, header http.Header, payload []byte, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		for key, values := range header {
			req.Header[key] = values
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, body)
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(body, out)
	}
	return lastErr
}

func toOauth2(t Token) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

// freshToken returns a valid token, refreshing through the oauth2 config if
// the stored one has expired. TrackerUserID survives the refresh.
func freshToken(ctx context.Context, conf *oauth2.Config, t Token) (Token, error) {
	refreshed, err := conf.TokenSource(ctx, toOauth2(t)).Token()
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken:   refreshed.AccessToken,
		RefreshToken:  refreshed.RefreshToken,
		Expiry:        refreshed.Expiry,
		TrackerUserID: t.TrackerUserID,
	}, nil
}

func bearerHeader(t Token) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+t.AccessToken)
	return h
}

func formHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return h
}
