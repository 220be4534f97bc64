package tracker

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/oauth2"

	"github.com/eirki/trek-api/internal/config"
)

type Googlefit struct {
	conf    *oauth2.Config
	apiBase string
}

func NewGooglefit(cfg config.Config) *Googlefit {
	return &Googlefit{
		conf: &oauth2.Config{
			ClientID:     cfg.GooglefitClientID,
			ClientSecret: cfg.GooglefitClientSecret,
			RedirectURL:  cfg.TrackerRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/fitness.activity.read",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		apiBase: "https://www.googleapis.com",
	}
}

func (g *Googlefit) Name() string { return "googlefit" }

func (g *Googlefit) AuthorizationURL(state string) string {
	return g.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

func (g *Googlefit) Exchange(ctx context.Context, code string) (Token, error) {
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return Token{}, err
	}
	token := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	token.TrackerUserID, err = g.accountID(ctx, token)
	if err != nil {
		return Token{}, err
	}
	return token, nil
}

func (g *Googlefit) accountID(ctx context.Context, token Token) (string, error) {
	var payload struct {
		ID string `json:"id"`
	}
	url := g.apiBase + "/oauth2/v2/userinfo"
	if err := doJSON(ctx, nil, "GET", url, bearerHeader(token), nil, &payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}

func (g *Googlefit) Steps(ctx context.Context, token Token, date time.Time) (int, Token, error) {
	token, err := freshToken(ctx, g.conf, token)
	if err != nil {
		return 0, token, err
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	body, _ := json.Marshal(map[string]any{
		"aggregateBy": []map[string]string{{
			"dataTypeName": "com.google.step_count.delta",
			"dataSourceId": "derived:com.google.step_count.delta:com.google.android.gms:estimated_steps",
		}},
		"bucketByTime":    map[string]int64{"durationMillis": 24 * 60 * 60 * 1000},
		"startTimeMillis": start.UnixMilli(),
		"endTimeMillis":   start.AddDate(0, 0, 1).UnixMilli(),
	})

	var payload struct {
		Bucket []struct {
			Dataset []struct {
				Point []struct {
					Value []struct {
						IntVal int `json:"intVal"`
					} `json:"value"`
				} `json:"point"`
			} `json:"dataset"`
		} `json:"bucket"`
	}
	header := bearerHeader(token)
	header.Set("Content-Type", "application/json")
	url := g.apiBase + "/fitness/v1/users/me/dataset:aggregate"
	if err := doJSON(ctx, nil, "POST", url, header, body, &payload); err != nil {
		return 0, token, err
	}
	if len(payload.Bucket) == 0 ||
		len(payload.Bucket[0].Dataset) == 0 ||
		len(payload.Bucket[0].Dataset[0].Point) == 0 ||
		len(payload.Bucket[0].Dataset[0].Point[0].Value) == 0 {
		return 0, token, nil
	}
	return payload.Bucket[0].Dataset[0].Point[0].Value[0].IntVal, token, nil
}

func (g *Googlefit) DisplayName(ctx context.Context, token Token) (string, Token, error) {
	token, err := freshToken(ctx, g.conf, token)
	if err != nil {
		return "", token, err
	}
	var payload struct {
		Email string `json:"email"`
	}
	url := g.apiBase + "/oauth2/v2/userinfo"
	if err := doJSON(ctx, nil, "GET", url, bearerHeader(token), nil, &payload); err != nil {
		return "", token, err
	}
	return payload.Email, token, nil
}
