package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/eirki/trek-api/internal/progress"
)

// Discord posts reports to a channel webhook.
type Discord struct {
	webhookURL  string
	frontendURL string
	client      *http.Client
}

func NewDiscord(webhookURL, frontendURL string) *Discord {
	return &Discord{
		webhookURL:  webhookURL,
		frontendURL: frontendURL,
		client:      http.DefaultClient,
	}
}

var discordEmoji = strings.NewReplacer(
	placeFirst, ":first_place:",
	placeSecond, ":second_place:",
	placeThird, ":third_place:",
	placeLast, ":turtle:",
	placeAchievement, ":trophy:",
	placeNewCountry, ":confetti_ball:",
)

type discordEmbed struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Image struct {
		URL string `json:"url,omitempty"`
	} `json:"image,omitempty"`
}

type discordMessage struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

func (d *Discord) PostUpdate(ctx context.Context, report progress.Report) error {
	blocks := FormatBlocks(report, d.frontendURL)
	msg := discordMessage{
		Content: discordEmoji.Replace(strings.Join(blocks, "\n\n")),
	}

	if report.Location.GmapURL != "" {
		embed := discordEmbed{Type: "rich", Title: "GoogleMaps", URL: report.Location.GmapURL}
		embed.Image.URL = report.Location.PhotoURL
		msg.Embeds = append(msg.Embeds, embed)
	}
	if report.Location.TraversalMapURL != "" {
		embed := discordEmbed{
			Type:  "rich",
			Title: "Reisekart",
			URL:   fmt.Sprintf("%s/#/trek/%s", d.frontendURL, report.Trek.ID),
		}
		embed.Image.URL = report.Location.TraversalMapURL
		msg.Embeds = append(msg.Embeds, embed)
	}
	return d.post(ctx, msg)
}

func (d *Discord) PostLegReminder(ctx context.Context, trekID, nextAdderName string) error {
	return d.post(ctx, discordMessage{Content: legReminder(trekID, nextAdderName, d.frontendURL)})
}

func (d *Discord) post(ctx context.Context, msg discordMessage) error {
	if d.webhookURL == "" {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord webhook: status %d", resp.StatusCode)
	}
	return nil
}
