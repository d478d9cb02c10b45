package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"time"

	"github.com/akawula/QualityMatic/sonarqube/aggregator"
	"github.com/akawula/QualityMatic/sonarqube/client"
)

const (
	defaultAPIURL = "https://slack.com/api/chat.postMessage"

	// Slack rejects messages with more than 50 blocks.
	maxBlocks = 50

	// Projects at or above this rating (D) are listed individually.
	poorRating = 4
)

type Notifier struct {
	token      string
	channel    string
	apiURL     string
	httpClient *http.Client
}

// NewNotifier returns a notifier posting to channel with a bot token.
func NewNotifier(token, channel string) *Notifier {
	return &Notifier{
		token:      token,
		channel:    channel,
		apiURL:     defaultAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIURL overrides the chat.postMessage endpoint.
func (n *Notifier) WithAPIURL(u string) *Notifier {
	n.apiURL = u
	return n
}

func templateSummary(runID string, result aggregator.AggregationResult) []map[string]interface{} {
	m := fmt.Sprintf("*SonarQube quality summary* (run `%s`)\nProjects requested: %d, with measures: %d", runID, result.Requested(), result.WithMeasures())
	if len(result) == 0 {
		m = fmt.Sprintf("*SonarQube quality summary* (run `%s`)\nNo project returned measures.", runID)
	}

	blocks := []map[string]interface{}{
		{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": m,
			},
		},
	}

	fields := []map[string]interface{}{}
	for _, metric := range aggregator.RatingMetrics {
		rating, ok := result.Rating(metric)
		if !ok {
			continue
		}
		fields = append(fields, map[string]interface{}{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*%s*\n%s (%d)", metric, aggregator.RatingLetter(rating), rating),
		})
	}
	if len(fields) > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type":   "section",
			"fields": fields,
		})
	}

	return append(blocks, map[string]interface{}{"type": "divider"})
}

func templateProject(sonarURL, key string, measures client.MeasureSet) []map[string]interface{} {
	m := fmt.Sprintf("*%s*", key)
	for _, metric := range aggregator.RatingMetrics {
		if v, ok := measures[metric]; ok {
			rating := aggregator.RoundHalfUp(v)
			m += fmt.Sprintf("\n%s: %s", metric, aggregator.RatingLetter(rating))
		}
	}

	link := fmt.Sprintf("%s/dashboard?id=%s", sonarURL, url.QueryEscape(key))
	return []map[string]interface{}{
		{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": m,
			},
			"accessory": map[string]interface{}{
				"type": "button",
				"text": map[string]interface{}{
					"type":  "plain_text",
					"emoji": true,
					"text":  "Open",
				},
				"value":     link,
				"url":       link,
				"action_id": key,
			},
		},
	}
}

// poorProjects returns the keys of projects with any rating at or above poorRating, sorted.
func poorProjects(index client.ProjectMeasuresIndex) []string {
	var keys []string
	for key, measures := range index {
		for _, metric := range aggregator.RatingMetrics {
			if v, ok := measures[metric]; ok && aggregator.RoundHalfUp(v) >= poorRating {
				keys = append(keys, key)
				break
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Blocks builds the full message: the summary, then every poorly rated project.
func Blocks(runID, sonarURL string, result aggregator.AggregationResult, index client.ProjectMeasuresIndex) []map[string]interface{} {
	blocks := templateSummary(runID, result)
	poor := poorProjects(index)
	if len(poor) > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"emoji": true,
				"text":  fmt.Sprintf("%d projects rated D or worse", len(poor)),
			},
		})
		for _, key := range poor {
			blocks = append(blocks, templateProject(sonarURL, key, index[key])...)
		}
	}
	return blocks
}

// SendAggregation posts the aggregation summary, split into messages of at most 50 blocks.
func (n *Notifier) SendAggregation(ctx context.Context, runID, sonarURL string, result aggregator.AggregationResult, index client.ProjectMeasuresIndex) error {
	for c := range slices.Chunk(Blocks(runID, sonarURL, result, index), maxBlocks) {
		if err := n.sendMessage(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) sendMessage(ctx context.Context, blocks []map[string]interface{}) error {
	if len(n.token) == 0 {
		return errors.New("SLACK_TOKEN env is required")
	}

	payload := map[string]interface{}{
		"channel": n.channel,
		"blocks":  blocks,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack API returned non-200 status code: %d", resp.StatusCode)
	}

	// Slack reports most failures with 200 and ok=false.
	var response struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode Slack response: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("Slack API error: %s", response.Error)
	}
	return nil
}
