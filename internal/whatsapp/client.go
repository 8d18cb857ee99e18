package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"whatsapp-flowbot/internal/config"

	"golang.org/x/time/rate"
)

// Credentials identify the sending number of a workspace.
type Credentials struct {
	AccessToken   string
	PhoneNumberID string
}

type Client struct {
	BaseURL     string
	Defaults    Credentials
	HTTPClient  *http.Client
	CallTimeout time.Duration

	sendRate  rate.Limit
	sendBurst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(cfg.GraphAPIURL, "/"),
		Defaults: Credentials{
			AccessToken:   cfg.WhatsAppToken,
			PhoneNumberID: cfg.PhoneNumberID,
		},
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		CallTimeout: cfg.HTTPCallTimeout,
		sendRate:    rate.Limit(cfg.SendRate),
		sendBurst:   cfg.SendBurst,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             *TextObj        `json:"text,omitempty"`
	Image            *MediaObj       `json:"image,omitempty"`
	Video            *MediaObj       `json:"video,omitempty"`
	Audio            *MediaObj       `json:"audio,omitempty"`
	Location         *LocationObj    `json:"location,omitempty"`
	Template         *TemplateObj    `json:"template,omitempty"`
	Interactive      *InteractiveObj `json:"interactive,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID      string `json:"id,omitempty"`
	Link    string `json:"link,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type LocationObj struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type TemplateObj struct {
	Name     string      `json:"name"`
	Language LanguageObj `json:"language"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type InteractiveObj struct {
	Type   string     `json:"type"`
	Header *HeaderObj `json:"header,omitempty"`
	Body   BodyObj    `json:"body"`
	Footer *FooterObj `json:"footer,omitempty"`
	Action ActionObj  `json:"action"`
}

type HeaderObj struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type BodyObj struct {
	Text string `json:"text"`
}

type FooterObj struct {
	Text string `json:"text"`
}

type ActionObj struct {
	Buttons    []ButtonObj   `json:"buttons,omitempty"`
	Name       string        `json:"name,omitempty"` // cta_url
	Parameters *CTAURLParams `json:"parameters,omitempty"`
}

type CTAURLParams struct {
	DisplayText string `json:"display_text"`
	URL         string `json:"url"`
}

type ButtonObj struct {
	Type  string   `json:"type"`
	Reply ReplyObj `json:"reply"`
}

type ReplyObj struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// --- Send parameters ---

// Button is one interactive reply button.
type Button struct {
	ID    string
	Title string
}

type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

// CTAButton is an interactive message with a single URL button.
type CTAButton struct {
	Header      string
	Body        string
	Footer      string
	DisplayText string
	URL         string
}

// MaxButtons is the Cloud API limit for reply buttons in one message.
const MaxButtons = 3

// Reply button titles are capped at 20 characters by the Cloud API.
const maxButtonTitle = 20

// --- Helper Functions ---

func (c *Client) credentials(creds Credentials) Credentials {
	if creds.AccessToken == "" {
		creds.AccessToken = c.Defaults.AccessToken
	}
	if creds.PhoneNumberID == "" {
		creds.PhoneNumberID = c.Defaults.PhoneNumberID
	}
	return creds
}

func (c *Client) limiter(phoneNumberID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiters == nil {
		c.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := c.limiters[phoneNumberID]
	if !ok {
		limit := c.sendRate
		if limit <= 0 {
			limit = rate.Inf
		}
		burst := c.sendBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		c.limiters[phoneNumberID] = l
	}
	return l
}

func (c *Client) sendRequest(ctx context.Context, creds Credentials, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}

// --- Messaging Methods ---

// SendRawMessage posts msg from the workspace number, waiting for the number's send budget.
func (c *Client) SendRawMessage(ctx context.Context, creds Credentials, msg GenericMessage) error {
	creds = c.credentials(creds)
	if creds.PhoneNumberID == "" {
		return fmt.Errorf("no phone number id configured")
	}
	if err := c.limiter(creds.PhoneNumberID).Wait(ctx); err != nil {
		return fmt.Errorf("send throttled: %w", err)
	}

	if msg.MessagingProduct == "" {
		msg.MessagingProduct = "whatsapp"
	}
	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, creds.PhoneNumberID)
	_, err := c.sendRequest(ctx, creds, http.MethodPost, url, msg)
	return err
}

func (c *Client) SendText(ctx context.Context, creds Credentials, to, body string) error {
	return c.SendRawMessage(ctx, creds, GenericMessage{
		To:   to,
		Type: "text",
		Text: &TextObj{Body: body},
	})
}

func (c *Client) SendImage(ctx context.Context, creds Credentials, to, link, caption string) error {
	return c.SendRawMessage(ctx, creds, GenericMessage{
		To:    to,
		Type:  "image",
		Image: &MediaObj{Link: link, Caption: caption},
	})
}

func (c *Client) SendVideo(ctx context.Context, creds Credentials, to, link, caption string) error {
	return c.SendRawMessage(ctx, creds, GenericMessage{
		To:    to,
		Type:  "video",
		Video: &MediaObj{Link: link, Caption: caption},
	})
}

// SendAudio sends an audio link. Audio messages carry no caption.
func (c *Client) SendAudio(ctx context.Context, creds Credentials, to, link string) error {
	return c.SendRawMessage(ctx, creds, GenericMessage{
		To:    to,
		Type:  "audio",
		Audio: &MediaObj{Link: link},
	})
}

func (c *Client) SendLocation(ctx context.Context, creds Credentials, to string, loc Location) error {
	return c.SendRawMessage(ctx, creds, GenericMessage{
		To:   to,
		Type: "location",
		Location: &LocationObj{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Name:      loc.Name,
			Address:   loc.Address,
		},
	})
}

// SendButtons sends an interactive reply-button message. Buttons beyond MaxButtons are dropped.
func (c *Client) SendButtons(ctx context.Context, creds Credentials, to, body string, buttons []Button) error {
	var objs []ButtonObj
	for i, btn := range buttons {
		if i >= MaxButtons {
			break // WhatsApp limit
		}
		objs = append(objs, ButtonObj{
			Type: "reply",
			Reply: ReplyObj{
				ID:    btn.ID,
				Title: truncate(btn.Title, maxButtonTitle),
			},
		})
	}
	if len(objs) == 0 {
		return fmt.Errorf("button message without buttons")
	}

	return c.SendRawMessage(ctx, creds, GenericMessage{
		To:   to,
		Type: "interactive",
		Interactive: &InteractiveObj{
			Type:   "button",
			Body:   BodyObj{Text: body},
			Action: ActionObj{Buttons: objs},
		},
	})
}

func (c *Client) SendCTAButton(ctx context.Context, creds Credentials, to string, cta CTAButton) error {
	interactive := &InteractiveObj{
		Type: "cta_url",
		Body: BodyObj{Text: cta.Body},
		Action: ActionObj{
			Name: "cta_url",
			Parameters: &CTAURLParams{
				DisplayText: cta.DisplayText,
				URL:         cta.URL,
			},
		},
	}
	if cta.Header != "" {
		interactive.Header = &HeaderObj{Type: "text", Text: cta.Header}
	}
	if cta.Footer != "" {
		interactive.Footer = &FooterObj{Text: cta.Footer}
	}

	return c.SendRawMessage(ctx, creds, GenericMessage{
		To:          to,
		Type:        "interactive",
		Interactive: interactive,
	})
}

func (c *Client) SendTemplate(ctx context.Context, creds Credentials, to, templateName, languageCode string) error {
	if languageCode == "" {
		languageCode = "en_US"
	}
	return c.SendRawMessage(ctx, creds, GenericMessage{
		To:   to,
		Type: "template",
		Template: &TemplateObj{
			Name:     templateName,
			Language: LanguageObj{Code: languageCode},
		},
	})
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
