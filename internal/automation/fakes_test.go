package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"whatsapp-flowbot/internal/models"
	"whatsapp-flowbot/internal/whatsapp"
)

// fakeStore keeps everything in memory.
type fakeStore struct {
	mu            sync.Mutex
	chatbots      map[uint]*models.Chatbot
	conversations map[string]*models.Conversation
	workspaces    map[uint]*models.Workspace
	settings      map[uint]*models.AutomationSettings
	team          map[uint]int64
	messages      []models.Message
	logs          []models.AutomationLog
	saves         int
	saveErr       error
	nextConvID    uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chatbots:      map[uint]*models.Chatbot{},
		conversations: map[string]*models.Conversation{},
		workspaces:    map[uint]*models.Workspace{},
		settings:      map[uint]*models.AutomationSettings{},
		team:          map[uint]int64{},
	}
}

func (s *fakeStore) addChatbot(bot models.Chatbot) *models.Chatbot {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bot
	s.chatbots[b.ID] = &b
	return &b
}

func (s *fakeStore) GetChatbot(_ context.Context, id uint) (*models.Chatbot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.chatbots[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) ListPublished(_ context.Context, workspaceID uint) ([]models.Chatbot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chatbot
	for _, b := range s.chatbots {
		if b.WorkspaceID == workspaceID && b.Publish {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetDefault(_ context.Context, workspaceID uint) (*models.Chatbot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.chatbots {
		if b.WorkspaceID == workspaceID && b.IsDefault {
			cp := *b
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeStore) FindOrCreateConversation(_ context.Context, workspaceID uint, waID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d:%s", workspaceID, waID)
	if c, ok := s.conversations[key]; ok {
		cp := *c
		return &cp, nil
	}
	s.nextConvID++
	c := &models.Conversation{
		ID:          s.nextConvID,
		WorkspaceID: workspaceID,
		WaID:        waID,
		Status:      models.StatusOpen,
		CreatedAt:   time.Now(),
	}
	s.conversations[key] = c
	cp := *c
	return &cp, nil
}

func (s *fakeStore) SaveFlowState(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	cp := *conv
	s.conversations[fmt.Sprintf("%d:%s", conv.WorkspaceID, conv.WaID)] = &cp
	return nil
}

func (s *fakeStore) stored(workspaceID uint, waID string) *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[fmt.Sprintf("%d:%s", workspaceID, waID)]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (s *fakeStore) AppendMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeStore) outbound() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.Direction == models.DirectionOutbound {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeStore) GetWorkspace(_ context.Context, id uint) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return ws, nil
}

func (s *fakeStore) FindWorkspaceByPhoneNumberID(_ context.Context, phoneNumberID string) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.workspaces {
		if ws.PhoneNumberID == phoneNumberID {
			return ws, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeStore) CountTeamMembers(_ context.Context, workspaceID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.team[workspaceID], nil
}

func (s *fakeStore) GetAutomationSettings(_ context.Context, workspaceID uint) (*models.AutomationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[workspaceID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return st, nil
}

func (s *fakeStore) AppendAutomationLog(_ context.Context, entry *models.AutomationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

// sent is one channel call.
type sent struct {
	Kind    string
	To      string
	Text    string
	Buttons []whatsapp.Button
	Link    string
}

type fakeChannel struct {
	mu       sync.Mutex
	calls    []sent
	failKind map[string]bool
	httpBody string
	httpErr  error
	httpCall *whatsapp.HTTPCall
}

func (c *fakeChannel) add(s sent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
	if c.failKind[s.Kind] {
		return errors.New(s.Kind + " failed")
	}
	return nil
}

func (c *fakeChannel) sent() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.calls...)
}

func (c *fakeChannel) texts() []string {
	var out []string
	for _, s := range c.sent() {
		if s.Kind == "text" {
			out = append(out, s.Text)
		}
	}
	return out
}

func (c *fakeChannel) SendText(_ context.Context, _ whatsapp.Credentials, to, body string) error {
	return c.add(sent{Kind: "text", To: to, Text: body})
}

func (c *fakeChannel) SendImage(_ context.Context, _ whatsapp.Credentials, to, link, caption string) error {
	return c.add(sent{Kind: "image", To: to, Link: link, Text: caption})
}

func (c *fakeChannel) SendVideo(_ context.Context, _ whatsapp.Credentials, to, link, caption string) error {
	return c.add(sent{Kind: "video", To: to, Link: link, Text: caption})
}

func (c *fakeChannel) SendAudio(_ context.Context, _ whatsapp.Credentials, to, link string) error {
	return c.add(sent{Kind: "audio", To: to, Link: link})
}

func (c *fakeChannel) SendLocation(_ context.Context, _ whatsapp.Credentials, to string, loc whatsapp.Location) error {
	return c.add(sent{Kind: "location", To: to, Text: loc.Name})
}

func (c *fakeChannel) SendButtons(_ context.Context, _ whatsapp.Credentials, to, body string, buttons []whatsapp.Button) error {
	return c.add(sent{Kind: "buttons", To: to, Text: body, Buttons: buttons})
}

func (c *fakeChannel) SendCTAButton(_ context.Context, _ whatsapp.Credentials, to string, cta whatsapp.CTAButton) error {
	return c.add(sent{Kind: "cta", To: to, Text: cta.Body, Link: cta.URL})
}

func (c *fakeChannel) SendTemplate(_ context.Context, _ whatsapp.Credentials, to, templateName, languageCode string) error {
	return c.add(sent{Kind: "template", To: to, Text: templateName + "/" + languageCode})
}

func (c *fakeChannel) ExecuteHTTPCall(_ context.Context, call whatsapp.HTTPCall) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpCall = &call
	return c.httpBody, c.httpErr
}

type fakeResponder struct {
	answer  string
	err     error
	prompt  string
	message string
}

func (r *fakeResponder) Respond(_ context.Context, prompt, message string) (string, error) {
	r.prompt, r.message = prompt, message
	return r.answer, r.err
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
