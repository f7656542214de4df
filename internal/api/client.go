// Package api is the typed REST client for the messaging backend. Reads are
// retried with backoff; mutations are sent exactly once.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-client/internal/events"
	"github.com/fathima-sithara/realtime-client/internal/httpclient"
	metrics "github.com/fathima-sithara/realtime-client/internal/metric"
	"github.com/fathima-sithara/realtime-client/internal/models"
)

const maxErrorBody = 4 << 10

// TokenSource returns the bearer token for the current session.
type TokenSource func() string

type Client struct {
	base  *url.URL
	http  *httpclient.Client
	token TokenSource
	log   *zap.SugaredLogger
}

func NewClient(baseURL string, hc *httpclient.Client, token TokenSource, log *zap.SugaredLogger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	if token == nil {
		token = func() string { return "" }
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{base: u, http: hc, token: token, log: log}, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []ConversationPayload
	if err := c.get(ctx, "list_conversations", &out, "conversations"); err != nil {
		return nil, err
	}
	convs := make([]models.Conversation, 0, len(out))
	for _, p := range out {
		if err := events.Validate(p); err != nil {
			c.log.Warnf("skipping conversation from list: %v", err)
			continue
		}
		convs = append(convs, p.Model())
	}
	return convs, nil
}

func (c *Client) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	var p ConversationPayload
	if err := c.get(ctx, "get_conversation", &p, "conversations", id); err != nil {
		return models.Conversation{}, err
	}
	if err := events.Validate(p); err != nil {
		return models.Conversation{}, fmt.Errorf("get_conversation: %w", err)
	}
	return p.Model(), nil
}

func (c *Client) CreateConversation(ctx context.Context, in CreateConversationInput) (models.Conversation, error) {
	var p ConversationPayload
	if err := c.sendJSON(ctx, "create_conversation", http.MethodPost, in, &p, "conversations"); err != nil {
		return models.Conversation{}, err
	}
	if err := events.Validate(p); err != nil {
		return models.Conversation{}, fmt.Errorf("create_conversation: %w", err)
	}
	return p.Model(), nil
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.sendJSON(ctx, "delete_conversation", http.MethodDelete, nil, nil, "conversations", id)
}

func (c *Client) UnreadCount(ctx context.Context, conversationID string) (int, error) {
	var body unreadCountBody
	if err := c.get(ctx, "unread_count", &body, "conversations", conversationID, "unread-count"); err != nil {
		return 0, err
	}
	if err := events.Validate(body); err != nil {
		return 0, fmt.Errorf("unread_count: %w", err)
	}
	return body.Count, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out []events.MessagePayload
	if err := c.get(ctx, "list_messages", &out, "conversations", conversationID, "messages"); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(out))
	for _, p := range out {
		if err := events.Validate(p); err != nil {
			c.log.Warnf("skipping message from history: %v", err)
			continue
		}
		msgs = append(msgs, p.Model())
	}
	return msgs, nil
}

// SendMessage posts a message carrying in.ClientID so the server can echo
// it on the confirmation push. Files switch the body to multipart.
func (c *Client) SendMessage(ctx context.Context, in SendMessageInput) (models.Message, error) {
	const op = "send_message"
	segs := []string{"conversations", in.ConversationID, "messages"}

	var p events.MessagePayload
	var err error
	if len(in.Files) == 0 {
		err = c.sendJSON(ctx, op, http.MethodPost, sendMessageBody{
			ClientID: in.ClientID, Content: in.Content, ReplyToID: in.ReplyToID,
		}, &p, segs...)
	} else {
		var body []byte
		var ctype string
		body, ctype, err = multipartBody(in)
		if err != nil {
			return models.Message{}, fmt.Errorf("%s: %w", op, err)
		}
		err = c.do(ctx, op, http.MethodPost, bytes.NewReader(body), ctype, &p, false, segs...)
	}
	if err != nil {
		return models.Message{}, err
	}
	if err := events.Validate(p); err != nil {
		return models.Message{}, fmt.Errorf("%s: %w", op, err)
	}
	m := p.Model()
	if m.ClientID == "" {
		m.ClientID = in.ClientID
	}
	return m, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.sendJSON(ctx, "delete_message", http.MethodDelete, nil, nil, "messages", messageID)
}

func (c *Client) AddReaction(ctx context.Context, messageID, emoji string) error {
	return c.sendJSON(ctx, "add_reaction", http.MethodPost, reactionBody{Emoji: emoji}, nil, "messages", messageID, "reactions")
}

func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	return c.sendJSON(ctx, "mark_message_read", http.MethodPost, nil, nil, "messages", messageID, "read")
}

func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.sendJSON(ctx, "mark_conversation_read", http.MethodPost, nil, nil, "conversations", conversationID, "read")
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var out []userPayload
	if err := c.get(ctx, "list_users", &out, "users"); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(out))
	for _, u := range out {
		if err := events.Validate(u); err != nil {
			continue
		}
		users = append(users, models.User(u))
	}
	return users, nil
}

func (c *Client) get(ctx context.Context, op string, out any, segs ...string) error {
	return c.do(ctx, op, http.MethodGet, nil, "", out, true, segs...)
}

func (c *Client) sendJSON(ctx context.Context, op, method string, in, out any, segs ...string) error {
	var body io.Reader
	ctype := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
		ctype = "application/json"
	}
	return c.do(ctx, op, method, body, ctype, out, false, segs...)
}

func (c *Client) do(ctx context.Context, op, method string, body io.Reader, ctype string, out any, retry bool, segs ...string) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.APIRequests.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(segs...), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	var resp *http.Response
	if retry {
		resp, err = c.http.DoWithRetry(ctx, req)
	} else {
		resp, err = c.http.Do(ctx, req)
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %v", op, ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if err := unwrapData(raw, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, events.ErrInvalidPayload, err)
	}
	return nil
}

func (c *Client) endpoint(segs ...string) string {
	u := *c.base
	u.RawPath = ""
	u.Path = path.Join(append([]string{"/", u.Path}, segs...)...)
	return u.String()
}

// unwrapData accepts both a bare body and the {"status","data"} envelope.
func unwrapData(raw []byte, out any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(raw, &env) == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	return json.Unmarshal(raw, out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return string(bytes.TrimSpace(raw))
}

func multipartBody(in SendMessageInput) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{{"clientId", in.ClientID}, {"content", in.Content}}
	if in.ReplyToID != "" {
		fields = append(fields, [2]string{"replyToId", in.ReplyToID})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	for _, f := range in.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		ct := f.MimeType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
