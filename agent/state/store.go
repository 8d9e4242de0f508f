package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

var (
	ErrRecordNotFound = errors.New("user record not found")
	ErrInvalidUser    = errors.New("user id is empty")
	ErrEmptyUpsert    = errors.New("upsert has no fields")
	ErrInvalidCallID  = errors.New("call session id is empty")
	ErrInvalidRunID   = errors.New("run id is empty")
)

const (
	defaultStoreKeyPrefix      = "servicesaver:user:"
	defaultTranscriptKeyPrefix = "servicesaver:call:"
	defaultRunKeyPrefix        = "servicesaver:run:"
	defaultStoreTTL            = 7 * 24 * time.Hour
	maxResponseSizeBytes       = 2 << 20
)

// RecordStore is the persistence contract used by the orchestrator. Upsert
// merges fields into the stored record; untouched fields keep their value.
type RecordStore interface {
	Upsert(ctx context.Context, userID string, fields map[string]any) error
	Load(ctx context.Context, userID string) (*Record, error)
	Delete(ctx context.Context, userID string) error
}

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTranscriptKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.transcriptPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *UpstashRedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// UpstashRedisStore keeps one Redis hash per user via the Upstash REST API.
// Every field value is stored JSON-encoded.
type UpstashRedisStore struct {
	baseURL          string
	token            string
	httpClient       *http.Client
	keyPrefix        string
	transcriptPrefix string
	runPrefix        string
	ttl              time.Duration
	now              func() time.Time
}

var _ RecordStore = (*UpstashRedisStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"168h"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultStoreTTL
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix:        defaultStoreKeyPrefix,
		transcriptPrefix: defaultTranscriptKeyPrefix,
		runPrefix:        defaultRunKeyPrefix,
		ttl:              ttl,
		now:              time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

// Upsert merges fields into the user's hash with HSET, stamps updatedAt and
// refreshes the TTL.
func (s *UpstashRedisStore) Upsert(ctx context.Context, userID string, fields map[string]any) error {
	if len(fields) == 0 {
		return ErrEmptyUpsert
	}
	key, err := s.recordKey(userID)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(fields)+1)
	for name := range fields {
		if strings.TrimSpace(name) == "" {
			return errors.New("record field name is empty")
		}
		names = append(names, name)
	}
	if _, ok := fields[FieldUpdatedAt]; !ok {
		names = append(names, FieldUpdatedAt)
	}
	sort.Strings(names)

	cmd := make([]any, 0, 2+2*len(names))
	cmd = append(cmd, "HSET", key)
	for _, name := range names {
		value, ok := fields[name]
		if !ok {
			value = s.now().UTC()
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal record field %s: %w", name, err)
		}
		cmd = append(cmd, name, string(encoded))
	}

	if _, err := s.exec(ctx, cmd); err != nil {
		return err
	}
	if s.ttl > 0 {
		if _, err := s.exec(ctx, []any{"EXPIRE", key, ttlSeconds(s.ttl)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, userID string) (*Record, error) {
	key, err := s.recordKey(userID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"HGETALL", key})
	if err != nil {
		return nil, err
	}

	var flat []string
	if err := json.Unmarshal(bytes.TrimSpace(resp.Result), &flat); err != nil {
		return nil, fmt.Errorf("decode record payload: %w", err)
	}
	if len(flat) == 0 {
		return nil, ErrRecordNotFound
	}
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("decode record payload: odd field count %d", len(flat))
	}

	fields := make(map[string]json.RawMessage, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		fields[flat[i]] = json.RawMessage(flat[i+1])
	}
	return decodeRecord(fields)
}

func (s *UpstashRedisStore) Delete(ctx context.Context, userID string) error {
	key, err := s.recordKey(userID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

// ReadTranscript returns the transcript the media bridge stored for a call.
// ok is false when nothing was captured.
func (s *UpstashRedisStore) ReadTranscript(ctx context.Context, sessionID string) (string, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", false, ErrInvalidCallID
	}

	resp, err := s.exec(ctx, []any{"GET", s.transcriptPrefix + sessionID + ":transcript"})
	if err != nil {
		return "", false, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return "", false, nil
	}

	var transcript string
	if err := json.Unmarshal(result, &transcript); err != nil {
		return "", false, fmt.Errorf("decode transcript payload: %w", err)
	}
	if strings.TrimSpace(transcript) == "" {
		return "", false, nil
	}
	return transcript, true, nil
}

// ClaimRun marks runID as taken with SET NX. It reports false when the run was
// already claimed by an earlier delivery.
func (s *UpstashRedisStore) ClaimRun(ctx context.Context, runID string) (bool, error) {
	key, err := s.runKey(runID)
	if err != nil {
		return false, err
	}
	cmd := []any{"SET", key, s.now().UTC().Format(time.RFC3339), "NX"}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}
	resp, err := s.exec(ctx, cmd)
	if err != nil {
		return false, err
	}
	result := bytes.TrimSpace(resp.Result)
	return len(result) > 0 && !bytes.Equal(result, []byte("null")), nil
}

// ReleaseRun drops a claim so a later delivery of runID can start it.
func (s *UpstashRedisStore) ReleaseRun(ctx context.Context, runID string) error {
	key, err := s.runKey(runID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

func (s *UpstashRedisStore) runKey(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", ErrInvalidRunID
	}
	return s.runPrefix + runID, nil
}

func (s *UpstashRedisStore) recordKey(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrInvalidUser
	}
	return strings.TrimSpace(s.keyPrefix) + strings.TrimSpace(userID), nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}
	if strings.TrimSpace(s.baseURL) == "" {
		return nil, errors.New("empty redis url")
	}
	if strings.TrimSpace(s.token) == "" {
		return nil, errors.New("empty redis token")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
