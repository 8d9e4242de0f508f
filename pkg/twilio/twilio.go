package twilio

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	twiliosdk "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/tanpawarit/servicesaver/agent/call"
	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

type Config struct {
	AccountSID           string `envconfig:"ACCOUNT_SID" split_words:"true" required:"true"`
	AuthToken            string `envconfig:"AUTH_TOKEN" split_words:"true" required:"true"`
	FromNumber           string `envconfig:"FROM_NUMBER" split_words:"true" required:"true"`
	MediaStreamURL       string `envconfig:"MEDIA_STREAM_URL" split_words:"true" required:"true"`
	StatusCallbackURL    string `envconfig:"STATUS_CALLBACK_URL" split_words:"true"`
	SampleProviderNumber string `envconfig:"SAMPLE_PROVIDER_NUMBER" split_words:"true"`
}

// TranscriptReader returns the transcript the media bridge stored for a call.
type TranscriptReader interface {
	ReadTranscript(ctx context.Context, callSID string) (string, bool, error)
}

type callAPI interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	FetchCall(sid string, params *openapi.FetchCallParams) (*openapi.ApiV2010Call, error)
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

// Gateway places calls through the Twilio REST API. The call audio is bridged
// to the voice agent over a media stream that receives the script as a
// parameter; transcripts come back through the TranscriptReader.
type Gateway struct {
	api            callAPI
	transcripts    TranscriptReader
	from           string
	mediaStreamURL string
	statusCallback string
}

var (
	_ call.Gateway    = (*Gateway)(nil)
	_ call.Terminator = (*Gateway)(nil)
)

func NewGateway(cfg Config, transcripts TranscriptReader) (*Gateway, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio credentials are required")
	}
	client := twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
		Username: strings.TrimSpace(cfg.AccountSID),
		Password: strings.TrimSpace(cfg.AuthToken),
	})
	return newGateway(client.Api, cfg, transcripts)
}

func newGateway(api callAPI, cfg Config, transcripts TranscriptReader) (*Gateway, error) {
	if transcripts == nil {
		return nil, errors.New("transcript reader is required")
	}
	from := strings.TrimSpace(cfg.FromNumber)
	if from == "" {
		return nil, errors.New("twilio from number is required")
	}
	stream := strings.TrimSpace(cfg.MediaStreamURL)
	if stream == "" {
		return nil, errors.New("twilio media stream url is required")
	}
	return &Gateway{
		api:            api,
		transcripts:    transcripts,
		from:           from,
		mediaStreamURL: stream,
		statusCallback: strings.TrimSpace(cfg.StatusCallbackURL),
	}, nil
}

func (g *Gateway) Initiate(ctx context.Context, phone, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	twiml, err := streamTwiML(g.mediaStreamURL, script)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrCallInitiation, err)
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(strings.TrimSpace(phone))
	params.SetFrom(g.from)
	params.SetTwiml(twiml)
	if g.statusCallback != "" {
		params.SetStatusCallback(g.statusCallback)
	}

	resp, err := g.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrCallInitiation, err)
	}
	if resp == nil || resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("%w: response has no call sid", contractx.ErrCallInitiation)
	}
	return *resp.Sid, nil
}

func (g *Gateway) Status(ctx context.Context, sessionID string) (call.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := g.api.FetchCall(sessionID, &openapi.FetchCallParams{})
	if err != nil {
		return "", fmt.Errorf("fetch call %s: %w", sessionID, err)
	}
	if resp == nil || resp.Status == nil {
		return "", fmt.Errorf("fetch call %s: response has no status", sessionID)
	}
	return mapStatus(*resp.Status)
}

func (g *Gateway) Transcript(ctx context.Context, sessionID string) (string, bool, error) {
	return g.transcripts.ReadTranscript(ctx, sessionID)
}

// Hangup ends an in-flight call.
func (g *Gateway) Hangup(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := g.api.UpdateCall(sessionID, params); err != nil {
		return fmt.Errorf("hang up call %s: %w", sessionID, err)
	}
	return nil
}

func mapStatus(raw string) (call.Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "initiated", "ringing":
		return call.StatusDialing, nil
	case "in-progress":
		return call.StatusInProgress, nil
	case "completed":
		return call.StatusCompleted, nil
	case "busy":
		return call.StatusBusy, nil
	case "no-answer":
		return call.StatusNoAnswer, nil
	case "failed":
		return call.StatusFailed, nil
	case "canceled":
		return call.StatusCanceled, nil
	default:
		return "", fmt.Errorf("unknown twilio call status %q", raw)
	}
}

func streamTwiML(streamURL, script string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response><Connect><Stream url="`)
	if err := xml.EscapeText(&buf, []byte(streamURL)); err != nil {
		return "", err
	}
	buf.WriteString(`"><Parameter name="instruction" value="`)
	if err := xml.EscapeText(&buf, []byte(script)); err != nil {
		return "", err
	}
	buf.WriteString(`"/></Stream></Connect></Response>`)
	return buf.String(), nil
}
