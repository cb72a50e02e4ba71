package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/config"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/retry"
)

// gmailPageSize is the largest page the Gmail list API returns.
const gmailPageSize = 500

// messagesAPI is the part of the Gmail service the provider uses.
type messagesAPI interface {
	list(ctx context.Context, user, query, pageToken string, max int64) (*gmail.ListMessagesResponse, error)
	get(ctx context.Context, user, id string) (*gmail.Message, error)
}

type gmailMessages struct {
	svc *gmail.Service
}

func (g gmailMessages) list(ctx context.Context, user, query, pageToken string, max int64) (*gmail.ListMessagesResponse, error) {
	call := g.svc.Users.Messages.List(user).Q(query).MaxResults(max).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (g gmailMessages) get(ctx context.Context, user, id string) (*gmail.Message, error) {
	return g.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
}

// GmailProvider reads a Gmail mailbox with a stored OAuth refresh token.
// Calls are paced by a token bucket and retried on transient errors.
type GmailProvider struct {
	api      messagesAPI
	user     string
	limiter  *rate.Limiter
	retryCfg *retry.Config
	logger   *zap.Logger
}

var _ Provider = (*GmailProvider)(nil)

// NewGmailProvider creates a provider from OAuth client configuration.
func NewGmailProvider(ctx context.Context, cfg *config.GmailConfig, logger *zap.Logger) (*GmailProvider, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("gmail is not configured: client id, client secret and refresh token are required")
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return newGmailProvider(gmailMessages{svc: svc}, cfg, logger), nil
}

func newGmailProvider(api messagesAPI, cfg *config.GmailConfig, logger *zap.Logger) *GmailProvider {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	user := cfg.User
	if user == "" {
		user = "me"
	}
	return &GmailProvider{
		api:      api,
		user:     user,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		retryCfg: retry.ProviderConfig(),
		logger:   logger.Named("gmail"),
	}
}

// Search pages through the list API until q.MaxResults references are collected.
func (p *GmailProvider) Search(ctx context.Context, q Query) ([]MessageRef, error) {
	query := BuildQuery(q)
	limit := q.MaxResults
	if limit <= 0 {
		limit = gmailPageSize
	}

	var (
		refs      []MessageRef
		pageToken string
	)
	for len(refs) < limit {
		pageSize := int64(min(limit-len(refs), gmailPageSize))
		resp, err := retry.DoWithResult(ctx, p.retryCfg, func() (*gmail.ListMessagesResponse, error) {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return p.api.list(ctx, p.user, query, pageToken, pageSize)
		})
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range resp.Messages {
			refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	if len(refs) > limit {
		refs = refs[:limit]
	}

	p.logger.Debug("Mailbox searched",
		zap.String("query", query),
		zap.Int("results", len(refs)))
	return refs, nil
}

// Fetch downloads and decodes one message.
func (p *GmailProvider) Fetch(ctx context.Context, id string) (*Message, error) {
	gm, err := retry.DoWithResult(ctx, p.retryCfg, func() (*gmail.Message, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return p.api.get(ctx, p.user, id)
	})
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return decodeMessage(gm)
}
