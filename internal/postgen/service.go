// Package postgen runs one post generation end to end: entitlement check, prompt,
// model call, parsing, and the transactional credit/history record.
package postgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/config"
	"github.com/PortNumber53/techpost-ai/internal/entitlement"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/models"
	"github.com/PortNumber53/techpost-ai/internal/parser"
	"github.com/PortNumber53/techpost-ai/internal/prompt"
	"github.com/PortNumber53/techpost-ai/internal/session"
)

// ErrEmptyInput is returned when neither context text nor an attachment was sent.
var ErrEmptyInput = errors.New("context text or attachment is required")

type Generator interface {
	Generate(ctx context.Context, prompt string, att *models.Attachment) (string, error)
	GenerateStructured(ctx context.Context, prompt string, att *models.Attachment) (string, error)
}

type Users interface {
	Get(ctx context.Context, email string) (models.User, error)
}

// Recorder persists a generated post and charges for it atomically.
type Recorder interface {
	Record(ctx context.Context, u models.User, p models.Post) (models.Post, entitlement.Outcome, error)
}

type PaywallMarker interface {
	MarkPaywall(ctx context.Context, sessionID string) error
}

// Outcome is what the client renders after a generation.
type Outcome struct {
	Post        models.Post   `json:"post"`
	ParseStatus parser.Status `json:"parseStatus"`
	Credits     int           `json:"credits"`
	VIP         bool          `json:"vip"`
	Paywall     bool          `json:"paywall"`
	Saved       bool          `json:"saved"`
}

type Service struct {
	gen      Generator
	users    Users
	recorder Recorder
	paywall  PaywallMarker
	mode     string
	timeout  time.Duration
	logger   *zap.Logger
}

type Options struct {
	Mode    string
	Timeout time.Duration
	Logger  *zap.Logger
}

func NewService(gen Generator, users Users, recorder Recorder, paywall PaywallMarker, opts Options) *Service {
	mode := opts.Mode
	if mode == "" {
		mode = config.ModeStructured
	}
	return &Service{
		gen:      gen,
		users:    users,
		recorder: recorder,
		paywall:  paywall,
		mode:     mode,
		timeout:  opts.Timeout,
		logger:   logging.OrNop(opts.Logger).Named("postgen"),
	}
}

// Generate produces and records one post for the session's user.
func (s *Service) Generate(ctx context.Context, sess *session.Session, req models.GenerationRequest) (Outcome, error) {
	if sess == nil {
		return Outcome{}, session.ErrNoSession
	}
	if strings.TrimSpace(req.Context) == "" && req.Attachment == nil {
		return Outcome{}, ErrEmptyInput
	}
	if req.Channel == "" {
		req.Channel = prompt.Channels[0]
	}

	stored, err := s.users.Get(ctx, sess.UserEmail)
	if err != nil {
		return Outcome{}, err
	}
	user := sess.Effective(stored)
	if !entitlement.CanGenerate(user) {
		return Outcome{Credits: user.Credits, Paywall: true}, apperr.ErrPaywall
	}

	variant := s.variant()
	text, err := prompt.Compose(prompt.Request{
		Channel:  req.Channel,
		Audience: req.Audience,
		Goal:     req.Goal,
		Tone:     req.Tone,
		Context:  req.Context,
	}, variant)
	if err != nil {
		return Outcome{}, err
	}

	raw, err := s.call(ctx, text, req.Attachment)
	if err != nil {
		s.logger.Warn("model call failed", zap.String("email", user.Email), zap.Error(err))
		return Outcome{}, err
	}

	var res parser.Result
	if s.mode == config.ModeStructured {
		res = parser.ParseStructured(raw)
	} else {
		res = parser.Parse(raw)
	}
	if res.Ambiguous() && s.mode != config.ModePlain {
		s.logger.Info("parse fallback", zap.Error(apperr.ErrParseAmbiguity),
			zap.String("email", user.Email), zap.String("status", string(res.Status)))
	}

	post := models.Post{UserEmail: user.Email, Platform: req.Channel, Title: res.Title, Content: res.Body}
	out := Outcome{Post: post, ParseStatus: res.Status, Credits: user.Credits, VIP: user.IsVIP}

	saved, charge, err := s.recorder.Record(ctx, user, post)
	if errors.Is(err, apperr.ErrPaywall) {
		// Another request spent the last credit first.
		s.markPaywall(ctx, sess.ID)
		return Outcome{Credits: 0, Paywall: true}, err
	}
	if err != nil {
		// The user still gets the post; nothing was charged.
		s.logger.Error("record failed", zap.String("email", user.Email), zap.Error(err))
		return out, nil
	}
	out.Post = saved
	out.Saved = true
	if charge.Consumed {
		out.Credits = charge.Remaining
	}
	if charge.Paywall {
		out.Paywall = true
		s.markPaywall(ctx, sess.ID)
	}
	s.logger.Info("post generated",
		zap.String("email", user.Email),
		zap.String("post_id", saved.ID),
		zap.String("status", string(res.Status)),
		zap.Int("credits", out.Credits),
		zap.Bool("vip", user.IsVIP))
	return out, nil
}

func (s *Service) markPaywall(ctx context.Context, sessionID string) {
	if err := s.paywall.MarkPaywall(ctx, sessionID); err != nil {
		s.logger.Warn("paywall flag not stored", zap.String("session", sessionID), zap.Error(err))
	}
}

func (s *Service) variant() prompt.Variant {
	switch s.mode {
	case config.ModeMarkers:
		return prompt.VariantMarkers
	case config.ModePlain:
		return prompt.VariantPlain
	default:
		return prompt.VariantStructured
	}
}

func (s *Service) call(ctx context.Context, text string, att *models.Attachment) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var (
		raw string
		err error
	)
	if s.mode == config.ModeStructured {
		raw, err = s.gen.GenerateStructured(ctx, text, att)
	} else {
		raw, err = s.gen.Generate(ctx, text, att)
	}
	if err != nil && !errors.Is(err, apperr.ErrGeneration) {
		err = apperr.Generation("generate", err)
	}
	if err != nil {
		return "", fmt.Errorf("postgen: %w", err)
	}
	return raw, nil
}
