// Package generator produces new base badges from a social profile: it
// analyzes the profile with the text model, derives a badge design, renders
// it with the image model, and pins the result.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/badges"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/generation"
	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

var (
	// ErrDisabled reports that generation clients were not configured.
	ErrDisabled = errors.New("badge generation disabled")
	// ErrValidation reports a malformed generation request.
	ErrValidation = errors.New("invalid request")
)

// URLFetcher retrieves raw bytes from an arbitrary URL. The generated image
// lives at the model provider until we pin it ourselves.
type URLFetcher interface {
	FetchURL(ctx context.Context, url string) ([]byte, error)
}

// Pinner persists image bytes and returns their content id.
type Pinner interface {
	Pin(ctx context.Context, name string, data []byte) (string, error)
	GatewayURL(cid string) string
}

// Design is the badge description derived from a profile.
type Design struct {
	Archetype  string `json:"archetype"`
	Palette    string `json:"palette"`
	Emblem     string `json:"emblem"`
	Epithet    string `json:"epithet"`
	Background string `json:"background"`
}

// Result is the outcome of one generation.
type Result struct {
	FID      string `json:"fid"`
	Design   Design `json:"design"`
	ImageCID string `json:"imageCid"`
	ImageURL string `json:"imageUrl"`
}

// Service drives the generation pipeline.
type Service struct {
	text     generation.TextClient
	images   generation.ImageClient
	profiles generation.ProfileClient
	fetcher  URLFetcher
	pinner   Pinner
	badges   *badges.Service
	log      *logger.Logger
}

// New constructs the generator. Any nil client leaves the service disabled.
func New(text generation.TextClient, images generation.ImageClient, profiles generation.ProfileClient, fetcher URLFetcher, pinner Pinner, badgeService *badges.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("generator")
	}
	return &Service{
		text:     text,
		images:   images,
		profiles: profiles,
		fetcher:  fetcher,
		pinner:   pinner,
		badges:   badgeService,
		log:      log,
	}
}

// Enabled reports whether all generation collaborators are configured.
func (s *Service) Enabled() bool {
	return s.text != nil && s.images != nil && s.profiles != nil && s.fetcher != nil && s.pinner != nil
}

// Generate builds a badge for fid and, when tokenID is non-empty, registers
// it with empty flair occupancy.
func (s *Service) Generate(ctx context.Context, fid, tokenID string) (Result, error) {
	if !s.Enabled() {
		return Result{}, ErrDisabled
	}
	if strings.TrimSpace(fid) == "" {
		return Result{}, fmt.Errorf("%w: missing fid", ErrValidation)
	}

	profile, err := s.profiles.GetProfile(ctx, fid)
	if err != nil {
		return Result{}, fmt.Errorf("resolve profile: %w", err)
	}

	design, err := s.analyze(ctx, profile)
	if err != nil {
		return Result{}, err
	}

	outputURL, err := s.images.GenerateImage(ctx, badgePrompt(profile, design), profile.PFPURL)
	if err != nil {
		return Result{}, fmt.Errorf("generate badge image: %w", err)
	}

	data, err := s.fetcher.FetchURL(ctx, outputURL)
	if err != nil {
		return Result{}, fmt.Errorf("download generated image: %w", err)
	}

	cid, err := s.pinner.Pin(ctx, fmt.Sprintf("badge-base-%s.png", fid), data)
	if err != nil {
		return Result{}, fmt.Errorf("pin generated image: %w", err)
	}

	if tokenID != "" && s.badges != nil {
		if _, err := s.badges.CreateBadge(ctx, tokenID, fid, cid); err != nil {
			return Result{}, fmt.Errorf("register generated badge: %w", err)
		}
	}

	s.log.Infof("generated badge for fid %s: %s", fid, cid)
	return Result{
		FID:      fid,
		Design:   design,
		ImageCID: cid,
		ImageURL: s.pinner.GatewayURL(cid),
	}, nil
}

// analyze asks the text model to distill the profile into a badge design.
// The model sees the pfp alongside the bio so the design echoes both.
func (s *Service) analyze(ctx context.Context, p generation.Profile) (Design, error) {
	content := []any{
		generation.TextPart(analysisPrompt(p)),
	}
	if p.PFPURL != "" {
		content = append(content, generation.ImagePart(p.PFPURL))
	}
	messages := []generation.Message{
		{Role: "system", Content: "You design collectible character badges. Respond with a single JSON object and nothing else."},
		{Role: "user", Content: content},
	}

	raw, err := s.text.GenerateText(ctx, messages, 0.8)
	if err != nil {
		return Design{}, fmt.Errorf("analyze profile: %w", err)
	}
	return parseDesign(raw)
}

func analysisPrompt(p generation.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this profile and invent a badge design for it.\n")
	fmt.Fprintf(&b, "Username: %s\nDisplay name: %s\n", p.Username, p.DisplayName)
	if p.Bio != "" {
		fmt.Fprintf(&b, "Bio: %s\n", p.Bio)
	}
	fmt.Fprintf(&b, "Followers: %d\n", p.Followers)
	b.WriteString(`Return JSON with exactly these keys: "archetype", "palette", "emblem", "epithet", "background".`)
	return b.String()
}

// badgePrompt fixes the structural elements of every badge; only the
// character-specific fields vary per profile.
func badgePrompt(p generation.Profile, d Design) string {
	var b strings.Builder
	b.WriteString("A square 1024x1024 collectible badge on a ")
	b.WriteString(d.Background)
	b.WriteString(" background. ")
	fmt.Fprintf(&b, "The character from the reference image rendered as a %s, ", d.Archetype)
	fmt.Fprintf(&b, "%s color palette, emblem of %s above the portrait. ", d.Palette, d.Emblem)
	fmt.Fprintf(&b, "Nameplate at the bottom reading %q with the epithet %q beneath it. ", p.Username, d.Epithet)
	b.WriteString("Three empty circular sockets along the lower edge, evenly spaced, left clear for attachments. Flat illustration, crisp edges, no text other than the nameplate.")
	return b.String()
}

// parseDesign extracts the design JSON from the model reply, tolerating
// markdown code fences around the object.
func parseDesign(raw string) (Design, error) {
	trimmed := strings.TrimSpace(raw)
	if i := strings.Index(trimmed, "{"); i >= 0 {
		if j := strings.LastIndex(trimmed, "}"); j > i {
			trimmed = trimmed[i : j+1]
		}
	}
	if !gjson.Valid(trimmed) {
		return Design{}, fmt.Errorf("design reply is not valid JSON")
	}

	parsed := gjson.Parse(trimmed)
	d := Design{
		Archetype:  parsed.Get("archetype").String(),
		Palette:    parsed.Get("palette").String(),
		Emblem:     parsed.Get("emblem").String(),
		Epithet:    parsed.Get("epithet").String(),
		Background: parsed.Get("background").String(),
	}
	if d.Archetype == "" || d.Emblem == "" {
		return Design{}, fmt.Errorf("design reply missing required fields")
	}
	if d.Palette == "" {
		d.Palette = "muted gold and slate"
	}
	if d.Background == "" {
		d.Background = "deep navy"
	}
	return d, nil
}
