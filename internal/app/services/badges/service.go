// Package badges orchestrates badge operations: occupancy transitions,
// image fetches, compositing, pinning, and the state write. The compute
// pipeline is all-or-nothing; the stored record is only touched after a
// successful compute.
package badges

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	badgedomain "github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/badge"
	flairdomain "github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/metrics"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/compositor"
	flairsvc "github.com/saltoriousSIG/peeples-pins-generator/internal/app/services/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/cache"
	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

var (
	// ErrValidation reports a malformed request, detected before any
	// network call.
	ErrValidation = errors.New("invalid request")
	// ErrFetchTimeout reports that a required image fetch hit its deadline.
	ErrFetchTimeout = errors.New("image fetch timed out")
)

// Fetcher retrieves raw image bytes by content id.
type Fetcher interface {
	Fetch(ctx context.Context, cid string) ([]byte, error)
}

// Pinner persists image bytes and returns their content id.
type Pinner interface {
	Pin(ctx context.Context, name string, data []byte) (string, error)
	GatewayURL(cid string) string
}

// EquipRequest asks to place a new flair in a slot.
type EquipRequest struct {
	FID         string
	TokenID     string
	NewFlairID  string
	NewFlairCID string
	SlotIndex   int

	// BaseImageCID and CurrentFlair seed the store when the token has no
	// record yet; once a record exists the store is authoritative.
	BaseImageCID string
	CurrentFlair []flairdomain.Item
}

// UnequipRequest asks to clear a slot.
type UnequipRequest struct {
	FID       string
	TokenID   string
	SlotIndex int

	BaseImageCID string
	CurrentFlair []flairdomain.Item
}

// SlotImage pairs raw image bytes with a target slot for preview rendering.
type SlotImage struct {
	Image     []byte
	SlotIndex int
}

// Result is the outcome of a successful equip or unequip.
type Result struct {
	TokenID   string             `json:"tokenId"`
	Occupancy []flairdomain.Item `json:"occupancy"`
	ImageCID  string             `json:"imageCid"`
	ImageURL  string             `json:"imageUrl"`
}

// Service is the badge assembly orchestrator.
type Service struct {
	store   storage.BadgeStateStore
	fetcher Fetcher
	pinner  Pinner
	comp    *compositor.Service
	flair   *flairsvc.Service
	log     *logger.Logger

	imageCache   cache.ImageCache
	fetchTimeout time.Duration

	// Per-token locks serialize the read-transition-write window for one
	// badge; cross-token operations stay concurrent.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option customizes the service.
type Option func(*Service)

// WithCache adds a content-addressed image cache over the fetcher.
func WithCache(c cache.ImageCache) Option {
	return func(s *Service) { s.imageCache = c }
}

// WithFetchTimeout bounds each individual image fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// New constructs the orchestrator.
func New(store storage.BadgeStateStore, fetcher Fetcher, pinner Pinner, comp *compositor.Service, flairService *flairsvc.Service, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("badges")
	}
	if comp == nil {
		comp = compositor.New(log)
	}
	if flairService == nil {
		flairService = flairsvc.New(log)
	}
	s := &Service{
		store:        store,
		fetcher:      fetcher,
		pinner:       pinner,
		comp:         comp,
		flair:        flairService,
		log:          log,
		fetchTimeout: 15 * time.Second,
		locks:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EquipFlair validates, transitions, re-renders, pins, and commits.
func (s *Service) EquipFlair(ctx context.Context, req EquipRequest) (Result, error) {
	if err := requireFields(map[string]string{
		"tokenId":     req.TokenID,
		"newFlairCid": req.NewFlairCID,
	}); err != nil {
		return Result{}, err
	}
	if !flairdomain.ValidSlot(req.SlotIndex) {
		return Result{}, fmt.Errorf("%w: %v", ErrValidation, &flairdomain.ErrInvalidSlot{Slot: req.SlotIndex})
	}

	unlock := s.lockToken(req.TokenID)
	defer unlock()

	st, err := s.resolveState(ctx, req.TokenID, req.FID, req.BaseImageCID, req.CurrentFlair)
	if err != nil {
		return Result{}, err
	}

	item := flairdomain.Item{
		FlairID:   req.NewFlairID,
		ImageCID:  req.NewFlairCID,
		SlotIndex: req.SlotIndex,
	}
	newSet, err := s.flair.Equip(st.EquippedFlair, item)
	if err != nil {
		return Result{}, err
	}

	return s.commitRender(ctx, st, newSet)
}

// UnequipFlair validates, transitions, re-renders, and commits. When the new
// set is empty the base badge is the rendered image and no fetch, composite,
// or pin is needed.
func (s *Service) UnequipFlair(ctx context.Context, req UnequipRequest) (Result, error) {
	if err := requireFields(map[string]string{"tokenId": req.TokenID}); err != nil {
		return Result{}, err
	}
	if !flairdomain.ValidSlot(req.SlotIndex) {
		return Result{}, fmt.Errorf("%w: %v", ErrValidation, &flairdomain.ErrInvalidSlot{Slot: req.SlotIndex})
	}

	unlock := s.lockToken(req.TokenID)
	defer unlock()

	st, err := s.resolveState(ctx, req.TokenID, req.FID, req.BaseImageCID, req.CurrentFlair)
	if err != nil {
		return Result{}, err
	}

	newSet, err := s.flair.Unequip(st.EquippedFlair, req.SlotIndex)
	if err != nil {
		return Result{}, err
	}

	if len(newSet) == 0 {
		st.EquippedFlair = newSet
		st.CurrentImageCID = st.BaseImageCID
		updated, err := s.persist(ctx, st)
		if err != nil {
			return Result{}, fmt.Errorf("commit badge state: %w", err)
		}
		return s.result(updated), nil
	}

	return s.commitRender(ctx, st, newSet)
}

// GetBadge returns the stored state for a token.
func (s *Service) GetBadge(ctx context.Context, tokenID string) (badgedomain.State, error) {
	if strings.TrimSpace(tokenID) == "" {
		return badgedomain.State{}, fmt.Errorf("%w: missing tokenId", ErrValidation)
	}
	return s.store.GetBadgeState(ctx, tokenID)
}

// ListBadges returns all stored badge states.
func (s *Service) ListBadges(ctx context.Context) ([]badgedomain.State, error) {
	return s.store.ListBadgeStates(ctx)
}

// CreateBadge registers a freshly generated badge with empty occupancy.
func (s *Service) CreateBadge(ctx context.Context, tokenID, ownerFID, baseCID string) (badgedomain.State, error) {
	if err := requireFields(map[string]string{"tokenId": tokenID, "baseImageCid": baseCID}); err != nil {
		return badgedomain.State{}, err
	}
	return s.store.CreateBadgeState(ctx, badgedomain.State{
		TokenID:         tokenID,
		OwnerFID:        ownerFID,
		BaseImageCID:    baseCID,
		CurrentImageCID: baseCID,
	})
}

// RenderComposite is the stateless preview primitive: it flattens the given
// base and per-slot images without touching occupancy state.
func (s *Service) RenderComposite(ctx context.Context, base []byte, flairs []SlotImage) ([]byte, error) {
	_ = ctx
	overlays := make([]compositor.Overlay, 0, len(flairs))
	for _, f := range flairs {
		rect, err := flairdomain.RectangleFor(f.SlotIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		overlays = append(overlays, compositor.Overlay{Image: f.Image, Rect: rect})
	}
	return s.composite(base, overlays)
}

// RenderByCID fetches a base badge and an ordered list of flair images by
// content id and returns the rendered PNG. Flair occupies slots 0..2 in list
// order. Occupancy state is never read or written.
func (s *Service) RenderByCID(ctx context.Context, baseCID string, flairCIDs []string) ([]byte, error) {
	if err := requireFields(map[string]string{"baseCid": baseCID}); err != nil {
		return nil, err
	}
	if len(flairCIDs) > flairdomain.SlotCount {
		return nil, fmt.Errorf("%w: %d flair for %d slots", ErrValidation, len(flairCIDs), flairdomain.SlotCount)
	}

	images, err := s.fetchAll(ctx, append([]string{baseCID}, flairCIDs...))
	if err != nil {
		return nil, err
	}

	overlays := make([]compositor.Overlay, len(flairCIDs))
	for i := range flairCIDs {
		rect, err := flairdomain.RectangleFor(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		overlays[i] = compositor.Overlay{Image: images[i+1], Rect: rect}
	}
	return s.composite(images[0], overlays)
}

// commitRender renders the new occupancy set, pins the output, and writes
// the state. Called with the per-token lock held.
func (s *Service) commitRender(ctx context.Context, st badgedomain.State, newSet []flairdomain.Item) (Result, error) {
	cids := make([]string, 0, len(newSet)+1)
	cids = append(cids, st.BaseImageCID)
	for _, it := range newSet {
		cids = append(cids, it.ImageCID)
	}

	images, err := s.fetchAll(ctx, cids)
	if err != nil {
		return Result{}, err
	}

	// Overlays ordered by slot ascending: newSet is sorted by the state
	// machine, so re-running the same history renders identical bytes.
	overlays := make([]compositor.Overlay, len(newSet))
	for i, it := range newSet {
		rect, err := flairdomain.RectangleFor(it.SlotIndex)
		if err != nil {
			return Result{}, fmt.Errorf("slot geometry for equipped item: %w", err)
		}
		overlays[i] = compositor.Overlay{Image: images[i+1], Rect: rect}
	}

	rendered, err := s.composite(images[0], overlays)
	if err != nil {
		return Result{}, err
	}

	newCID, err := s.pinner.Pin(ctx, fmt.Sprintf("badge-%s-%s.png", st.TokenID, uuid.NewString()), rendered)
	if err != nil {
		return Result{}, fmt.Errorf("pin rendered badge: %w", err)
	}

	st.EquippedFlair = newSet
	st.CurrentImageCID = newCID
	updated, err := s.persist(ctx, st)
	if err != nil {
		return Result{}, fmt.Errorf("commit badge state: %w", err)
	}
	s.log.Infof("badge %s re-rendered: %d flair, image %s", st.TokenID, len(newSet), newCID)
	return s.result(updated), nil
}

func (s *Service) composite(base []byte, overlays []compositor.Overlay) ([]byte, error) {
	out, err := s.comp.Composite(base, overlays)
	if err != nil {
		metrics.RecordComposite("error")
		return nil, err
	}
	metrics.RecordComposite("ok")
	return out, nil
}

// fetchAll retrieves every cid concurrently, each fetch independently
// timeout-bounded. Results come back in argument order. Any failure aborts
// the whole batch.
func (s *Service) fetchAll(ctx context.Context, cids []string) ([][]byte, error) {
	images := make([][]byte, len(cids))
	g, gctx := errgroup.WithContext(ctx)
	for i, cid := range cids {
		i, cid := i, cid
		g.Go(func() error {
			data, err := s.fetchOne(gctx, cid)
			if err != nil {
				return err
			}
			images[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
		}
		return nil, err
	}
	return images, nil
}

func (s *Service) fetchOne(ctx context.Context, cid string) ([]byte, error) {
	if s.imageCache != nil {
		if data, ok := s.imageCache.Get(ctx, cid); ok {
			metrics.RecordFetch("cache")
			return data, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	data, err := s.fetcher.Fetch(fetchCtx, cid)
	if err != nil {
		metrics.RecordFetch("error")
		return nil, err
	}
	metrics.RecordFetch("gateway")

	if s.imageCache != nil {
		s.imageCache.Set(ctx, cid, data)
	}
	return data, nil
}

// resolveState loads the stored record for tokenID. An unknown token gets an
// unsaved record built from the request-supplied base image and occupancy
// (this bridge stays until the on-chain registry serves reads directly); its
// zero Version tells persist to create rather than compare-and-swap, so a
// failed operation leaves no record behind.
func (s *Service) resolveState(ctx context.Context, tokenID, fid, baseCID string, current []flairdomain.Item) (badgedomain.State, error) {
	st, err := s.store.GetBadgeState(ctx, tokenID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return badgedomain.State{}, fmt.Errorf("load badge state: %w", err)
	}

	if strings.TrimSpace(baseCID) == "" {
		return badgedomain.State{}, fmt.Errorf("%w: unknown token %s and no baseImageCid supplied", ErrValidation, tokenID)
	}
	if err := s.flair.Validate(current); err != nil {
		return badgedomain.State{}, fmt.Errorf("%w: supplied occupancy: %v", ErrValidation, err)
	}

	return badgedomain.State{
		TokenID:         tokenID,
		OwnerFID:        fid,
		BaseImageCID:    baseCID,
		CurrentImageCID: baseCID,
		EquippedFlair:   current,
	}, nil
}

// persist writes st: records never stored (zero Version) are created, known
// records go through the version-checked put.
func (s *Service) persist(ctx context.Context, st badgedomain.State) (badgedomain.State, error) {
	if st.Version == 0 {
		return s.store.CreateBadgeState(ctx, st)
	}
	return s.store.PutBadgeState(ctx, st)
}

func (s *Service) result(st badgedomain.State) Result {
	res := Result{
		TokenID:   st.TokenID,
		Occupancy: st.EquippedFlair,
		ImageCID:  st.CurrentImageCID,
	}
	if res.Occupancy == nil {
		res.Occupancy = []flairdomain.Item{}
	}
	if s.pinner != nil {
		res.ImageURL = s.pinner.GatewayURL(st.CurrentImageCID)
	}
	return res
}

func (s *Service) lockToken(tokenID string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[tokenID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[tokenID] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: missing %s", ErrValidation, name)
		}
	}
	return nil
}
