// Package services – ChainService
//
// This file implements ChainService, which manages chains (the persistent
// groups that run missions), membership, and administrator-driven mission
// creation. Service-level errors (e.g., ErrChainNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/repo"
)

// ChainService provides chain-level operations: creating chains, joining
// them, and creating missions under a chain.
type ChainService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// NameMaxLen caps stored chain names by rune length.
	NameMaxLen int

	// DefaultRequired is the submission target applied when a mission is
	// created without one.
	DefaultRequired int
}

// NewChainService constructs a ChainService with sane defaults.
func NewChainService(db *gorm.DB) *ChainService {
	return &ChainService{
		DB:              db,
		NameMaxLen:      120,
		DefaultRequired: 5,
	}
}

// Create inserts a new chain and enrolls the creator as its first member.
func (s *ChainService) Create(ctx context.Context, creatorID, name string) (*domain.Chain, error) {
	name = normalizeName(name)
	if name == "" {
		name = "New chain"
	}
	chain, err := repo.CreateChain(ctx, s.DB, s.clip(name))
	if err != nil {
		return nil, err
	}
	if _, err := repo.AddMember(ctx, s.DB, chain.ID, creatorID); err != nil {
		return nil, err
	}
	return chain, nil
}

// Get fetches a chain by id.
func (s *ChainService) Get(ctx context.Context, chainID string) (*domain.Chain, error) {
	chain, err := repo.GetChain(ctx, s.DB, chainID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChainNotFound
	}
	return chain, err
}

// Join enrolls userID in the chain. Joining twice is a no-op.
func (s *ChainService) Join(ctx context.Context, chainID, userID string) error {
	if _, err := repo.GetChain(ctx, s.DB, chainID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrChainNotFound
		}
		return err
	}
	_, err := repo.AddMember(ctx, s.DB, chainID, userID)
	return err
}

// Authorize reports whether userID may act on the chain's missions.
func (s *ChainService) Authorize(ctx context.Context, chainID, userID string) error {
	ok, err := repo.IsMember(ctx, s.DB, chainID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

// CreateMission creates a mission under the chain. When startHot is true
// the mission opens directly in CAPTURE (no lobby phase); otherwise it
// waits in LOBBY for the first submission. required defaults to
// DefaultRequired when non-positive is passed as zero; negative values are
// rejected.
func (s *ChainService) CreateMission(ctx context.Context, chainID, prompt string, required int, startHot bool, startsAt, endsAt *time.Time) (*domain.Mission, error) {
	if _, err := repo.GetChain(ctx, s.DB, chainID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	if required == 0 {
		required = s.DefaultRequired
	}
	if required < 0 {
		return nil, ErrInvalidRequired
	}

	state := domain.StateLobby
	if startHot {
		state = domain.StateCapture
		if startsAt == nil {
			now := time.Now().UTC()
			startsAt = &now
		}
	}
	return repo.CreateMission(ctx, s.DB, chainID, strings.TrimSpace(prompt), required, state, startsAt, endsAt)
}

// Missions lists the chain's missions, newest first.
func (s *ChainService) Missions(ctx context.Context, chainID string) ([]domain.Mission, error) {
	if _, err := repo.GetChain(ctx, s.DB, chainID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	return repo.ListChainMissions(ctx, s.DB, chainID)
}

// Connections returns the chain's outgoing graph edges.
func (s *ChainService) Connections(ctx context.Context, chainID string) ([]domain.Connection, error) {
	if _, err := repo.GetChain(ctx, s.DB, chainID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	return repo.ListConnections(ctx, s.DB, chainID)
}

// clip truncates a chain name to the configured maximum rune length.
func (s *ChainService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// normalizeName trims whitespace and collapses multiple spaces to one.
func normalizeName(s string) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
