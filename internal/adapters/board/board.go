// Package board resolves board identifiers to card pairs and deals the
// cards a session presents to players.
package board

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
)

// Pair is one image pair on a board.
type Pair struct {
	ID        uuid.UUID
	Image1URL string
	Image2URL string
}

// Board is a fixed collection of image pairs from which sessions deal cards.
type Board struct {
	ID         uuid.UUID
	Name       string
	Difficulty string
	Active     bool
	Pairs      []Pair
}

// Provider resolves a board identifier to an active, ordered pair list.
type Provider interface {
	// Resolve returns the board if it is active and holds at least minPairs
	// pairs. Returns model.ErrNotFound for unknown or inactive boards and
	// model.ErrInvalidArgument for boards that are too small.
	Resolve(ctx context.Context, boardID uuid.UUID, minPairs int) (Board, error)
}

// Fingerprint derives a reproducible layout hash from the dealt pairs so a
// layout can be verified later. Shuffling never changes the fingerprint.
func Fingerprint(pairs []Pair) string {
	ids := make([]string, len(pairs))
	for i, p := range pairs {
		ids[i] = p.ID.String()
	}
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Deal builds the 2N presentation cards for the first target pairs. Card ids
// are assigned in pair order (pair index = id/2) and only the presentation
// order is shuffled, so correctness never depends on the shuffle.
func Deal(pairs []Pair, target int, rng *rand.Rand) []model.Card {
	cards := make([]model.Card, 0, target*2)
	for i := 0; i < target; i++ {
		cards = append(cards,
			model.Card{ID: i * 2, PairIndex: i, ImageURL: pairs[i].Image1URL},
			model.Card{ID: i*2 + 1, PairIndex: i, ImageURL: pairs[i].Image2URL},
		)
	}
	rng.Shuffle(len(cards), func(a, b int) {
		cards[a], cards[b] = cards[b], cards[a]
	})
	return cards
}

// ensure Catalog satisfies Provider.
var _ Provider = (*Catalog)(nil)

// Catalog is an in-memory board provider.
type Catalog struct {
	mu     sync.RWMutex
	boards map[uuid.UUID]Board
}

// NewCatalog creates a catalog with configuration options.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{
		boards: make(map[uuid.UUID]Board),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Add registers a board in the catalog.
func (c *Catalog) Add(b Board) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boards[b.ID] = b
}

// Resolve returns an active board with at least minPairs pairs.
func (c *Catalog) Resolve(ctx context.Context, boardID uuid.UUID, minPairs int) (Board, error) {
	c.mu.RLock()
	b, ok := c.boards[boardID]
	c.mu.RUnlock()
	if !ok || !b.Active {
		return Board{}, fmt.Errorf("board %s not found or inactive: %w", boardID, model.ErrNotFound)
	}
	if len(b.Pairs) < minPairs {
		return Board{}, fmt.Errorf("board %s has %d pairs, need %d: %w", boardID, len(b.Pairs), minPairs, model.ErrInvalidArgument)
	}
	return b, nil
}
