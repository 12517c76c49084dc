// Package corpus holds the review dataset and the restaurant directory. Both
// are built once at startup and are read-only afterwards, so they are safe for
// concurrent use without locking.
package corpus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/restaurant-agent/backend/internal/storage/models"
)

var ErrDimensionMismatch = errors.New("review embeddings have inconsistent dimensions")

// Directory is the per-restaurant metadata keyed by id, in insertion order.
type Directory struct {
	order []int64
	pos   map[int64]int
	byID  map[int64]models.Restaurant
}

func NewDirectory(restaurants []models.Restaurant) *Directory {
	d := &Directory{
		order: make([]int64, 0, len(restaurants)),
		pos:   make(map[int64]int, len(restaurants)),
		byID:  make(map[int64]models.Restaurant, len(restaurants)),
	}
	for _, r := range restaurants {
		if _, exists := d.byID[r.ID]; !exists {
			d.pos[r.ID] = len(d.order)
			d.order = append(d.order, r.ID)
		}
		d.byID[r.ID] = r
	}
	return d
}

func (d *Directory) Get(id int64) (models.Restaurant, bool) {
	r, ok := d.byID[id]
	return r, ok
}

func (d *Directory) Len() int {
	return len(d.order)
}

// IDs returns restaurant ids in insertion order.
func (d *Directory) IDs() []int64 {
	out := make([]int64, len(d.order))
	copy(out, d.order)
	return out
}

// Position returns the insertion index of id, or -1.
func (d *Directory) Position(id int64) int {
	if i, ok := d.pos[id]; ok {
		return i
	}
	return -1
}

// Corpus owns the reviews and the directory they link to.
type Corpus struct {
	directory *Directory
	reviews   []models.Review
	byID      map[int64][]int
	byName    map[string][]int
	names     []string
	dimension int
}

// New indexes reviews against restaurants. Every non-empty embedding must
// have the same length.
func New(restaurants []models.Restaurant, reviews []models.Review) (*Corpus, error) {
	c := &Corpus{
		directory: NewDirectory(restaurants),
		reviews:   reviews,
		byID:      make(map[int64][]int),
		byName:    make(map[string][]int),
	}

	seen := make(map[string]bool)
	addName := func(name string) {
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			return
		}
		seen[key] = true
		c.names = append(c.names, name)
	}

	for _, id := range c.directory.order {
		addName(c.directory.byID[id].Name)
	}

	for i, r := range reviews {
		if n := len(r.Embedding); n > 0 {
			if c.dimension == 0 {
				c.dimension = n
			} else if n != c.dimension {
				return nil, fmt.Errorf("%w: review %d has %d, expected %d", ErrDimensionMismatch, r.ID, n, c.dimension)
			}
		}
		c.byID[r.RestaurantID] = append(c.byID[r.RestaurantID], i)
		key := strings.ToLower(r.RestaurantName)
		c.byName[key] = append(c.byName[key], i)
		addName(r.RestaurantName)
	}

	return c, nil
}

func (c *Corpus) Directory() *Directory {
	return c.directory
}

// Dimension is the shared embedding length, or 0 when no review carries one.
func (c *Corpus) Dimension() int {
	return c.dimension
}

func (c *Corpus) Reviews() []models.Review {
	return c.reviews
}

func (c *Corpus) ReviewsFor(restaurantID int64) []models.Review {
	return c.collect(c.byID[restaurantID])
}

// ReviewsByName matches the denormalized restaurant name case-insensitively.
func (c *Corpus) ReviewsByName(name string) []models.Review {
	return c.collect(c.byName[strings.ToLower(name)])
}

// Names is the entity vocabulary: directory names in insertion order, then
// names that only appear on reviews in first-seen order.
func (c *Corpus) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// RestaurantByName resolves a vocabulary name back to a directory entry.
func (c *Corpus) RestaurantByName(name string) (models.Restaurant, bool) {
	for _, id := range c.directory.order {
		r := c.directory.byID[id]
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	if idx := c.byName[strings.ToLower(name)]; len(idx) > 0 {
		return c.directory.Get(c.reviews[idx[0]].RestaurantID)
	}
	return models.Restaurant{}, false
}

func (c *Corpus) collect(idx []int) []models.Review {
	out := make([]models.Review, len(idx))
	for i, j := range idx {
		out[i] = c.reviews[j]
	}
	return out
}
