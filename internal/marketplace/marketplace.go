// Package marketplace is the read side of the listing catalog:
// listings, the category tree, reviews and favorites, with
// client-side caches in front of the canister so browsing does not
// refetch on every render.
package marketplace

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/c-pro/geche"
	"github.com/h2non/filetype"

	"bazarek/internal/content"
	"bazarek/internal/filestore"
	"bazarek/internal/models"
)

const (
	listingTTL  = time.Minute
	categoryTTL = 10 * time.Minute

	categoriesKey = "categories"
)

// Backend is the canister surface the marketplace reads from.
type Backend interface {
	GetListings(ctx context.Context) ([]models.Listing, error)
	GetListing(ctx context.Context, id int64) (models.Listing, error)
	GetCategories(ctx context.Context) ([]models.Category, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	AddReview(ctx context.Context, listingID int64, review models.Review) error
	SetFavorite(ctx context.Context, listingID int64, favorite bool) error
	GetImage(ctx context.Context, id int64) ([]byte, error)
}

// FavoriteStore persists the favorites set locally so the UI state
// survives a restart even when the backend call fails.
type FavoriteStore interface {
	SetFavorite(listingID int64, favorite bool) error
	ListFavorites() ([]int64, error)
}

type Service struct {
	backend Backend
	files   filestore.FileStore
	favs    FavoriteStore

	listings   geche.Geche[int64, models.Listing]
	categories geche.Geche[string, []models.Category]
	users      geche.Geche[string, models.User]
}

func NewService(ctx context.Context, backend Backend, files filestore.FileStore, favs FavoriteStore) *Service {
	return &Service{
		backend:    backend,
		files:      files,
		favs:       favs,
		listings:   geche.NewMapTTLCache[int64, models.Listing](ctx, listingTTL, time.Minute),
		categories: geche.NewMapTTLCache[string, []models.Category](ctx, categoryTTL, time.Minute),
		users:      geche.NewMapTTLCache[string, models.User](ctx, listingTTL, time.Minute),
	}
}

// Listings fetches the catalog. Individual listings go into the
// cache so a follow-up Listing call is local.
func (s *Service) Listings(ctx context.Context) ([]models.Listing, error) {
	listings, err := s.backend.GetListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}
	for _, l := range listings {
		s.listings.Set(l.ID, l)
	}
	return listings, nil
}

func (s *Service) Listing(ctx context.Context, id int64) (models.Listing, error) {
	if l, err := s.listings.Get(id); err == nil {
		return l, nil
	}
	l, err := s.backend.GetListing(ctx, id)
	if err != nil {
		return models.Listing{}, fmt.Errorf("failed to fetch listing %d: %w", id, err)
	}
	s.listings.Set(id, l)
	return l, nil
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	if cats, err := s.categories.Get(categoriesKey); err == nil {
		return cats, nil
	}
	cats, err := s.backend.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	s.categories.Set(categoriesKey, cats)
	return cats, nil
}

func (s *Service) User(ctx context.Context, id string) (models.User, error) {
	if u, err := s.users.Get(id); err == nil {
		return u, nil
	}
	u, err := s.backend.GetUser(ctx, id)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to fetch user %s: %w", id, err)
	}
	s.users.Set(id, u)
	return u, nil
}

// AddReview validates and submits a review, then drops the listing
// from the cache so the next read sees it.
func (s *Service) AddReview(ctx context.Context, listingID int64, review models.Review) error {
	if err := content.ValidateRating(review.Rating); err != nil {
		return err
	}
	review.Comment = content.Sanitize(review.Comment)
	if err := s.backend.AddReview(ctx, listingID, review); err != nil {
		return fmt.Errorf("failed to add review: %w", err)
	}
	_ = s.listings.Del(listingID)
	return nil
}

// AverageRating computes the mean review rating, 0 when unreviewed.
func AverageRating(l models.Listing) float64 {
	if len(l.Reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range l.Reviews {
		total += r.Rating
	}
	return float64(total) / float64(len(l.Reviews))
}

// RenderDescription renders a listing description from markdown to
// sanitized HTML.
func (s *Service) RenderDescription(l models.Listing) (string, error) {
	return content.RenderMarkdown(l.Description)
}

// SetFavorite flips the favorite flag locally first; the backend
// update is best effort.
func (s *Service) SetFavorite(ctx context.Context, listingID int64, favorite bool) error {
	if err := s.favs.SetFavorite(listingID, favorite); err != nil {
		return fmt.Errorf("failed to store favorite: %w", err)
	}
	if err := s.backend.SetFavorite(ctx, listingID, favorite); err != nil {
		log.Printf("failed to sync favorite %d to backend: %v", listingID, err)
	}
	return nil
}

func (s *Service) Favorites() ([]int64, error) {
	return s.favs.ListFavorites()
}

// Image returns listing image bytes, serving from the local file
// cache when possible. Fetched bytes must look like an actual image
// before they are cached or returned.
func (s *Service) Image(ctx context.Context, id int64) ([]byte, error) {
	key := imageKey(id)
	if r, err := s.files.Get(key); err == nil {
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	}

	data, err := s.backend.GetImage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image %d: %w", id, err)
	}
	if !filetype.IsImage(data) {
		return nil, errors.New("fetched payload is not an image")
	}
	if err := s.files.Save(bytes.NewReader(data), key); err != nil {
		log.Printf("failed to cache image %d: %v", id, err)
	}
	return data, nil
}

// ImageMime sniffs the concrete image type for the Content-Type
// header.
func ImageMime(data []byte) string {
	kind, err := filetype.Image(data)
	if err != nil {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

func imageKey(id int64) string {
	sum := sha256.Sum256([]byte("image-" + strconv.FormatInt(id, 10)))
	return hex.EncodeToString(sum[:])
}
