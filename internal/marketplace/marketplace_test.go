package marketplace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"bazarek/internal/models"
)

// pngHeader is a minimal valid PNG signature for image sniffing.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

type fakeBackend struct {
	listingCalls  int
	categoryCalls int
	userCalls     int
	imageCalls    int
	reviewCalls   int
	favCalls      int

	listing    models.Listing
	categories []models.Category
	user       models.User
	image      []byte
	favErr     error
}

func (b *fakeBackend) GetListings(ctx context.Context) ([]models.Listing, error) {
	return []models.Listing{b.listing}, nil
}

func (b *fakeBackend) GetListing(ctx context.Context, id int64) (models.Listing, error) {
	b.listingCalls++
	if id != b.listing.ID {
		return models.Listing{}, models.ErrNotFound
	}
	return b.listing, nil
}

func (b *fakeBackend) GetCategories(ctx context.Context) ([]models.Category, error) {
	b.categoryCalls++
	return b.categories, nil
}

func (b *fakeBackend) GetUser(ctx context.Context, id string) (models.User, error) {
	b.userCalls++
	return b.user, nil
}

func (b *fakeBackend) AddReview(ctx context.Context, listingID int64, review models.Review) error {
	b.reviewCalls++
	return nil
}

func (b *fakeBackend) SetFavorite(ctx context.Context, listingID int64, favorite bool) error {
	b.favCalls++
	return b.favErr
}

func (b *fakeBackend) GetImage(ctx context.Context, id int64) ([]byte, error) {
	b.imageCalls++
	return b.image, nil
}

type memFavorites struct {
	set map[int64]bool
}

func (f *memFavorites) SetFavorite(listingID int64, favorite bool) error {
	if f.set == nil {
		f.set = make(map[int64]bool)
	}
	if favorite {
		f.set[listingID] = true
	} else {
		delete(f.set, listingID)
	}
	return nil
}

func (f *memFavorites) ListFavorites() ([]int64, error) {
	var ids []int64
	for id := range f.set {
		ids = append(ids, id)
	}
	return ids, nil
}

type memFiles struct {
	blobs map[string][]byte
}

func (f *memFiles) Save(r io.Reader, key string) error {
	if f.blobs == nil {
		f.blobs = make(map[string][]byte)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.blobs[key] = data
	return nil
}

func (f *memFiles) Get(key string) (io.ReadCloser, error) {
	data, ok := f.blobs[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestService(backend *fakeBackend) *Service {
	return NewService(context.Background(), backend, &memFiles{}, &memFavorites{})
}

func TestListingCacheHit(t *testing.T) {
	backend := &fakeBackend{listing: models.Listing{ID: 7, Title: "Organic Apples"}}
	svc := newTestService(backend)

	for i := 0; i < 3; i++ {
		l, err := svc.Listing(context.Background(), 7)
		if err != nil {
			t.Fatalf("Listing failed: %v", err)
		}
		if l.Title != "Organic Apples" {
			t.Errorf("unexpected listing %+v", l)
		}
	}
	if backend.listingCalls != 1 {
		t.Errorf("expected one backend fetch, got %d", backend.listingCalls)
	}
}

func TestListingsWarmCache(t *testing.T) {
	backend := &fakeBackend{listing: models.Listing{ID: 7, Title: "Organic Apples"}}
	svc := newTestService(backend)

	if _, err := svc.Listings(context.Background()); err != nil {
		t.Fatalf("Listings failed: %v", err)
	}
	if _, err := svc.Listing(context.Background(), 7); err != nil {
		t.Fatalf("Listing failed: %v", err)
	}
	if backend.listingCalls != 0 {
		t.Errorf("catalog fetch should warm the per-listing cache, got %d fetches", backend.listingCalls)
	}
}

func TestCategoriesCached(t *testing.T) {
	backend := &fakeBackend{categories: []models.Category{{Name: "Produce"}}}
	svc := newTestService(backend)

	for i := 0; i < 2; i++ {
		cats, err := svc.Categories(context.Background())
		if err != nil {
			t.Fatalf("Categories failed: %v", err)
		}
		if len(cats) != 1 || cats[0].Name != "Produce" {
			t.Errorf("unexpected categories %+v", cats)
		}
	}
	if backend.categoryCalls != 1 {
		t.Errorf("expected one backend fetch, got %d", backend.categoryCalls)
	}
}

func TestAddReviewInvalidatesListing(t *testing.T) {
	backend := &fakeBackend{listing: models.Listing{ID: 7}}
	svc := newTestService(backend)

	if _, err := svc.Listing(context.Background(), 7); err != nil {
		t.Fatalf("Listing failed: %v", err)
	}
	err := svc.AddReview(context.Background(), 7, models.Review{Rating: 5, Comment: "great"})
	if err != nil {
		t.Fatalf("AddReview failed: %v", err)
	}
	if _, err := svc.Listing(context.Background(), 7); err != nil {
		t.Fatalf("Listing after review failed: %v", err)
	}
	if backend.listingCalls != 2 {
		t.Errorf("review must invalidate the cached listing, got %d fetches", backend.listingCalls)
	}
}

func TestAddReviewRejectsBadRating(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestService(backend)

	if err := svc.AddReview(context.Background(), 7, models.Review{Rating: 6}); err == nil {
		t.Error("expected rating validation error")
	}
	if backend.reviewCalls != 0 {
		t.Errorf("invalid review must not reach the backend, got %d calls", backend.reviewCalls)
	}
}

func TestAverageRating(t *testing.T) {
	l := models.Listing{Reviews: []models.Review{{Rating: 5}, {Rating: 4}, {Rating: 3}}}
	if got := AverageRating(l); got != 4 {
		t.Errorf("expected 4, got %v", got)
	}
	if got := AverageRating(models.Listing{}); got != 0 {
		t.Errorf("unreviewed listing should average 0, got %v", got)
	}
}

func TestSetFavoriteSurvivesBackendFailure(t *testing.T) {
	backend := &fakeBackend{favErr: errors.New("backend down")}
	svc := newTestService(backend)

	if err := svc.SetFavorite(context.Background(), 7, true); err != nil {
		t.Fatalf("SetFavorite failed: %v", err)
	}
	favs, err := svc.Favorites()
	if err != nil {
		t.Fatalf("Favorites failed: %v", err)
	}
	if len(favs) != 1 || favs[0] != 7 {
		t.Errorf("expected favorite kept locally, got %v", favs)
	}

	if err := svc.SetFavorite(context.Background(), 7, false); err != nil {
		t.Fatalf("unfavorite failed: %v", err)
	}
	favs, _ = svc.Favorites()
	if len(favs) != 0 {
		t.Errorf("expected empty favorites, got %v", favs)
	}
}

func TestImageCachedAfterFirstFetch(t *testing.T) {
	backend := &fakeBackend{image: pngHeader}
	svc := newTestService(backend)

	for i := 0; i < 2; i++ {
		data, err := svc.Image(context.Background(), 7)
		if err != nil {
			t.Fatalf("Image failed: %v", err)
		}
		if !bytes.Equal(data, pngHeader) {
			t.Errorf("unexpected image bytes")
		}
	}
	if backend.imageCalls != 1 {
		t.Errorf("expected one backend fetch, got %d", backend.imageCalls)
	}
}

func TestImageRejectsNonImagePayload(t *testing.T) {
	backend := &fakeBackend{image: []byte("<html>error page</html>")}
	svc := newTestService(backend)

	if _, err := svc.Image(context.Background(), 7); err == nil {
		t.Fatal("expected rejection of non-image payload")
	}
	// A rejected payload must not be cached either.
	if _, err := svc.Image(context.Background(), 7); err == nil {
		t.Fatal("expected rejection on retry too")
	}
	if backend.imageCalls != 2 {
		t.Errorf("expected refetch after rejection, got %d calls", backend.imageCalls)
	}
}

func TestImageMime(t *testing.T) {
	if got := ImageMime(pngHeader); got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}
	if got := ImageMime([]byte("plain text")); got != "application/octet-stream" {
		t.Errorf("expected fallback mime, got %s", got)
	}
}
