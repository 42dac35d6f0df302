package canister

import (
	"context"
	"encoding/base64"
	"fmt"

	"bazarek/internal/models"
)

// Marketplace wire shapes.

type wireListing struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Date           int64        `json:"date"`
	Description    string       `json:"description"`
	Category       string       `json:"category"`
	Price          float64      `json:"price"`
	Amount         int          `json:"amount"`
	OwnerID        string       `json:"owner_id"`
	ImagesID       []int64      `json:"images_id"`
	CategoriesPath string       `json:"categories_path"`
	Reviews        []wireReview `json:"reviews"`
}

type wireReview struct {
	OwnerID string `json:"owner_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type wireCategory struct {
	Name            string         `json:"name"`
	LowerCategories []wireCategory `json:"lower_categories"`
}

type wireUser struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	PhoneNumber  string  `json:"phone_number"`
	CompanyName  string  `json:"company_name"`
	CreationDate int64   `json:"creation_date"`
	FavoritesID  []int64 `json:"favorites_id"`
}

func (w wireListing) toModel() models.Listing {
	reviews := make([]models.Review, len(w.Reviews))
	for i, r := range w.Reviews {
		reviews[i] = models.Review{OwnerID: r.OwnerID, Rating: r.Rating, Comment: r.Comment}
	}
	return models.Listing{
		ID:             w.ID,
		Title:          w.Title,
		Description:    w.Description,
		Category:       w.Category,
		CategoriesPath: w.CategoriesPath,
		Price:          w.Price,
		Amount:         w.Amount,
		OwnerID:        w.OwnerID,
		ImageIDs:       w.ImagesID,
		CreatedAt:      w.Date,
		Reviews:        reviews,
	}
}

func toCategories(wire []wireCategory) []models.Category {
	out := make([]models.Category, len(wire))
	for i, w := range wire {
		out[i] = models.Category{Name: w.Name, Children: toCategories(w.LowerCategories)}
	}
	return out
}

func (c *Client) GetListings(ctx context.Context) ([]models.Listing, error) {
	var wire []wireListing
	if err := c.call(ctx, "get_listings", nil, &wire); err != nil {
		return nil, err
	}
	listings := make([]models.Listing, len(wire))
	for i, w := range wire {
		listings[i] = w.toModel()
	}
	return listings, nil
}

func (c *Client) GetListing(ctx context.Context, id int64) (models.Listing, error) {
	var w wireListing
	if err := c.call(ctx, "get_listing", map[string]any{"id": id}, &w); err != nil {
		return models.Listing{}, err
	}
	return w.toModel(), nil
}

func (c *Client) GetCategories(ctx context.Context) ([]models.Category, error) {
	var wire []wireCategory
	if err := c.call(ctx, "get_categories", nil, &wire); err != nil {
		return nil, err
	}
	return toCategories(wire), nil
}

func (c *Client) GetUser(ctx context.Context, id string) (models.User, error) {
	var w wireUser
	if err := c.call(ctx, "get_user", map[string]any{"id": id}, &w); err != nil {
		return models.User{}, err
	}
	return models.User{
		ID:          w.ID,
		Name:        w.Name,
		Email:       w.Email,
		PhoneNumber: w.PhoneNumber,
		CompanyName: w.CompanyName,
		CreatedAt:   w.CreationDate,
		FavoriteIDs: w.FavoritesID,
	}, nil
}

func (c *Client) AddReview(ctx context.Context, listingID int64, review models.Review) error {
	args := map[string]any{
		"listing_id": listingID,
		"rating":     review.Rating,
		"comment":    review.Comment,
	}
	return c.call(ctx, "add_review", args, nil)
}

// SetFavorite adds or removes a listing from the caller's favorites.
func (c *Client) SetFavorite(ctx context.Context, listingID int64, favorite bool) error {
	method := "add_favorite"
	if !favorite {
		method = "remove_favorite"
	}
	return c.call(ctx, method, map[string]any{"listing_id": listingID}, nil)
}

// GetImage fetches listing image bytes. The canister stores images
// base64-encoded.
func (c *Client) GetImage(ctx context.Context, id int64) ([]byte, error) {
	var encoded string
	if err := c.call(ctx, "get_image", map[string]any{"id": id}, &encoded); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %d: %w", id, err)
	}
	return data, nil
}
