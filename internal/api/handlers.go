// Package api exposes the client engine to the local web UI as a
// JSON API: conversations, messages, typing, listings, favorites,
// reviews, images and push subscriptions.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"bazarek/internal/chat"
	"bazarek/internal/delivery"
	"bazarek/internal/marketplace"
	"bazarek/internal/models"
	"bazarek/internal/storage"
)

type API struct {
	chat    *chat.Service
	market  *marketplace.Service
	channel delivery.Channel
	store   *storage.BboltStorage
}

func New(chatService *chat.Service, market *marketplace.Service, channel delivery.Channel, store *storage.BboltStorage) *API {
	return &API{
		chat:    chatService,
		market:  market,
		channel: channel,
		store:   store,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNotParticipant):
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}

// ConversationsHandler lists conversations newest-activity first.
func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.chat.Store().List())
}

// CreateConversationHandler implements the contact-seller action:
// reuse the existing conversation for (listing, pair) or create one.
func (a *API) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID   int64  `json:"listingId"`
		OtherUserID string `json:"otherUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OtherUserID == a.chat.UserID() {
		http.Error(w, "Cannot start a conversation with yourself", http.StatusBadRequest)
		return
	}

	id, err := a.chat.CreateOrGetConversation(r.Context(), req.ListingID, req.OtherUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"conversationId": id})
}

// OpenConversationHandler activates a conversation: refreshes its
// history, marks it read and returns the snapshot.
func (a *API) OpenConversationHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := a.chat.OpenConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, conv)
}

// CloseConversationHandler deactivates the conversation when the UI
// navigates away.
func (a *API) CloseConversationHandler(w http.ResponseWriter, r *http.Request) {
	a.chat.CloseConversation(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := a.chat.SendMessage(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, msg)
}

// RefreshMessagesHandler forces a history fetch. When the transport
// can fetch on demand and the conversation is the open one, the fetch
// goes through the transport's own loop, which serializes with the
// scheduled polls and discards stale results; the refreshed snapshot
// reaches the UI over the events stream. Otherwise the fetch is done
// inline.
func (a *API) RefreshMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, ok := a.chat.Store().Get(id)
	if !ok {
		writeError(w, models.ErrNotFound)
		return
	}

	if rf, ok := a.channel.(delivery.OnDemandRefresher); ok && a.chat.Store().ActiveID() == id {
		rf.RequestRefresh(id)
		writeJSON(w, conv)
		return
	}

	if err := a.chat.RefreshMessages(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	conv, _ = a.chat.Store().Get(id)
	writeJSON(w, conv)
}

func (a *API) TypingHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsTyping bool `json:"isTyping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IsTyping {
		a.chat.StartTyping(r.Context(), r.PathValue("id"))
	} else {
		a.chat.StopTyping(r.PathValue("id"))
	}
	w.WriteHeader(http.StatusNoContent)
}

// StatusHandler reports the delivery transport state so the UI can
// show a "disconnected, refresh manually" banner.
func (a *API) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"delivery": string(a.channel.Status())})
}

// Marketplace handlers.

func (a *API) ListingsHandler(w http.ResponseWriter, r *http.Request) {
	listings, err := a.market.Listings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, listings)
}

func (a *API) ListingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid listing id", http.StatusBadRequest)
		return
	}
	listing, err := a.market.Listing(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	description, err := a.market.RenderDescription(listing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct {
		models.Listing
		DescriptionHTML string  `json:"descriptionHtml"`
		AverageRating   float64 `json:"averageRating"`
	}{
		Listing:         listing,
		DescriptionHTML: description,
		AverageRating:   marketplace.AverageRating(listing),
	})
}

func (a *API) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.market.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, categories)
}

func (a *API) UserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.market.User(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, user)
}

func (a *API) AddReviewHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid listing id", http.StatusBadRequest)
		return
	}
	var review models.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.market.AddReview(r.Context(), id, review); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) FavoritesHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := a.market.Favorites()
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, ids)
}

func (a *API) SetFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid listing id", http.StatusBadRequest)
		return
	}
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.market.SetFavorite(r.Context(), id, req.Favorite); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid image id", http.StatusBadRequest)
		return
	}
	data, err := a.market.Image(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", marketplace.ImageMime(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}

// SubscribePushHandler registers a browser web-push subscription.
// The body is stored verbatim; it is the browser's own JSON.
func (a *API) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 16*1024))
	if err != nil || !json.Valid(body) {
		http.Error(w, "Invalid subscription body", http.StatusBadRequest)
		return
	}
	sub := storage.DBPushSubscription{
		ID:           uuid.NewString(),
		Subscription: body,
		CreatedAt:    time.Now().Unix(),
	}
	if err := a.store.SavePushSubscription(sub); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"id": sub.ID})
}

func (a *API) UnsubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeletePushSubscription(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
