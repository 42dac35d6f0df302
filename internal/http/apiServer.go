package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"bazarek/internal/api"
	"bazarek/internal/chat"
	"bazarek/internal/delivery"
	"bazarek/internal/marketplace"
	"bazarek/internal/storage"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(chatService *chat.Service, market *marketplace.Service, channel delivery.Channel, store *storage.BboltStorage, addr string) *APIServer {
	handlers := api.New(chatService, market, channel, store)

	mux := http.NewServeMux()

	// Conversation endpoints
	mux.HandleFunc("GET /api/conversations", handlers.ConversationsHandler)
	mux.HandleFunc("POST /api/conversations", handlers.CreateConversationHandler)
	mux.HandleFunc("POST /api/conversations/{id}/open", handlers.OpenConversationHandler)
	mux.HandleFunc("POST /api/conversations/{id}/close", handlers.CloseConversationHandler)
	mux.HandleFunc("POST /api/conversations/{id}/messages", handlers.SendMessageHandler)
	mux.HandleFunc("POST /api/conversations/{id}/refresh", handlers.RefreshMessagesHandler)
	mux.HandleFunc("POST /api/conversations/{id}/typing", handlers.TypingHandler)
	mux.HandleFunc("GET /api/status", handlers.StatusHandler)

	// Marketplace endpoints
	mux.HandleFunc("GET /api/listings", handlers.ListingsHandler)
	mux.HandleFunc("GET /api/listings/{id}", handlers.ListingHandler)
	mux.HandleFunc("POST /api/listings/{id}/reviews", handlers.AddReviewHandler)
	mux.HandleFunc("POST /api/listings/{id}/favorite", handlers.SetFavoriteHandler)
	mux.HandleFunc("GET /api/favorites", handlers.FavoritesHandler)
	mux.HandleFunc("GET /api/categories", handlers.CategoriesHandler)
	mux.HandleFunc("GET /api/users/{id}", handlers.UserHandler)
	mux.HandleFunc("GET /api/images/{id}", handlers.GetImageHandler)

	// Push subscriptions
	mux.HandleFunc("POST /api/push-subscriptions", handlers.SubscribePushHandler)
	mux.HandleFunc("DELETE /api/push-subscriptions/{id}", handlers.UnsubscribePushHandler)

	// Store update stream
	mux.HandleFunc("/api/events", handlers.EventsHandler)

	if addr == "" {
		addr = "localhost:8090"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("API server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
