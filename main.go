package main

import (
	"context"
	"errors"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bazarek/internal/canister"
	"bazarek/internal/chat"
	"bazarek/internal/config"
	"bazarek/internal/delivery"
	"bazarek/internal/filestore"
	"bazarek/internal/http"
	"bazarek/internal/marketplace"
	"bazarek/internal/notify"
	"bazarek/internal/storage"
	"bazarek/internal/stubs"
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	files, err := filestore.NewLocalFileStore(cfg.ImageCache)
	if err != nil {
		return err
	}

	client := canister.NewClient(cfg.CanisterURL, cfg.Principal)

	store := chat.NewStore(cfg.Principal)

	// Seed the store from the local cache so the UI has history
	// before the first backend round trip.
	cached, err := bbStorage.ListConversations()
	if err != nil {
		return err
	}
	for _, conv := range cached {
		store.UpsertConversation(conv)
	}
	if cfg.SampleData {
		for _, conv := range stubs.SampleConversations(cfg.Principal) {
			if _, ok := store.Get(conv.ID); !ok {
				store.UpsertConversation(conv)
			}
		}
	}

	chatService := chat.NewService(store, client, cfg.Principal)
	market := marketplace.NewService(ctx, client, files, bbStorage)

	var channel delivery.Channel
	if cfg.WSGatewayURL != "" {
		channel = delivery.NewPushChannel(cfg.WSGatewayURL, chatService)
	} else {
		channel = delivery.NewPullChannel(client, store, cfg.PollInterval)
	}

	apiServer := http.NewAPIServer(chatService, market, channel, bbStorage, cfg.APIAddr)
	persister := storage.NewPersister(store, bbStorage)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := channel.Run(gCtx)
		if errors.Is(err, delivery.ErrReconnectExhausted) {
			// The UI sees the disconnected status and falls back to
			// manual refresh; the rest of the engine keeps working.
			log.Printf("push delivery gave up reconnecting: %v", err)
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		if err := persister.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	notifyCfg := notify.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubscriber,
	}
	if notifyCfg.Enabled() {
		notifier := notify.New(notifyCfg, store, bbStorage, cfg.Principal)
		g.Go(func() error {
			if err := notifier.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// Initial sync; the poll loop and pushes take over from here.
	g.Go(func() error {
		syncCtx, cancel := context.WithTimeout(gCtx, 30*time.Second)
		defer cancel()
		if err := chatService.SyncConversations(syncCtx); err != nil {
			log.Printf("initial conversation sync failed: %v", err)
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
