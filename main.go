package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"social-poster/approval"
	"social-poster/config"
	"social-poster/database"
	"social-poster/notifier"
	"social-poster/platforms"
	"social-poster/poster"
	"social-poster/scheduler"
	"social-poster/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	problems := config.Validate(cfg)
	for _, p := range problems {
		log.Printf("Config problem: %s", p)
	}
	for _, p := range problems {
		if strings.Contains(p, "missing") {
			log.Fatal("Fix configuration issues before starting")
		}
	}

	db, err := database.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	store := database.NewStore(db)

	dg, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		log.Fatalf("Error creating Discord session: %v", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	channels := platforms.Build(cfg, dg)
	cfg.EnabledChannels = platforms.Names(channels)
	if len(cfg.EnabledChannels) == 0 {
		log.Println("Warning: no publishing channels enabled")
	}
	log.Printf("Enabled channels: %s", strings.Join(cfg.EnabledChannels, ", "))
	if cfg.DryRun {
		log.Println("DRY RUN MODE - no actual posting will occur")
	}

	ntf := notifier.New(dg, cfg)
	orch := approval.NewOrchestrator(store, ntf, cfg)
	dispatcher := poster.NewDispatcher(store, channels, ntf, cfg)

	dg.AddHandler(notifier.InteractionHandler(orch))

	if err := dg.Open(); err != nil {
		log.Fatalf("Error opening Discord connection: %v", err)
	}

	// Items that never got their approval message (crash, send failure)
	// are still pending; re-request on startup.
	requestPendingApprovals(store, orch, dispatcher)

	sched := scheduler.New(dispatcher, store, ntf, cfg)
	if err := sched.Start(); err != nil {
		log.Fatalf("Error starting scheduler: %v", err)
	}

	srv := webhook.NewServer(store, orch, dispatcher, cfg).Start()

	log.Println("Social poster is now running. Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Webhook server shutdown error: %v", err)
	}
	sched.Stop()
	dg.Close()
	db.Close()
	log.Println("Stopped gracefully.")
}

func requestPendingApprovals(store *database.Store, orch *approval.Orchestrator, dispatcher *poster.Dispatcher) {
	pending, err := store.PendingApproval()
	if err != nil {
		log.Printf("Could not scan for pending items: %v", err)
		return
	}
	for _, item := range pending {
		itemID := item.ID
		err := orch.RequestApproval(itemID, dispatcher.Dispatch, func(id int64) {
			log.Printf("Item #%d rejected", id)
		})
		if err != nil {
			log.Printf("Could not re-request approval for item #%d: %v", itemID, err)
		}
	}
	if len(pending) > 0 {
		log.Printf("Re-requested approval for %d pending items", len(pending))
	}
}
