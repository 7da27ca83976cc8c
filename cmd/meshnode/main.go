package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/MatusOllah/slogcolor"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/xid"

	"github.com/skillmesh/mesh-node/pkg/config"
	"github.com/skillmesh/mesh-node/pkg/disclosure"
	"github.com/skillmesh/mesh-node/pkg/gossip"
	"github.com/skillmesh/mesh-node/pkg/mesh"
	"github.com/skillmesh/mesh-node/pkg/models"
	"github.com/skillmesh/mesh-node/pkg/presence"
	"github.com/skillmesh/mesh-node/pkg/routes"
	"github.com/skillmesh/mesh-node/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml)")
	flag.Parse()

	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, slogcolor.DefaultOptions)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("error loading configuration", "error", err)
		os.Exit(1)
	}

	persister := openPersister(cfg)

	profile, err := persister.LoadProfile()
	if err != nil {
		slog.Error("error loading profile", "error", err)
		os.Exit(1)
	}
	if profile == nil {
		profile = &models.Profile{
			ID:           "peer-" + xid.New().String(),
			Name:         cfg.Profile.Name,
			Profession:   cfg.Profile.Profession,
			Location:     cfg.Profile.Location,
			MobileNumber: cfg.Profile.MobileNumber,
			Rating:       5.0,
			IsAvailable:  true,
		}
		if err := persister.SaveProfile(profile); err != nil {
			slog.Error("error saving initial profile", "error", err)
			os.Exit(1)
		}
		slog.Info("created local profile", "peer_id", profile.ID, "name", profile.Name)
	}

	replica := store.NewReplica(persister)
	if err := replica.Load(); err != nil {
		slog.Error("error loading replica from storage", "error", err)
		os.Exit(1)
	}
	slog.Info("replica loaded", "tasks", replica.Len())

	if cfg.Mesh.EmbeddedBroker {
		if _, err := mesh.StartBroker(cfg.Mesh.BrokerListenAddr); err != nil {
			slog.Error("error starting embedded broker", "error", err)
			os.Exit(1)
		}
	}

	clientID := cfg.Mesh.ClientID
	if clientID == "" {
		clientID = profile.ID
	}
	transport, err := mesh.NewMQTT(cfg.Mesh.BrokerURL, clientID)
	if err != nil {
		slog.Error("error connecting to mesh broker", "error", err)
		os.Exit(1)
	}

	tracker := presence.New(profile.ID, cfg.Mesh.LivenessTimeout, presence.WithDialer(transport.Dial))
	notifier := routes.NewTaskNotifier()

	dispatcher := gossip.New(gossip.Options{
		Transport: transport,
		Replica:   replica,
		Presence:  tracker,
		Contacts:  disclosure.New(profile.ID),
		Profile:   profile,
		Persister: persister,
		Settings:  cfg.Mesh,
		Notifier:  notifier,
	})
	if err := dispatcher.Start(); err != nil {
		slog.Error("error starting dispatcher", "error", err)
		os.Exit(1)
	}
	slog.Info("mesh node running", "peer_id", profile.ID, "topic", cfg.Mesh.Topic, "listen", cfg.ListenAddr)

	router := routes.NewWebRouter(dispatcher, notifier)
	if err := router.Initialize(cfg.ListenAddr); err != nil {
		slog.Error("http server stopped", "error", err)
		os.Exit(1)
	}
}

func openPersister(cfg *config.Configuration) store.Persister {
	switch cfg.Database.Driver {
	case "memory":
		slog.Warn("using in-memory storage, state is lost on restart")
		return store.NewMemory()
	case "", "postgres":
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			slog.Error("error connecting to database", "error", err)
			os.Exit(1)
		}
		if err := store.Migrate(db); err != nil {
			slog.Error("error running migrations", "error", err)
			os.Exit(1)
		}
		return store.NewPostgres(db)
	default:
		slog.Error("unknown database driver", "driver", cfg.Database.Driver)
		os.Exit(1)
		return nil
	}
}
