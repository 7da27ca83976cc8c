package mesh

import (
	"log/slog"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// StartBroker runs an embedded MQTT broker so a standalone mesh needs no
// external infrastructure: one node embeds the broker and its peers point
// their broker URL at it. Auth is allow-all; the mesh trusts its transport no
// further than payload contents anyway.
func StartBroker(addr string) (*mqttserver.Server, error) {
	server := mqttserver.New(&mqttserver.Options{
		InlineClient: false,
		Logger:       slog.Default(),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "mesh-tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, err
	}

	go func() {
		if err := server.Serve(); err != nil {
			slog.Error("embedded broker stopped", "error", err)
		}
	}()
	slog.Info("embedded broker listening", "address", addr)
	return server, nil
}
