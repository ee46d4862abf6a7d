package mqttpub

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

const appID = "approach.warning"

// DefaultClientID returns an MQTT client ID that is stable across restarts
// on the same machine without exposing the raw machine ID. When no machine
// ID is available a random one is used.
func DefaultClientID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil || len(id) < 12 {
		return "approach-warning-" + uuid.NewString()[:8]
	}
	return "approach-warning-" + id[:12]
}
