package tele

import (
	"context"

	tele_config "github.com/temoto/twibridge/internal/tele/config"
	"github.com/temoto/twibridge/log2"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* deliver within network timeout or return false, caller keeps message for later
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback) error
	SendTelemetry(payload []byte) bool
	SendRelays(payload []byte) bool
	SendCommandResponse(payload []byte) bool
	Close()
}

type CommandCallback func(context.Context, []byte)
