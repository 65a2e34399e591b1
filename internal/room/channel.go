package room

import (
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/campusdesk/desk/internal/core"
	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/types"
)

// RealtimeChannels returns a factory producing STOMP channels configured
// from config.
func RealtimeChannels(config core.Config, dialer realtime.Dialer, tokens oauth2.TokenSource, logger *slog.Logger) ChannelFactory {
	return func(threadID int64, handler func(types.Message), onState func(realtime.State)) (Channel, error) {
		return realtime.New(realtime.Options{
			ThreadID:        threadID,
			Dialer:          dialer,
			Tokens:          tokens,
			SubscribePrefix: config.SubscribePrefix,
			SendDestination: config.SendDestination,
			ReconnectDelay:  config.ReconnectDelay,
			Handler:         handler,
			OnState:         onState,
			Logger:          logger,
		})
	}
}
