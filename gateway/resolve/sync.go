package resolve

import (
	"context"

	"github.com/effective-security/xlog"

	"github.com/fitpulse/gateway/pkg/userclient"
	"github.com/fitpulse/gateway/xhttp/identity"
)

// NewUserSyncer adapts the user service client into a Syncer: it
// validates the caller and registers a profile on first sight. Failures
// are logged and swallowed, a sync outcome never affects a request.
func NewUserSyncer(users userclient.Provider) Syncer {
	return func(ctx context.Context, id identity.Identity) {
		defer func() {
			if r := recover(); r != nil {
				logger.ContextKV(ctx, xlog.ERROR,
					"reason", "user_sync_panic",
					"subject", id.Subject(),
					"err", r)
			}
		}()

		err := users.Ensure(ctx, &userclient.User{
			ExternalID: id.Subject(),
			Email:      id.Email(),
			GivenName:  id.GivenName(),
			FamilyName: id.FamilyName(),
		})
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "user_sync",
				"subject", id.Subject(),
				"err", err.Error())
		}
	}
}
