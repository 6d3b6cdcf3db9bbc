package ports

import (
	"context"

	"github.com/zekoder/zecore/modules/record/domain/types"
)

// RecordStore is the capability surface the Manager needs from the relational
// backend. Every call runs tenant-scoped: implementations set the session
// variables for the supplied identity before any other statement.
type RecordStore interface {
	// SelectWhere fetches all rows matching the equality constraints, in the
	// store's natural order.
	SelectWhere(ctx context.Context, identity types.Identity, desc types.Descriptor, where types.Record) ([]types.Record, error)
	// GetWhere fetches the first row matching the equality constraints.
	GetWhere(ctx context.Context, identity types.Identity, desc types.Descriptor, where types.Record) (types.Record, bool, error)
	Insert(ctx context.Context, identity types.Identity, desc types.Descriptor, data types.Record) (types.Record, error)
	// Update patches the supplied columns on the row with the given id and
	// returns the resulting row.
	Update(ctx context.Context, identity types.Identity, desc types.Descriptor, id string, data types.Record) (types.Record, bool, error)
	Delete(ctx context.Context, identity types.Identity, desc types.Descriptor, id string) (int64, error)
	DeleteMany(ctx context.Context, identity types.Identity, desc types.Descriptor, ids []string) (int64, error)
}

// Hooks are the optional lifecycle callbacks attached to a Manager. Nil
// members get the default behavior: pre-save/pre-update pass NewData through,
// pre-delete allows, post hooks do nothing. Pre-phase errors abort the
// operation before persistence; post-phase errors are logged and swallowed.
type Hooks struct {
	PreSave    func(ctx context.Context, p *types.SignalPayload) (types.Record, error)
	PostSave   func(ctx context.Context, p *types.SignalPayload) error
	PreUpdate  func(ctx context.Context, p *types.SignalPayload) (types.Record, error)
	PostUpdate func(ctx context.Context, p *types.SignalPayload) error
	PreDelete  func(ctx context.Context, p *types.SignalPayload) (bool, error)
	PostDelete func(ctx context.Context, p *types.SignalPayload) error
}

// IdentityVerifier turns a bearer credential into a verified identity. The
// engine never calls it; the route layer does, then hands the identity in.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (types.Identity, error)
}

// Notifier is the notification collaborator reachable from hook
// implementations.
type Notifier interface {
	CreateNotification(ctx context.Context, recipients []string, template string, data map[string]any) (string, error)
	SendNotification(ctx context.Context, notificationID string) error
}

// SecretCipher encrypts secret field values through the external secret
// service.
type SecretCipher interface {
	EncryptString(ctx context.Context, value string) (string, error)
}
