package bot

import (
	"context"
	"time"

	"sharebot/internal/broadcast"
	"sharebot/internal/delivery"
	"sharebot/internal/session"
	kit "sharebot/internal/transport"
	"sharebot/internal/vault"
)

// Vault is the batch lifecycle surface the commands drive.
type Vault interface {
	Stage(ctx context.Context, owner int64, it vault.Item, opts ...vault.StageOption) (int, error)
	CountStaged(ctx context.Context, owner int64) (int, error)
	Cancel(ctx context.Context, owner int64) (int, error)
	Commit(ctx context.Context, owner int64) (vault.CommitResult, error)
	DeleteBatch(ctx context.Context, code string, owner int64) (int, error)
	Owns(ctx context.Context, code string, owner int64) (bool, error)
	ListBatches(ctx context.Context, owner int64, limit int) ([]vault.BatchSummary, error)
	Stats(ctx context.Context) (vault.Stats, error)
	UpsertConsumer(ctx context.Context, c vault.Consumer) error
}

type Links interface {
	FulfillLink(ctx context.Context, code string, dest kit.ChatTarget) (delivery.Report, error)
}

type Settings interface {
	Global(ctx context.Context) (vault.Settings, error)
	GetEffective(ctx context.Context, code string) (vault.Settings, error)
	SetGlobal(ctx context.Context, p vault.Patch) (vault.Settings, error)
	SetForCode(ctx context.Context, code string, p vault.Patch) (vault.Settings, error)
}

type Broadcaster interface {
	Draft(ctx context.Context, requester int64, replyTo kit.ChatTarget, source kit.MessageRef) (broadcast.Decision, error)
	Confirm(ctx context.Context, requester int64, replyTo kit.ChatTarget) (broadcast.Decision, error)
	Cancel(ctx context.Context, requester int64) (bool, error)
}

// Awaiting tracks the settings field an owner is about to type.
type Awaiting interface {
	SetAwaiting(ctx context.Context, owner int64, a session.AwaitingInput, ttl time.Duration) error
	Awaiting(ctx context.Context, owner int64) (session.AwaitingInput, bool, error)
	ClearAwaiting(ctx context.Context, owner int64) error
}
