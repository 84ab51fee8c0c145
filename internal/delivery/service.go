package delivery

import (
	"context"

	kit "sharebot/internal/transport"
	"sharebot/internal/vault"
)

// Retriever resolves a code to its batch.
type Retriever interface {
	Retrieve(ctx context.Context, code string) (vault.Batch, error)
}

// Service composes retrieve, group and deliver.
type Service struct {
	vault  Retriever
	engine *Engine
}

func NewService(r Retriever, e *Engine) *Service {
	return &Service{vault: r, engine: e}
}

// FulfillLink delivers the batch behind code to dest. It returns vault.ErrNotFound
// for unknown codes; cluster failures are in the report.
func (s *Service) FulfillLink(ctx context.Context, code string, dest kit.ChatTarget) (Report, error) {
	b, err := s.vault.Retrieve(ctx, code)
	if err != nil {
		return Report{}, err
	}
	return s.engine.Deliver(ctx, vault.Group(b.Items), dest, b.Settings.ProtectContent)
}
