package http

import (
	"context"

	"featcli/pkg/contracts/domain"
)

// OperationServiceInterface defines the operations the handler needs from
// the service layer. Start accepts a run and returns immediately;
// execution progress flows over the WebSocket hub.
type OperationServiceInterface interface {
	Start(ctx context.Context, cfg domain.OperationConfig) (*domain.OperationResponse, error)
	GetOperation(ctx context.Context, id string) (domain.Operation, error)
	ListOperations(ctx context.Context) []domain.Operation
	Cancel(ctx context.Context, id string) error
	Active() (string, bool)
}
