package http

import (
	"context"

	"featcli/internal/features"
	"featcli/internal/services"
)

// FeatureServiceInterface defines the read-side operations for the derived
// feature table. All methods serve the exported artifacts; an empty symbol
// selects the configured default.
type FeatureServiceInterface interface {
	GetFeatures(ctx context.Context, symbol string, page, pageSize int) (*services.FeaturePage, error)
	GetColumns(ctx context.Context, symbol string) (*services.FeatureColumns, error)
	GetDiagnostics(ctx context.Context, symbol string) (*features.Diagnostics, error)
}
