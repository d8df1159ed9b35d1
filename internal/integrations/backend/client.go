package backend

import (
	"context"

	"github.com/wareline/arrivalbox/internal/models"
)

// Client — upstream REST API прибытий. Ответы отдаются как сырые map'ы:
// словарь полей у бэкенда исторически плавает, приведение к канонической
// форме делает internal/normalize.
type Client interface {
	ListArrivals(ctx context.Context) ([]map[string]any, error)
	GetArrival(ctx context.Context, id int64) (map[string]any, error)
	CreateArrival(ctx context.Context, input models.ArrivalCreateInput) (map[string]any, error)
	UpdateArrival(ctx context.Context, id int64, patch map[string]any) (map[string]any, error)
	DeleteArrival(ctx context.Context, id int64) error
	ListFiles(ctx context.Context, id int64) ([]map[string]any, error)
}
