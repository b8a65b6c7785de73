package sqlite

import (
	"context"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.DialectSQLite,
		func(ctx context.Context, params models.ConnectionParams, opts datasource.Options) (datasource.Adapter, error) {
			return New(ctx, params, opts)
		})
}
