package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wareline/arrivalbox/internal/models"
)

func TestFakeClient_CRUD(t *testing.T) {
	ctx := context.Background()
	f := New()

	list, err := f.ListArrivals(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	created, err := f.CreateArrival(ctx, models.ArrivalCreateInput{Supplier: "New Co"})
	require.NoError(t, err)
	id := int64(created["id"].(float64))
	require.NotZero(t, id)

	got, err := f.GetArrival(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "New Co", got["supplier_name"])

	upd, err := f.UpdateArrival(ctx, id, map[string]any{"status": "arrived"})
	require.NoError(t, err)
	require.Equal(t, "arrived", upd["status"])

	require.NoError(t, f.DeleteArrival(ctx, id))
	_, err = f.GetArrival(ctx, id)
	require.Error(t, err)
	require.Error(t, f.DeleteArrival(ctx, id))
}
