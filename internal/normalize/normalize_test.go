package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wareline/arrivalbox/internal/models"
)

func TestStatus_VocabularyClosure(t *testing.T) {
	known := map[string]string{
		"announced":   models.ArrivalStatusNotShipped,
		"not_shipped": models.ArrivalStatusNotShipped,
		"NOT-SHIPPED": models.ArrivalStatusNotShipped,
		" In Transit ": models.ArrivalStatusShipped,
		"in_transit":  models.ArrivalStatusShipped,
		"shipped":     models.ArrivalStatusShipped,
		"ARRIVED":     models.ArrivalStatusArrived,
	}
	for in, want := range known {
		require.Equal(t, want, Status(in), "input %q", in)
	}

	// Неизвестные значения не отклоняются, а падают в not_shipped.
	for _, in := range []string{"", "delayed", "wat", "42", "arrived!"} {
		got := Status(in)
		require.Contains(t, []string{
			models.ArrivalStatusNotShipped,
			models.ArrivalStatusShipped,
			models.ArrivalStatusArrived,
		}, got)
	}
	require.Equal(t, models.ArrivalStatusNotShipped, Status("delayed"))
}

func TestRecord_FieldAliases(t *testing.T) {
	a := Record(map[string]any{
		"id":             float64(7),
		"supplier_name":  "Acme",
		"transport_type": "Container",
		"place":          "Gate 4",
		"assignee_name":  "Ivanov",
		"goods_cost":     "120.50",
		"freightCost":    float64(30),
		"pickup_date":    "2020-01-01",
		"status":         "announced",
	})

	require.Equal(t, int64(7), a.ID)
	require.Equal(t, "Acme", a.Supplier)
	require.Equal(t, "container", a.TransportType)
	require.Equal(t, "Gate 4", a.Location)
	require.Equal(t, "Ivanov", a.Responsible)
	require.Equal(t, 120.50, a.GoodsCost)
	require.Equal(t, 30.0, a.FreightCost)
	require.NotNil(t, a.PickupDate)
	require.Equal(t, models.ArrivalStatusNotShipped, a.Status)
}

func TestRecord_NumericCoercionAndDefaults(t *testing.T) {
	a := Record(map[string]any{
		"id":         "oops",
		"goods_cost": "not-a-number",
		"eta":        "not-a-date",
	})
	require.Zero(t, a.ID)
	require.Zero(t, a.GoodsCost)
	require.Nil(t, a.ETA)
	require.Equal(t, models.ArrivalStatusNotShipped, a.Status)
	require.Empty(t, a.Supplier)

	// Пустой объект тоже не ошибка.
	empty := Record(map[string]any{})
	require.Zero(t, empty.ID)
	require.Zero(t, empty.FilesCount)
}

func TestRecord_AssigneeIDAlias(t *testing.T) {
	a := Record(map[string]any{"assignee_id": float64(33)})
	require.Equal(t, "33", a.Responsible)
}

func TestRecord_FilesCountResolution(t *testing.T) {
	// Явный счётчик выигрывает.
	a := Record(map[string]any{"files_count": float64(5)})
	require.Equal(t, 5, a.FilesCount)

	// Иначе длина массива файлов.
	a = Record(map[string]any{
		"files": []any{
			map[string]any{"id": float64(1), "filename": "cmr.pdf", "size": float64(100)},
			map[string]any{"id": float64(2), "file_name": "invoice.pdf"},
		},
	})
	require.Equal(t, 2, a.FilesCount)
	require.Len(t, a.Files, 2)
	require.Equal(t, "cmr.pdf", a.Files[0].Filename)
	require.Equal(t, "invoice.pdf", a.Files[1].Filename)

	// filesCount не может быть меньше известной длины списка.
	a = Record(map[string]any{
		"files_count": float64(1),
		"attachments": []any{
			map[string]any{"id": float64(1)},
			map[string]any{"id": float64(2)},
		},
	})
	require.Equal(t, 2, a.FilesCount)

	require.Zero(t, Record(map[string]any{}).FilesCount)
}

func TestTransportType(t *testing.T) {
	require.Equal(t, "truck", TransportType("Truck"))
	require.Equal(t, "other", TransportType("hovercraft"))
	require.Equal(t, "", TransportType(""))
}

func TestCanonicalize(t *testing.T) {
	known := []string{"Main Warehouse", "Gate 4"}
	require.Equal(t, "Main Warehouse", Canonicalize("main warehouse", known))
	require.Equal(t, "Gate 4", Canonicalize(" gate 4 ", known))
	require.Equal(t, "Dock 9", Canonicalize("Dock 9", known))
	require.Equal(t, "", Canonicalize("  ", known))
}

func TestRecords_SkipsNil(t *testing.T) {
	out := Records([]map[string]any{{"id": float64(1)}, nil, {"id": float64(2)}})
	require.Len(t, out, 2)
}
