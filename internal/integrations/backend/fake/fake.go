package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wareline/arrivalbox/internal/models"
)

// FakeClient — заглушка бэкенда для локальной разработки и тестов,
// пока настоящий API недоступен. Хранит сырые объекты в памяти и
// умышленно отдаёт их в "историческом" словаре полей (snake_case,
// announced/in_transit), чтобы прогонять нормализацию.
type FakeClient struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]map[string]any
}

func New() *FakeClient {
	f := &FakeClient{
		nextID: 1,
		items:  map[int64]map[string]any{},
	}
	f.seed()
	return f
}

func (f *FakeClient) seed() {
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	f.put(map[string]any{
		"supplier_name":  "Acme Metals",
		"transport_type": "truck",
		"status":         "announced",
		"pickup_date":    yesterday,
		"place":          "Gate 4",
	})
	f.put(map[string]any{
		"supplier_name":  "Baltic Freight",
		"transport_type": "container",
		"status":         "in_transit",
		"assignee_name":  "Ivanov",
	})
}

func (f *FakeClient) put(raw map[string]any) int64 {
	id := f.nextID
	f.nextID++
	raw["id"] = float64(id)
	f.items[id] = raw
	return id
}

func (f *FakeClient) ListArrivals(ctx context.Context) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, clone(it))
	}
	return out, nil
}

func (f *FakeClient) GetArrival(ctx context.Context, id int64) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("arrival %d not found", id)
	}
	return clone(it), nil
}

func (f *FakeClient) CreateArrival(ctx context.Context, input models.ArrivalCreateInput) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := map[string]any{
		"supplier_name":  input.Supplier,
		"carrier_name":   input.Carrier,
		"driver_name":    input.Driver,
		"plate_number":   input.Plate,
		"transport_type": input.TransportType,
		"status":         "announced",
		"place":          input.Location,
		"assignee_name":  input.Responsible,
		"note":           input.Note,
		"goods_cost":     input.GoodsCost,
		"freight_cost":   input.FreightCost,
	}
	if input.PickupDate != nil {
		raw["pickup_date"] = input.PickupDate.Format("2006-01-02")
	}
	if input.ETA != nil {
		raw["eta"] = input.ETA.Format("2006-01-02")
	}
	id := f.put(raw)
	return clone(f.items[id]), nil
}

func (f *FakeClient) UpdateArrival(ctx context.Context, id int64, patch map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("arrival %d not found", id)
	}
	for k, v := range patch {
		it[k] = v
	}
	return clone(it), nil
}

func (f *FakeClient) DeleteArrival(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return fmt.Errorf("arrival %d not found", id)
	}
	delete(f.items, id)
	return nil
}

func (f *FakeClient) ListFiles(ctx context.Context, id int64) ([]map[string]any, error) {
	return nil, nil
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
