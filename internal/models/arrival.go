package models

import "time"

// Канонический словарь статусов. Бэкенд исторически присылает и другие
// ("announced", "in_transit", ...) — см. internal/normalize.
const (
	ArrivalStatusNotShipped = "not_shipped"
	ArrivalStatusShipped    = "shipped"
	ArrivalStatusArrived    = "arrived"
)

// StatusLabel возвращает человекочитаемую метку статуса для уведомлений.
func StatusLabel(status string) string {
	switch status {
	case ArrivalStatusNotShipped:
		return "Not shipped"
	case ArrivalStatusShipped:
		return "In transit"
	case ArrivalStatusArrived:
		return "Arrived"
	}
	return status
}

type Arrival struct {
	ID            int64      `json:"id"`
	Supplier      string     `json:"supplier"`
	Carrier       string     `json:"carrier"`
	Driver        string     `json:"driver"`
	Plate         string     `json:"plate"`
	PickupDate    *time.Time `json:"pickupDate,omitempty"`
	ETA           *time.Time `json:"eta,omitempty"`
	ArrivedAt     *time.Time `json:"arrivedAt,omitempty"`
	TransportType string     `json:"transportType"`
	Status        string     `json:"status"`
	GoodsCost     float64    `json:"goodsCost"`
	FreightCost   float64    `json:"freightCost"`
	Location      string     `json:"location"`
	Responsible   string     `json:"responsible"`
	Note          string     `json:"note"`
	Files         []FileMeta `json:"files,omitempty"`
	FilesCount    int        `json:"filesCount"`
}

type FileMeta struct {
	ID         int64      `json:"id"`
	Filename   string     `json:"filename"`
	URL        string     `json:"url"`
	UploadedAt *time.Time `json:"uploadedAt,omitempty"`
	Size       int64      `json:"size"`
}

type ArrivalCreateInput struct {
	Supplier      string     `json:"supplier"`
	Carrier       string     `json:"carrier"`
	Driver        string     `json:"driver"`
	Plate         string     `json:"plate"`
	PickupDate    *time.Time `json:"pickupDate,omitempty"`
	ETA           *time.Time `json:"eta,omitempty"`
	TransportType string     `json:"transportType"`
	GoodsCost     float64    `json:"goodsCost"`
	FreightCost   float64    `json:"freightCost"`
	Location      string     `json:"location"`
	Responsible   string     `json:"responsible"`
	Note          string     `json:"note"`
}
