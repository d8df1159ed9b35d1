// Package normalize приводит сырые ответы бэкенда "прибытий" к одной
// канонической форме. Исторически поля и словарь статусов у бэкенда
// менялись (snake_case/camelCase, announced/in_transit/...), поэтому
// нормализация терпима к любым алиасам и никогда не отбрасывает запись.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/wareline/arrivalbox/internal/models"
)

// Алиасы источников по целевым полям. Первый присутствующий непустой выигрывает.
var (
	aliasID            = []string{"id", "arrival_id", "arrivalId"}
	aliasSupplier      = []string{"supplier", "supplier_name", "supplierName"}
	aliasCarrier       = []string{"carrier", "carrier_name", "carrierName"}
	aliasDriver        = []string{"driver", "driver_name", "driverName"}
	aliasPlate         = []string{"plate", "plate_number", "plateNumber"}
	aliasPickupDate    = []string{"pickupDate", "pickup_date", "pickup"}
	aliasETA           = []string{"eta", "eta_date", "etaDate"}
	aliasArrivedAt     = []string{"arrivedAt", "arrived_at", "arrival_date"}
	aliasTransportType = []string{"transportType", "transport_type", "type"}
	aliasStatus        = []string{"status", "state"}
	aliasGoodsCost     = []string{"goodsCost", "goods_cost"}
	aliasFreightCost   = []string{"freightCost", "freight_cost"}
	aliasLocation      = []string{"location", "place"}
	aliasResponsible   = []string{"responsible", "assignee_name", "assignee", "assignee_id"}
	aliasNote          = []string{"note", "comment"}
	aliasFilesCount    = []string{"filesCount", "files_count", "file_count", "attachments_count"}
	aliasFiles         = []string{"files", "attachments"}
)

// Status сводит произвольную строку статуса к каноническому словарю.
// Регистр и пробелы не различаются, "-" и "_" взаимозаменяемы.
// Неизвестное значение даёт not_shipped (fail-open), запись не отклоняется.
func Status(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")

	switch s {
	case "announced", "not_shipped":
		return models.ArrivalStatusNotShipped
	case "in_transit", "shipped":
		return models.ArrivalStatusShipped
	case "arrived":
		return models.ArrivalStatusArrived
	}
	return models.ArrivalStatusNotShipped
}

// Record отображает один сырой объект бэкенда в Arrival.
// Чистая функция: отсутствующие и кривые поля дают пустые/нулевые значения,
// ошибок не бывает.
func Record(raw map[string]any) models.Arrival {
	a := models.Arrival{
		ID:            firstInt(raw, aliasID),
		Supplier:      firstString(raw, aliasSupplier),
		Carrier:       firstString(raw, aliasCarrier),
		Driver:        firstString(raw, aliasDriver),
		Plate:         firstString(raw, aliasPlate),
		PickupDate:    firstTime(raw, aliasPickupDate),
		ETA:           firstTime(raw, aliasETA),
		ArrivedAt:     firstTime(raw, aliasArrivedAt),
		TransportType: TransportType(firstString(raw, aliasTransportType)),
		Status:        Status(firstString(raw, aliasStatus)),
		GoodsCost:     firstNumber(raw, aliasGoodsCost),
		FreightCost:   firstNumber(raw, aliasFreightCost),
		Location:      firstString(raw, aliasLocation),
		Responsible:   firstString(raw, aliasResponsible),
		Note:          firstString(raw, aliasNote),
	}

	a.Files = files(raw)
	a.FilesCount = int(firstNumber(raw, aliasFilesCount))
	// Инвариант: filesCount не меньше длины известного списка файлов.
	if len(a.Files) > a.FilesCount {
		a.FilesCount = len(a.Files)
	}
	return a
}

// Records нормализует пачку. nil-элементы пропускаются.
func Records(raws []map[string]any) []models.Arrival {
	out := make([]models.Arrival, 0, len(raws))
	for _, r := range raws {
		if r == nil {
			continue
		}
		out = append(out, Record(r))
	}
	return out
}

var transportTypes = map[string]struct{}{
	"truck": {}, "container": {}, "van": {}, "train": {}, "other": {},
}

func TransportType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	if s == "" {
		return ""
	}
	if _, ok := transportTypes[s]; ok {
		return s
	}
	return "other"
}

// Canonicalize подбирает каноническое написание значения по известному
// списку (склады, ответственные). Сравнение без регистра; незнакомое
// значение остаётся как есть.
func Canonicalize(value string, known []string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	for _, k := range known {
		if strings.EqualFold(v, k) {
			return k
		}
	}
	return v
}

func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			// assignee_id и подобные числовые алиасы.
			return strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			return strconv.Itoa(t)
		}
	}
	return ""
}

func firstNumber(raw map[string]any, keys []string) float64 {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			if t < 0 {
				return 0
			}
			return t
		case int:
			if t < 0 {
				return 0
			}
			return float64(t)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil && f >= 0 {
				return f
			}
		}
	}
	return 0
}

func firstInt(raw map[string]any, keys []string) int64 {
	return int64(firstNumber(raw, keys))
}

// Бэкенд присылал даты в нескольких форматах, поддерживаем все виденные.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
}

func firstTime(raw map[string]any, keys []string) *time.Time {
	s := firstString(raw, keys)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// File нормализует метаданные одного файла.
func File(m map[string]any) models.FileMeta {
	return models.FileMeta{
		ID:         firstInt(m, []string{"id", "file_id"}),
		Filename:   firstString(m, []string{"filename", "name", "file_name"}),
		URL:        firstString(m, []string{"url", "link", "file_url"}),
		UploadedAt: firstTime(m, []string{"uploadedAt", "uploaded_at", "created_at"}),
		Size:       firstInt(m, []string{"size", "file_size"}),
	}
}

func files(raw map[string]any) []models.FileMeta {
	for _, k := range aliasFiles {
		arr, ok := raw[k].([]any)
		if !ok {
			continue
		}
		out := make([]models.FileMeta, 0, len(arr))
		for _, it := range arr {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, File(m))
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
