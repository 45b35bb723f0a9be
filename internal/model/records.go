package model

import "time"

// Record is one row of a collection. Every record shape carries the time the
// backend last updated it.
type Record interface {
	LastUpdated() time.Time
}

// ChameleonInventory is the chameleon colour stock held at one plant.
type ChameleonInventory struct {
	PlantName     string    `json:"plant_name"`
	A1010         float64   `json:"a1010"`
	A1070         float64   `json:"a1070"`
	A550          float64   `json:"a550"`
	A875          float64   `json:"a875"`
	A8090         float64   `json:"a8090"`
	LastRinseDate *string   `json:"last_rinse_date,omitempty"`
	LastRinseTime *string   `json:"last_rinse_time,omitempty"`
	UpdatedAt     *string   `json:"updated_at,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated"`
}

// LastUpdated implements Record.
func (r ChameleonInventory) LastUpdated() time.Time { return r.LastUpdatedAt }

func decodeChameleonInventory(f fields, fallback time.Time) (Record, error) {
	r := fieldReader{f: f}
	rec := ChameleonInventory{
		PlantName:     r.string("plant_name"),
		A1010:         r.float("a1010"),
		A1070:         r.float("a1070"),
		A550:          r.float("a550"),
		A875:          r.float("a875"),
		A8090:         r.float("a8090"),
		LastRinseDate: f.optString("last_rinse_date"),
		LastRinseTime: f.optString("last_rinse_time"),
		UpdatedAt:     f.optString("updated_at"),
		LastUpdatedAt: f.timestamp("last_updated", fallback),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// AdmixInventory is the stock of one admixture product at one plant.
type AdmixInventory struct {
	PlantName     string    `json:"plant_name"`
	ProductName   string    `json:"product_name"`
	CurrentStock  float64   `json:"current_stock"`
	Unit          string    `json:"unit"`
	ReorderPoint  *float64  `json:"reorder_point,omitempty"`
	UpdatedAt     *string   `json:"updated_at,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated"`
}

// LastUpdated implements Record.
func (r AdmixInventory) LastUpdated() time.Time { return r.LastUpdatedAt }

func decodeAdmixInventory(f fields, fallback time.Time) (Record, error) {
	r := fieldReader{f: f}
	rec := AdmixInventory{
		PlantName:     r.string("plant_name"),
		ProductName:   r.string("product_name"),
		CurrentStock:  r.float("current_stock"),
		Unit:          r.string("unit"),
		ReorderPoint:  f.optFloat("reorder_point"),
		UpdatedAt:     f.optString("updated_at"),
		LastUpdatedAt: f.timestamp("last_updated", fallback),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// RawMaterialDemand is the demand for one raw material at one plant on one day.
type RawMaterialDemand struct {
	PlantName        string    `json:"plant_name"`
	MaterialCategory string    `json:"material_category"`
	MaterialName     string    `json:"material_name"`
	DemandDate       string    `json:"demand_date"`
	QuantityTons     float64   `json:"quantity_tons"`
	CreatedAt        *string   `json:"created_at,omitempty"`
	UpdatedAt        *string   `json:"updated_at,omitempty"`
	LastUpdatedAt    time.Time `json:"last_updated"`
}

// LastUpdated implements Record.
func (r RawMaterialDemand) LastUpdated() time.Time { return r.LastUpdatedAt }

func decodeRawMaterialDemand(f fields, fallback time.Time) (Record, error) {
	r := fieldReader{f: f}
	rec := RawMaterialDemand{
		PlantName:        r.string("plant_name"),
		MaterialCategory: r.string("material_category"),
		MaterialName:     r.string("material_name"),
		DemandDate:       r.string("demand_date"),
		QuantityTons:     r.float("quantity_tons"),
		CreatedAt:        f.optString("created_at"),
		UpdatedAt:        f.optString("updated_at"),
		LastUpdatedAt:    f.timestamp("last_updated", fallback),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// ProductDemand is one shipped-product demand line. Concrete and asphalt
// demand share this shape.
type ProductDemand struct {
	ShipDate           string    `json:"ship_date"`
	PlantID            int       `json:"plant_id"`
	PlantDescription   string    `json:"plant_description"`
	ProductNumber      string    `json:"product_number"`
	ProductDescription string    `json:"product_description"`
	Quantity           float64   `json:"quantity"`
	Unit               string    `json:"unit"`
	FetchedAt          *string   `json:"fetched_at,omitempty"`
	LastUpdatedAt      time.Time `json:"last_updated"`
}

// LastUpdated implements Record.
func (r ProductDemand) LastUpdated() time.Time { return r.LastUpdatedAt }

func decodeProductDemand(f fields, fallback time.Time) (Record, error) {
	r := fieldReader{f: f}
	rec := ProductDemand{
		ShipDate:           r.string("ship_date"),
		PlantID:            r.int("plant_id"),
		PlantDescription:   r.string("plant_description"),
		ProductNumber:      r.string("product_number"),
		ProductDescription: r.string("product_description"),
		Quantity:           r.float("quantity"),
		Unit:               r.string("unit"),
		FetchedAt:          f.optString("fetched_at"),
		LastUpdatedAt:      f.timestamp("last_updated", fallback),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// PowderDemand is a cement, fly ash, or slag demand line.
type PowderDemand struct {
	ID            string    `json:"id"`
	PlantID       string    `json:"plant_id"`
	MaterialName  *string   `json:"material_name,omitempty"`
	ShipDate      *string   `json:"ship_date,omitempty"`
	Quantity      *string   `json:"quantity,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated"`
}

// LastUpdated implements Record.
func (r PowderDemand) LastUpdated() time.Time { return r.LastUpdatedAt }

func decodePowderDemand(f fields, fallback time.Time) (Record, error) {
	r := fieldReader{f: f}
	rec := PowderDemand{
		ID:            r.string("id"),
		PlantID:       r.string("plant_id"),
		MaterialName:  f.optString("material_name"),
		ShipDate:      f.optString("ship_date"),
		Quantity:      f.optString("quantity"),
		LastUpdatedAt: f.timestamp("last_updated", fallback),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// DriverSchedule is one driver assignment. Every field is optional because
// the schedule feed is sparse.
type DriverSchedule struct {
	DriverName    *string   `json:"driver_name,omitempty"`
	DriverID      *string   `json:"driver_id,omitempty"`
	ScheduleDate  *string   `json:"schedule_date,omitempty"`
	StartTime     *string   `json:"start_time,omitempty"`
	EndTime       *string   `json:"end_time,omitempty"`
	RouteName     *string   `json:"route_name,omitempty"`
	VehicleID     *string   `json:"vehicle_id,omitempty"`
	WorkPoint     *string   `json:"work_point,omitempty"`
	TruckName     *string   `json:"truck_name,omitempty"`
	Status        *string   `json:"status,omitempty"`
	Active        *bool     `json:"active,omitempty"`
	FetchedAt     *string   `json:"fetched_at,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated"`
}

// LastUpdated implements Record.
func (r DriverSchedule) LastUpdated() time.Time { return r.LastUpdatedAt }

func decodeDriverSchedule(f fields, fallback time.Time) (Record, error) {
	return DriverSchedule{
		DriverName:    f.optString("driver_name"),
		DriverID:      f.optString("driver_id"),
		ScheduleDate:  f.optString("schedule_date"),
		StartTime:     f.optString("start_time"),
		EndTime:       f.optString("end_time"),
		RouteName:     f.optString("route_name"),
		VehicleID:     f.optString("vehicle_id"),
		WorkPoint:     f.optString("work_point"),
		TruckName:     f.optString("truck_name"),
		Status:        f.optString("status"),
		Active:        f.optBool("active"),
		FetchedAt:     f.optString("fetched_at"),
		LastUpdatedAt: f.timestamp("last_updated", fallback),
	}, nil
}
