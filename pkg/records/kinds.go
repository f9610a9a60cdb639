package records

import "time"

// Trip is one vehicle journey.
type Trip struct {
	Vehicle     string
	Driver      string
	Origin      string
	Destination string
	Kilometers  float64
	Date        time.Time
}

func (Trip) Kind() Kind { return KindTrip }

func (t Trip) Validate() error {
	if err := requireText(KindTrip, "vehicle", t.Vehicle); err != nil {
		return err
	}
	return requireNonNegative(KindTrip, "km", t.Kilometers)
}

func (t Trip) Payload() map[string]any {
	out := map[string]any{"km": t.Kilometers}
	putText(out, "vehicle", t.Vehicle)
	putText(out, "driver", t.Driver)
	putText(out, "origin", t.Origin)
	putText(out, "destination", t.Destination)
	putText(out, "date", formatDate(t.Date))
	return out
}

// FuelEntry is one refuelling.
type FuelEntry struct {
	Vehicle       string
	Liters        float64
	PricePerLiter float64
	Odometer      float64
	Date          time.Time
}

func (FuelEntry) Kind() Kind { return KindFuel }

func (f FuelEntry) Validate() error {
	if err := requireText(KindFuel, "vehicle", f.Vehicle); err != nil {
		return err
	}
	if err := requireNonNegative(KindFuel, "liters", f.Liters); err != nil {
		return err
	}
	return requireNonNegative(KindFuel, "pricePerLiter", f.PricePerLiter)
}

func (f FuelEntry) Payload() map[string]any {
	out := map[string]any{
		"liters":        f.Liters,
		"pricePerLiter": f.PricePerLiter,
		"total":         f.Liters * f.PricePerLiter,
	}
	if f.Odometer > 0 {
		out["odometer"] = f.Odometer
	}
	putText(out, "vehicle", f.Vehicle)
	putText(out, "date", formatDate(f.Date))
	return out
}

// MachineHours logs machine usage.
type MachineHours struct {
	Machine  string
	Operator string
	Activity string
	Hours    float64
	Date     time.Time
}

func (MachineHours) Kind() Kind { return KindMachineHours }

func (m MachineHours) Validate() error {
	if err := requireText(KindMachineHours, "machine", m.Machine); err != nil {
		return err
	}
	return requireNonNegative(KindMachineHours, "hours", m.Hours)
}

func (m MachineHours) Payload() map[string]any {
	out := map[string]any{"hours": m.Hours}
	putText(out, "machine", m.Machine)
	putText(out, "operator", m.Operator)
	putText(out, "activity", m.Activity)
	putText(out, "date", formatDate(m.Date))
	return out
}

// Sale is one produce sale.
type Sale struct {
	Product   string
	Buyer     string
	Unit      string
	Quantity  float64
	UnitPrice float64
	Date      time.Time
}

func (Sale) Kind() Kind { return KindSale }

func (s Sale) Validate() error {
	if err := requireText(KindSale, "product", s.Product); err != nil {
		return err
	}
	if err := requireNonNegative(KindSale, "quantity", s.Quantity); err != nil {
		return err
	}
	return requireNonNegative(KindSale, "unitPrice", s.UnitPrice)
}

func (s Sale) Payload() map[string]any {
	out := map[string]any{
		"quantity":  s.Quantity,
		"unitPrice": s.UnitPrice,
		"total":     s.Quantity * s.UnitPrice,
	}
	putText(out, "product", s.Product)
	putText(out, "buyer", s.Buyer)
	putText(out, "unit", s.Unit)
	putText(out, "date", formatDate(s.Date))
	return out
}

// ServiceOrder is maintenance work on a machine.
type ServiceOrder struct {
	Machine     string
	Description string
	Status      string
	Cost        float64
	Date        time.Time
}

func (ServiceOrder) Kind() Kind { return KindServiceOrder }

func (o ServiceOrder) Validate() error {
	if err := requireText(KindServiceOrder, "machine", o.Machine); err != nil {
		return err
	}
	return requireNonNegative(KindServiceOrder, "cost", o.Cost)
}

func (o ServiceOrder) Payload() map[string]any {
	status := o.Status
	if status == "" {
		status = "open"
	}
	out := map[string]any{"cost": o.Cost, "status": status}
	putText(out, "machine", o.Machine)
	putText(out, "description", o.Description)
	putText(out, "date", formatDate(o.Date))
	return out
}
