package utils

import (
	"time"
)

// VET is the Venezuela time location (UTC-4).
var VET *time.Location

func init() {
	var err error
	VET, err = time.LoadLocation("America/Caracas")
	if err != nil {
		// Fallback: create fixed zone if tz database is not available
		VET = time.FixedZone("VET", -4*60*60)
	}
}

// NowVET returns the current time in Caracas.
func NowVET() time.Time {
	return time.Now().In(VET)
}

// SessionOpenTime returns the BVC session opening time (9:00 AM VET) for a given date.
func SessionOpenTime(date time.Time) time.Time {
	d := date.In(VET)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, VET)
}

// SessionCloseTime returns the BVC session closing time (1:00 PM VET) for a given date.
func SessionCloseTime(date time.Time) time.Time {
	d := date.In(VET)
	return time.Date(d.Year(), d.Month(), d.Day(), 13, 0, 0, 0, VET)
}

// IsBVCSessionAt reports whether the Caracas exchange is normally in session at t.
// The market feed's own status always wins over this; it is a display hint.
func IsBVCSessionAt(t time.Time) bool {
	t = t.In(VET)
	if !IsTradingDay(t) {
		return false
	}
	return !t.Before(SessionOpenTime(t)) && t.Before(SessionCloseTime(t))
}

// IsTradingDay checks if the given date is a weekday and not a fixed national holiday.
func IsTradingDay(t time.Time) bool {
	t = t.In(VET)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	_, holiday := fixedHolidays[t.Format("01-02")]
	return !holiday
}

// Fixed-date national holidays. Carnival and Holy Week move every year
// and are not listed.
var fixedHolidays = map[string]string{
	"01-01": "Año Nuevo",
	"04-19": "Declaración de la Independencia",
	"05-01": "Día del Trabajador",
	"06-24": "Batalla de Carabobo",
	"07-05": "Día de la Independencia",
	"07-24": "Natalicio de Simón Bolívar",
	"10-12": "Día de la Resistencia Indígena",
	"12-24": "Nochebuena",
	"12-25": "Navidad",
	"12-31": "Fin de Año",
}

// FormatDateTimeVET formats a time.Time to "2006-01-02 15:04:05 VET".
func FormatDateTimeVET(t time.Time) string {
	return t.In(VET).Format("2006-01-02 15:04:05") + " VET"
}

// SessionStatus returns a human-readable session label for t.
func SessionStatus(t time.Time) string {
	t = t.In(VET)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return "CERRADO (fin de semana)"
	}
	if name, ok := fixedHolidays[t.Format("01-02")]; ok {
		return "CERRADO (" + name + ")"
	}
	switch {
	case t.Before(SessionOpenTime(t)):
		return "PRE-APERTURA"
	case t.Before(SessionCloseTime(t)):
		return "ABIERTO"
	default:
		return "CERRADO"
	}
}
