package domain

import (
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// TipoOptions lists the event types offered by the creation form.
// They are suggestions only, any free text is accepted.
var TipoOptions = []string{
	"Cumpleaños",
	"Boda",
	"Fiesta",
	"Reunión",
	"Conferencia",
	"Graduación",
	"Baby Shower",
	"Deportivo",
	"Concierto",
	"Otro",
}

type Confirmaciones struct {
	Confirmados int `json:"confirmados" yaml:"confirmados" validate:"gte=0"`
	Rechazados  int `json:"rechazados" yaml:"rechazados" validate:"gte=0"`
	Talvez      int `json:"talvez" yaml:"talvez" validate:"gte=0"`
}

// Event is the persisted record. Field names are kept as stored by the mobile app.
type Event struct {
	ID             int64          `json:"id"`
	Nombre         string         `json:"nombre"`
	Tipo           string         `json:"tipo"`
	Descripcion    string         `json:"descripcion"`
	Fecha          string         `json:"fecha"`
	Hora           string         `json:"hora"`
	Ubicacion      string         `json:"ubicacion"`
	Lat            *float64       `json:"lat"`
	Lng            *float64       `json:"lng"`
	Color          string         `json:"color,omitempty"`
	Tema           string         `json:"tema,omitempty"`
	Confirmaciones Confirmaciones `json:"confirmaciones"`
}

// DedupKey identifies an event for duplicate detection: same trimmed,
// lowercased name on the same date.
func (e Event) DedupKey() string {
	return DedupKey(e.Nombre, e.Fecha)
}

func DedupKey(nombre, fecha string) string {
	return strings.ToLower(strings.TrimSpace(nombre)) + "|" + fecha
}

// StartsAt combines fecha and hora in loc. ok is false when fecha does not parse.
// A missing or malformed hora falls back to midnight.
func (e Event) StartsAt(loc *time.Location) (time.Time, bool) {
	day, err := time.ParseInLocation(DateLayout, e.Fecha, loc)
	if err != nil {
		return time.Time{}, false
	}
	at, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Fecha+" "+e.Hora, loc)
	if err != nil {
		return day, true
	}
	return at, true
}

// Equal compares every persisted field, dereferencing coordinates.
func (e Event) Equal(o Event) bool {
	return e.ID == o.ID &&
		e.Nombre == o.Nombre &&
		e.Tipo == o.Tipo &&
		e.Descripcion == o.Descripcion &&
		e.Fecha == o.Fecha &&
		e.Hora == o.Hora &&
		e.Ubicacion == o.Ubicacion &&
		floatPtrEqual(e.Lat, o.Lat) &&
		floatPtrEqual(e.Lng, o.Lng) &&
		e.Color == o.Color &&
		e.Tema == o.Tema &&
		e.Confirmaciones == o.Confirmaciones
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// EventDraft is the input of a creation.
type EventDraft struct {
	Nombre      string   `json:"nombre" yaml:"nombre" validate:"required,trimmed_min=3"`
	Tipo        string   `json:"tipo" yaml:"tipo"`
	Descripcion string   `json:"descripcion" yaml:"descripcion" validate:"max=300"`
	Fecha       string   `json:"fecha" yaml:"fecha" validate:"required,datetime=2006-01-02"`
	Hora        string   `json:"hora" yaml:"hora" validate:"required,datetime=15:04"`
	Ubicacion   string   `json:"ubicacion" yaml:"ubicacion"`
	Lat         *float64 `json:"lat" yaml:"lat" validate:"omitnil,gte=-90,lte=90"`
	Lng         *float64 `json:"lng" yaml:"lng" validate:"omitnil,gte=-180,lte=180"`
	Color       string   `json:"color" yaml:"color"`
	Tema        string   `json:"tema" yaml:"tema"`
}

// ToEvent builds the record to persist with trimmed text and zeroed confirmations.
func (d EventDraft) ToEvent(id int64) Event {
	return Event{
		ID:          id,
		Nombre:      strings.TrimSpace(d.Nombre),
		Tipo:        d.Tipo,
		Descripcion: strings.TrimSpace(d.Descripcion),
		Fecha:       d.Fecha,
		Hora:        d.Hora,
		Ubicacion:   strings.TrimSpace(d.Ubicacion),
		Lat:         d.Lat,
		Lng:         d.Lng,
		Color:       d.Color,
		Tema:        d.Tema,
	}
}

// ToDraft returns the editable fields of e, for validating a whole record.
func (e Event) ToDraft() EventDraft {
	return EventDraft{
		Nombre:      e.Nombre,
		Tipo:        e.Tipo,
		Descripcion: e.Descripcion,
		Fecha:       e.Fecha,
		Hora:        e.Hora,
		Ubicacion:   e.Ubicacion,
		Lat:         e.Lat,
		Lng:         e.Lng,
		Color:       e.Color,
		Tema:        e.Tema,
	}
}

// EventPatch carries the fields to change. Nil fields are left untouched.
type EventPatch struct {
	Nombre         *string         `json:"nombre,omitempty" validate:"omitnil,trimmed_min=3"`
	Tipo           *string         `json:"tipo,omitempty"`
	Descripcion    *string         `json:"descripcion,omitempty" validate:"omitnil,max=300"`
	Fecha          *string         `json:"fecha,omitempty" validate:"omitnil,datetime=2006-01-02"`
	Hora           *string         `json:"hora,omitempty" validate:"omitnil,datetime=15:04"`
	Ubicacion      *string         `json:"ubicacion,omitempty"`
	Lat            *float64        `json:"lat,omitempty" validate:"omitnil,gte=-90,lte=90"`
	Lng            *float64        `json:"lng,omitempty" validate:"omitnil,gte=-180,lte=180"`
	Color          *string         `json:"color,omitempty"`
	Tema           *string         `json:"tema,omitempty"`
	Confirmaciones *Confirmaciones `json:"confirmaciones,omitempty"`
}

// Apply performs a shallow merge onto a copy of e. The id is never patched.
func (p EventPatch) Apply(e Event) Event {
	if p.Nombre != nil {
		e.Nombre = strings.TrimSpace(*p.Nombre)
	}
	if p.Tipo != nil {
		e.Tipo = *p.Tipo
	}
	if p.Descripcion != nil {
		e.Descripcion = strings.TrimSpace(*p.Descripcion)
	}
	if p.Fecha != nil {
		e.Fecha = *p.Fecha
	}
	if p.Hora != nil {
		e.Hora = *p.Hora
	}
	if p.Ubicacion != nil {
		e.Ubicacion = strings.TrimSpace(*p.Ubicacion)
	}
	if p.Lat != nil {
		lat := *p.Lat
		e.Lat = &lat
	}
	if p.Lng != nil {
		lng := *p.Lng
		e.Lng = &lng
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.Tema != nil {
		e.Tema = *p.Tema
	}
	if p.Confirmaciones != nil {
		e.Confirmaciones = *p.Confirmaciones
	}
	return e
}
