package domain

import (
	"errors"
	apperrors "eventmaster/errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func validDraft() EventDraft {
	return EventDraft{
		Nombre: "Boda",
		Tipo:   "Boda",
		Fecha:  "2030-01-01",
		Hora:   "18:00",
	}
}

func TestValidateStruct_AcceptsValidDraft(t *testing.T) {
	req := require.New(t)
	req.NoError(ValidateStruct(validDraft()))
}

func TestValidateStruct_ReportsEveryField(t *testing.T) {
	req := require.New(t)
	draft := validDraft()
	draft.Nombre = "  ab  "
	draft.Fecha = "01/01/2030"
	draft.Lat = lo.ToPtr(91.0)

	err := ValidateStruct(draft)
	req.ErrorIs(err, apperrors.ErrValidation)

	var vErr *apperrors.ValidationError
	req.True(errors.As(err, &vErr))
	req.Len(vErr.Fields, 3)

	nombre, ok := vErr.Field("nombre")
	req.True(ok)
	req.Equal("trimmed_min", nombre.Rule)
	_, ok = vErr.Field("fecha")
	req.True(ok)
	_, ok = vErr.Field("lat")
	req.True(ok)
}

func TestValidateStruct_DescriptionTooLong(t *testing.T) {
	req := require.New(t)
	draft := validDraft()
	draft.Descripcion = string(make([]byte, 301))

	var vErr *apperrors.ValidationError
	req.True(errors.As(ValidateStruct(draft), &vErr))
	f, ok := vErr.Field("descripcion")
	req.True(ok)
	req.Equal("max", f.Rule)
}

func TestValidateStruct_PatchOnlyChecksProvidedFields(t *testing.T) {
	req := require.New(t)
	req.NoError(ValidateStruct(EventPatch{Tema: lo.ToPtr("elegante")}))
	req.ErrorIs(ValidateStruct(EventPatch{Hora: lo.ToPtr("25:00")}), apperrors.ErrValidation)
}

func TestCheckSchedule(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, loc)

	t.Run("past date", func(t *testing.T) {
		req := require.New(t)
		fields := CheckSchedule("2026-03-09", "20:00", now)
		req.Len(fields, 1)
		req.Equal("fecha", fields[0].Field)
	})
	t.Run("today before now", func(t *testing.T) {
		req := require.New(t)
		fields := CheckSchedule("2026-03-10", "15:30", now)
		req.Len(fields, 1)
		req.Equal("hora", fields[0].Field)
	})
	t.Run("today after now", func(t *testing.T) {
		require.New(t).Empty(CheckSchedule("2026-03-10", "15:31", now))
	})
	t.Run("future date", func(t *testing.T) {
		require.New(t).Empty(CheckSchedule("2026-03-11", "00:00", now))
	})
}

func TestEventPatch_Apply(t *testing.T) {
	req := require.New(t)
	e := validDraft().ToEvent(4)
	e.Confirmaciones.Confirmados = 2

	patched := EventPatch{Ubicacion: lo.ToPtr("  Quito "), Lat: lo.ToPtr(-0.18)}.Apply(e)
	req.Equal(int64(4), patched.ID)
	req.Equal("Quito", patched.Ubicacion)
	req.Equal(-0.18, *patched.Lat)
	req.Equal(2, patched.Confirmaciones.Confirmados)
	req.Equal("", e.Ubicacion)

	req.True(EventPatch{Nombre: lo.ToPtr("Boda")}.Apply(e).Equal(e))
}

func TestDedupKey(t *testing.T) {
	req := require.New(t)
	req.Equal(DedupKey("  BODA ", "2030-01-01"), Event{Nombre: "boda", Fecha: "2030-01-01"}.DedupKey())
	req.NotEqual(DedupKey("boda", "2030-01-01"), DedupKey("boda", "2030-01-02"))
}

func TestEvent_ToDraftRoundTrips(t *testing.T) {
	req := require.New(t)
	e := Event{ID: 4, Nombre: "Boda", Tipo: "Boda", Fecha: "2030-01-01", Hora: "18:00", Lat: lo.ToPtr(-0.18), Color: "#fff"}
	req.True(e.ToDraft().ToEvent(4).Equal(e))
	req.NoError(ValidateStruct(e.ToDraft()))
}
