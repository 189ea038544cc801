package cli

import (
	"bytes"
	"eventmaster/domain"
	"eventmaster/projection"
	"eventmaster/search"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewEventCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Create, edit and browse events",
	}
	cmd.AddCommand(newEventCreateCommand(opts))
	cmd.AddCommand(newEventUpdateCommand(opts))
	cmd.AddCommand(newEventDeleteCommand(opts))
	cmd.AddCommand(newEventRestoreCommand(opts))
	cmd.AddCommand(newEventShowCommand(opts))
	cmd.AddCommand(newEventListCommand(opts))
	cmd.AddCommand(newEventSearchCommand(opts))
	cmd.AddCommand(newEventImportCommand(opts))
	return cmd
}

// eventFlags binds the editable fields of an event.
type eventFlags struct {
	nombre, tipo, descripcion, fecha, hora, ubicacion, color, tema string
	lat, lng                                                      float64
	confirmados, rechazados, talvez                               int
}

func (f *eventFlags) bind(cmd *cobra.Command, withConfirmations bool) {
	cmd.Flags().StringVar(&f.nombre, "nombre", "", "event name (at least 3 characters)")
	cmd.Flags().StringVar(&f.tipo, "tipo", "", "event type, e.g. "+strings.Join(domain.TipoOptions[:3], ", "))
	cmd.Flags().StringVar(&f.descripcion, "descripcion", "", "description (at most 300 characters)")
	cmd.Flags().StringVar(&f.fecha, "fecha", "", "date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.hora, "hora", "", "time, HH:MM")
	cmd.Flags().StringVar(&f.ubicacion, "ubicacion", "", "place")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&f.lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&f.color, "color", "", "display color")
	cmd.Flags().StringVar(&f.tema, "tema", "", "theme")
	if withConfirmations {
		cmd.Flags().IntVar(&f.confirmados, "confirmados", 0, "confirmed guests")
		cmd.Flags().IntVar(&f.rechazados, "rechazados", 0, "declined guests")
		cmd.Flags().IntVar(&f.talvez, "talvez", 0, "maybe")
	}
}

func (f *eventFlags) draft(cmd *cobra.Command) domain.EventDraft {
	d := domain.EventDraft{
		Nombre:      f.nombre,
		Tipo:        f.tipo,
		Descripcion: f.descripcion,
		Fecha:       f.fecha,
		Hora:        f.hora,
		Ubicacion:   f.ubicacion,
		Color:       f.color,
		Tema:        f.tema,
	}
	if cmd.Flags().Changed("lat") {
		d.Lat = &f.lat
	}
	if cmd.Flags().Changed("lng") {
		d.Lng = &f.lng
	}
	return d
}

// patch only carries the flags given on the command line.
func (f *eventFlags) patch(cmd *cobra.Command) domain.EventPatch {
	var p domain.EventPatch
	changed := cmd.Flags().Changed
	str := func(name string, v *string) *string {
		if changed(name) {
			return v
		}
		return nil
	}
	p.Nombre = str("nombre", &f.nombre)
	p.Tipo = str("tipo", &f.tipo)
	p.Descripcion = str("descripcion", &f.descripcion)
	p.Fecha = str("fecha", &f.fecha)
	p.Hora = str("hora", &f.hora)
	p.Ubicacion = str("ubicacion", &f.ubicacion)
	p.Color = str("color", &f.color)
	p.Tema = str("tema", &f.tema)
	if changed("lat") {
		p.Lat = &f.lat
	}
	if changed("lng") {
		p.Lng = &f.lng
	}
	if changed("confirmados") || changed("rechazados") || changed("talvez") {
		p.Confirmaciones = &domain.Confirmaciones{
			Confirmados: f.confirmados,
			Rechazados:  f.rechazados,
			Talvez:      f.talvez,
		}
	}
	return p
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, WrapExitError(ExitFailure, fmt.Sprintf("invalid event id %q", s), err)
	}
	return id, nil
}

func newEventCreateCommand(opts *RootOptions) *cobra.Command {
	flags := &eventFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Example: `  eventmaster event create --nombre Boda --tipo Boda --fecha 2030-01-01 --hora 18:00 \
    --ubicacion Quito --lat -0.18 --lng -78.47`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			event, err := app.Events.Create(ctx, flags.draft(cmd))
			if err != nil {
				return out.Fail("event not created", err)
			}
			return out.Render(event, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Event #%d created\n", event.ID)
				renderEvent(w, event)
			})
		},
	}
	flags.bind(cmd, false)
	return cmd
}

func newEventUpdateCommand(opts *RootOptions) *cobra.Command {
	flags := &eventFlags{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change some fields of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			event, err := app.Events.Update(ctx, id, flags.patch(cmd))
			if err != nil {
				return out.Fail("event not updated", err)
			}
			return out.Render(event, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Event #%d updated\n", event.ID)
				renderEvent(w, event)
			})
		},
	}
	flags.bind(cmd, true)
	return cmd
}

func newEventDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event (deleting a missing event succeeds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			if err = app.Events.Delete(ctx, id); err != nil {
				return out.Fail("event not deleted", err)
			}
			return out.Success(fmt.Sprintf("Event #%d deleted (undo with 'event restore %d')", id, id),
				map[string]int64{"id": id})
		},
	}
}

func newEventRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Bring back a deleted event under its original id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			event, err := app.Events.RestoreDeleted(ctx, id)
			if err != nil {
				return out.Fail("event not restored", err)
			}
			return out.Render(event, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Event #%d restored\n", event.ID)
				renderEvent(w, event)
			})
		},
	}
}

func newEventShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			event, err := app.Events.Get(ctx, id)
			if err != nil {
				return out.Fail("event not shown", err)
			}
			return out.Render(event, func(w io.Writer) { renderEvent(w, event) })
		},
	}
}

func newEventListCommand(opts *RootOptions) *cobra.Command {
	var scope, order string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events, upcoming or past, sorted by date or name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			s, err := projection.ParseScope(scope)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid --scope", err)
			}
			o, err := projection.ParseOrder(order)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid --order", err)
			}
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			events := app.Agenda.View(app.Events.List(ctx), s, o, app.Now())
			return out.Render(events, func(w io.Writer) { renderEvents(w, events) })
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "all", "all|upcoming|past")
	cmd.Flags().StringVar(&order, "order", "date-asc", "date-asc|date-desc|name-asc")
	return cmd
}

func newEventSearchCommand(opts *RootOptions) *cobra.Command {
	var limit int
	filters := map[string]*string{}
	cmd := &cobra.Command{
		Use:   "search <terms...>",
		Short: "Find events by name, type, place or date",
		Example: `  eventmaster event search quito
  eventmaster event search boda --tipo boda --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			query := search.ParseQuery(strings.Join(args, " "))
			for field, value := range filters {
				if cmd.Flags().Changed(field) {
					query.Filters[field] = *value
				}
			}
			if cmd.Flags().Changed("limit") {
				query.Limit = limit
			}
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			events, err := app.Index.Search(ctx, app.Events.List(ctx), query)
			if err != nil {
				return out.Fail("search failed", err)
			}
			return out.Render(events, func(w io.Writer) { renderEvents(w, events) })
		},
	}
	for _, field := range []string{"tipo", "fecha", "ubicacion", "tema"} {
		filters[field] = cmd.Flags().String(field, "", "only events whose "+field+" is exactly this (case-insensitive)")
	}
	cmd.Flags().IntVar(&limit, "limit", search.DefaultLimit, "maximum number of results")
	return cmd
}

// ImportResult reports a bulk import, one line per rejected draft.
type ImportResult struct {
	Created []domain.Event `json:"created"`
	Failed  []ImportError  `json:"failed,omitempty"`
}

type ImportError struct {
	Index  int    `json:"index"`
	Nombre string `json:"nombre"`
	Error  string `json:"error"`
}

func newEventImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create every event listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			drafts, err := LoadDrafts(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid import file", err)
			}
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}

			var result ImportResult
			for i, d := range drafts {
				event, err := app.Events.Create(ctx, d)
				if err != nil {
					result.Failed = append(result.Failed, ImportError{Index: i, Nombre: d.Nombre, Error: err.Error()})
					continue
				}
				out.VerboseLog("created #%d %s", event.ID, event.Nombre)
				result.Created = append(result.Created, event)
			}
			if err = out.Render(result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %d created, %d rejected\n", len(result.Created), len(result.Failed))
				for _, f := range result.Failed {
					fmt.Fprintf(w, "  - #%d %q: %s\n", f.Index, f.Nombre, f.Error)
				}
			}); err != nil {
				return err
			}
			if len(result.Failed) > 0 {
				return WrapExitError(ExitFailure, fmt.Sprintf("%d events rejected", len(result.Failed)), nil)
			}
			return nil
		},
	}
}

// LoadDrafts reads a YAML list of events, rejecting unknown fields.
func LoadDrafts(path string) ([]domain.EventDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	var drafts []domain.EventDraft
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err = decoder.Decode(&drafts); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return drafts, nil
}
