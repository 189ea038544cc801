package cli

import (
	"encoding/json"
	stderrors "errors"
	"eventmaster/domain"
	"eventmaster/errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected input, duplicates, unresolved conflicts
	ExitCommandError = 2 // storage, remote or configuration failures
)

// ExitError carries the exit code a command failure maps to.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Render writes data as JSON, or calls text for the human form.
func (f *OutputFormatter) Render(data interface{}, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

func (f *OutputFormatter) Success(message string, data interface{}) error {
	return f.Render(data, func(w io.Writer) {
		fmt.Fprintln(w, color.New(color.FgGreen).Render("✓ "+message))
	})
}

func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	w := f.GetErrWriter()
	fmt.Fprintln(w, color.New(color.FgRed, color.OpBold).Render(fmt.Sprintf("Error [%s]: %s", code, message)))
	if fields, ok := details.([]errors.FieldError); ok {
		for _, fe := range fields {
			fmt.Fprintf(w, "  - %s: %s\n", fe.Field, fe.Message)
		}
	} else if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	var details interface{}
	var vErr *errors.ValidationError
	var cErr *errors.ConflictError
	switch {
	case stderrors.As(err, &vErr):
		details = vErr.Fields
	case stderrors.As(err, &cErr):
		details = cErr
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(exit, message, err)
}

func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func classify(err error) (string, int) {
	switch {
	case stderrors.Is(err, errors.ErrValidation):
		return "E_VALIDATION", ExitFailure
	case stderrors.Is(err, errors.ErrDuplicateEvent):
		return "E_DUPLICATE", ExitFailure
	case stderrors.Is(err, errors.ErrNotFound):
		return "E_NOT_FOUND", ExitFailure
	case stderrors.Is(err, errors.ErrAlreadyExists):
		return "E_EXISTS", ExitFailure
	case stderrors.Is(err, errors.ErrConflictUnresolved):
		return "E_CONFLICT", ExitFailure
	case stderrors.Is(err, errors.ErrNoRemote):
		return "E_NO_REMOTE", ExitCommandError
	case stderrors.Is(err, errors.ErrStorageWrite):
		return "E_STORAGE", ExitCommandError
	}
	return "E_INTERNAL", ExitCommandError
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

func renderEvents(w io.Writer, events []domain.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	table := newTable(w, "ID", "Nombre", "Tipo", "Fecha", "Hora", "Ubicacion", "Si/No/Talvez")
	for _, e := range events {
		c := e.Confirmaciones
		table.Append([]string{
			strconv.FormatInt(e.ID, 10), e.Nombre, e.Tipo, e.Fecha, e.Hora, e.Ubicacion,
			fmt.Sprintf("%d/%d/%d", c.Confirmados, c.Rechazados, c.Talvez),
		})
	}
	table.Render()
}

func renderEvent(w io.Writer, e domain.Event) {
	fmt.Fprintf(w, "#%d %s (%s)\n", e.ID, e.Nombre, e.Tipo)
	fmt.Fprintf(w, "  Fecha:      %s %s\n", e.Fecha, e.Hora)
	fmt.Fprintf(w, "  Ubicacion:  %s\n", e.Ubicacion)
	if e.Lat != nil && e.Lng != nil {
		fmt.Fprintf(w, "  Coords:     %.5f, %.5f\n", *e.Lat, *e.Lng)
	}
	if e.Descripcion != "" {
		fmt.Fprintf(w, "  Descripcion: %s\n", e.Descripcion)
	}
	if e.Tema != "" || e.Color != "" {
		fmt.Fprintf(w, "  Tema:       %s %s\n", e.Tema, e.Color)
	}
	c := e.Confirmaciones
	fmt.Fprintf(w, "  Confirmaciones: %d si, %d no, %d talvez\n", c.Confirmados, c.Rechazados, c.Talvez)
}
