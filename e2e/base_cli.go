package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"eventmaster/cli"
	"eventmaster/internal"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

// BaseCLISuite drives full command lines against devices that each own a
// sqlite store and share one file remote.
type BaseCLISuite struct {
	suite.Suite
	Config Config
	dir    string
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseCLISuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.dir = s.Config.DataDir
	if s.dir == "" {
		s.dir = s.T().TempDir()
	}
	s.Require().NoError(os.MkdirAll(s.dir, 0o755))
}

// Device returns the configuration of a device. The remote is shared by all devices.
func (s *BaseCLISuite) Device(id string) internal.Config {
	return internal.Config{
		LogLevel:            "ERROR",
		StorageBackend:      "sqlite",
		SqliteFilepath:      filepath.Join(s.dir, id, "eventmaster.db"),
		Timezone:            "UTC",
		DeviceID:            id,
		ConflictPolicy:      "lww",
		TombstoneGrace:      time.Hour,
		CharReplacement:     "*",
		SessionSecret:       "e2e",
		SessionTTL:          time.Hour,
		Remote:              "file",
		RemotePath:          filepath.Join(s.dir, "remote.db"),
		DiagnosticsCapacity: 10,
	}
}

// Exec executes one command line on a device with JSON output and decodes
// the envelope data into data when it is not nil.
func (s *BaseCLISuite) Exec(cfg internal.Config, data interface{}, args ...string) (cli.CLIResponse, error) {
	header := fmt.Sprintf("  ====== %s $ eventmaster %v ======", cfg.DeviceID, args)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	log := logs.GetLoggerFromLevel(slog.LevelError)
	cmd := cli.NewRootCommand(func(ctx context.Context) (*cli.App, error) {
		return cli.NewApp(ctx, cfg, log)
	})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--format", "json"}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)

	if s.Config.DebugJSON {
		s.T().Log(out.String())
	}
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *cli.CLIError   `json:"error"`
	}
	s.Require().NoError(json.Unmarshal(out.Bytes(), &raw), out.String())
	if data != nil && len(raw.Data) > 0 {
		s.Require().NoError(json.Unmarshal(raw.Data, data))
	}
	return cli.CLIResponse{Status: raw.Status, Error: raw.Error}, err
}
