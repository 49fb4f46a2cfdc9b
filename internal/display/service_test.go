package display

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamo-lifecycle/internal/migrate"
)

// newTestService builds a service with colors and icons off so output is
// stable regardless of the terminal running the tests
func newTestService(format string) (Service, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	svc := NewService(&Config{
		ColorEnabled:  false,
		OutputFormat:  format,
		UseIcons:      false,
		MaxTableWidth: 200,
		Writer:        &out,
		ErrWriter:     &errOut,
	})
	return svc, &out, &errOut
}

func TestService_Render_JSON(t *testing.T) {
	svc, out, _ := newTestService("json")

	result := &migrate.Result{
		Direction: migrate.DirectionUp,
		Outcomes: []migrate.UnitOutcome{
			{Version: "20250101000000", Description: "create recordings table", Status: migrate.StatusApplied},
		},
	}
	require.NoError(t, svc.Render(result))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "up", decoded["direction"])

	outcomes, ok := decoded["outcomes"].([]interface{})
	require.True(t, ok)
	require.Len(t, outcomes, 1)
}

func TestService_Render_YAML(t *testing.T) {
	svc, out, _ := newTestService("yaml")

	require.NoError(t, svc.Render(map[string]string{"environment": "dev"}))
	assert.Contains(t, out.String(), "environment: dev")
}

func TestService_Render_TextFallsBackToYAML(t *testing.T) {
	svc, out, _ := newTestService("text")

	value := struct {
		Name string `yaml:"name"`
	}{Name: "demo"}
	require.NoError(t, svc.Render(value))
	assert.Contains(t, out.String(), "name: demo")
}

func TestService_StatusLines_GoToErrWriter(t *testing.T) {
	svc, out, errOut := newTestService("text")

	svc.Success("backup finished")
	svc.Warning("slow table scan")
	svc.Error("restore failed")
	svc.Info("loading manifest")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "[SUCCESS] backup finished")
	assert.Contains(t, errOut.String(), "[WARNING] slow table scan")
	assert.Contains(t, errOut.String(), "[ERROR] restore failed")
	assert.Contains(t, errOut.String(), "[INFO] loading manifest")
}

func TestService_QuietMode_SuppressesInfoButNotErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	svc := NewService(&Config{
		OutputFormat: "text",
		QuietMode:    true,
		Writer:       &out,
		ErrWriter:    &errOut,
	})

	svc.Info("noise")
	assert.Empty(t, errOut.String())

	svc.Error("still visible")
	assert.Contains(t, errOut.String(), "still visible")
}

func TestService_PrintHeader(t *testing.T) {
	svc, out, _ := newTestService("text")

	svc.PrintHeader("Backups")
	assert.Contains(t, out.String(), "Backups\n=======")
}

func TestService_PrintHeader_SuppressedWhenQuiet(t *testing.T) {
	var out bytes.Buffer
	svc := NewService(&Config{OutputFormat: "text", QuietMode: true, Writer: &out, ErrWriter: &bytes.Buffer{}})

	svc.PrintHeader("Backups")
	assert.Empty(t, out.String())
}

func TestService_PrintTable(t *testing.T) {
	svc, out, _ := newTestService("text")

	svc.PrintTable([]string{"NAME", "ITEMS"}, [][]string{{"recordings-dev", "12"}})

	assert.Contains(t, out.String(), "NAME")
	assert.Contains(t, out.String(), "recordings-dev")
	assert.Contains(t, out.String(), "| 12")
}

func TestService_StartSpinner_InactiveOffTerminal(t *testing.T) {
	svc, _, errOut := newTestService("text")

	spinner := svc.StartSpinner("working")
	spinner.Update("still working")
	spinner.Stop()

	assert.Empty(t, errOut.String())
}

func TestService_SetOutput(t *testing.T) {
	svc, _, _ := newTestService("yaml")

	var redirected bytes.Buffer
	svc.SetOutput(&redirected)
	require.NoError(t, svc.Render(map[string]int{"count": 1}))

	assert.Contains(t, redirected.String(), "count: 1")
}

func TestNewService_NilConfigUsesDefaults(t *testing.T) {
	svc := NewService(nil)

	cfg := svc.GetConfig()
	assert.Equal(t, string(FormatText), cfg.OutputFormat)
	assert.Equal(t, string(ThemeDark), cfg.Theme)
}
