package parser

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/DIVD-NL/onyphe-enrich/pkg/types"
)

func TestProcessIPList(t *testing.T) {
	// Create temporary test file
	testFile, err := os.CreateTemp("", "ips_list_*.txt")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(testFile.Name())

	testContent := `# targets from scan run 42
1.2.3.4
8.8.8.8
203.0.113.1

192.168.1.10
not-an-ip
8.8.8.8
`
	if _, err := testFile.Write([]byte(testContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	testFile.Close()

	// Reopen the file for reading
	file, err := os.Open(testFile.Name())
	if err != nil {
		t.Fatalf("Failed to open test file: %v", err)
	}
	defer file.Close()

	var parser Parser
	parser = *parser.NewParser(file)

	if err := parser.ProcessIPList(); err != nil {
		t.Fatalf("ProcessIPList failed: %v", err)
	}

	// Comment, blank line, private address, garbage and the duplicate
	// must all be skipped
	wantIPs := []string{"1.2.3.4", "8.8.8.8", "203.0.113.1"}
	if len(parser.Targets) != len(wantIPs) {
		t.Fatalf("Expected %d targets, got %d: %+v", len(wantIPs), len(parser.Targets), parser.Targets)
	}
	for i, want := range wantIPs {
		if parser.Targets[i].Ip != want {
			t.Errorf("Target %d: expected %s, got %s", i, want, parser.Targets[i].Ip)
		}
	}
}

func TestReportSink(t *testing.T) {
	sink := &ReportSink{}

	// Events emitted with no current report must not panic
	sink.Emit(types.Event{Kind: types.EventGeoInfo, Data: "Paris, FR"})

	report := &types.Report{Ip: "192.0.2.1"}
	sink.Current = report
	sink.Emit(types.Event{Kind: types.EventGeoInfo, Data: "Paris, FR", Module: "onyphe-enrich"})
	sink.Emit(types.Event{Kind: types.EventMaliciousIPAddr, Data: "blocklist.de", Module: "onyphe-enrich"})

	if len(report.Events) != 2 {
		t.Fatalf("Expected 2 events in report, got %d", len(report.Events))
	}
	if report.Events[0].Kind != types.EventGeoInfo {
		t.Errorf("Unexpected first event: %+v", report.Events[0])
	}
}

func TestWriteOutput(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "parser-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	outputPath := filepath.Join(tempDir, "output.json")
	outputFile, err := os.Create(outputPath)
	if err != nil {
		t.Fatalf("Failed to create output file: %v", err)
	}
	defer outputFile.Close()

	parser := Parser{
		Reports: types.ReportMap{
			"192.0.2.1": {
				Ip: "192.0.2.1",
				Events: []types.Event{
					{Kind: types.EventGeoInfo, Data: "Paris, FR", Module: "onyphe-enrich"},
					{Kind: types.EventVulnerability, Data: "CVE-2021-44228", Module: "onyphe-enrich"},
				},
			},
		},
	}

	if err := parser.WriteOutput(outputFile); err != nil {
		t.Fatalf("WriteOutput failed: %v", err)
	}
	outputFile.Close()

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}

	var result map[string]types.Report
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to parse output JSON: %v", err)
	}

	report, ok := result["192.0.2.1"]
	if !ok {
		t.Fatal("Expected report keyed by IP in output")
	}
	if len(report.Events) != 2 {
		t.Errorf("Expected 2 events in output report, got %d", len(report.Events))
	}
}

func TestWriteOutputEmpty(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "parser-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	outputPath := filepath.Join(tempDir, "output.json")
	outputFile, err := os.Create(outputPath)
	if err != nil {
		t.Fatalf("Failed to create output file: %v", err)
	}
	defer outputFile.Close()

	parser := Parser{}
	if err := parser.WriteOutput(outputFile); err != nil {
		t.Fatalf("WriteOutput failed: %v", err)
	}
	outputFile.Close()

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	if string(data) != "{}\n" {
		t.Errorf("Expected empty JSON object, got %q", string(data))
	}
}
