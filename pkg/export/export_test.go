package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
)

func sampleObservations() []core.Observation {
	base := time.Date(2025, 1, 15, 14, 30, 45, 123_000_000, time.Local)
	return []core.Observation{
		{
			Sequence:        1,
			Timestamp:       base,
			Target:          "google.com",
			ResolvedAddress: netip.MustParseAddr("142.250.185.46"),
			RoundTripMillis: 25,
			Outcome:         core.OutcomeSuccess,
			TTL:             57,
			PayloadSize:     32,
		},
		{
			Sequence:        2,
			Timestamp:       base.Add(333 * time.Millisecond),
			Target:          "unreachable.local",
			RoundTripMillis: -1,
			Outcome:         core.OutcomeTimedOut,
			PayloadSize:     32,
		},
		{
			Sequence:        3,
			Timestamp:       base.Add(2 * time.Second),
			Target:          "google.com",
			ResolvedAddress: netip.MustParseAddr("10.0.0.1"),
			RoundTripMillis: -1,
			Outcome:         core.OutcomeTtlExpired,
			TTL:             254,
			PayloadSize:     32,
		},
	}
}

// TestWriteCSV 测试CSV行格式
func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleObservations()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d", len(lines))
	}
	expected := []string{
		"Sequence,Timestamp,Host,IPAddress,RoundtripMs,Status,TTL,BufferSize",
		"1,2025-01-15 14:30:45.123,google.com,142.250.185.46,25,Success,57,32",
		"2,2025-01-15 14:30:45.456,unreachable.local,N/A,-1,TimedOut,0,32",
		"3,2025-01-15 14:30:47.123,google.com,10.0.0.1,-1,TtlExpired,254,32",
	}
	for i, want := range expected {
		if lines[i] != want {
			t.Errorf("Line %d: expected %q, got %q", i, want, lines[i])
		}
	}
}

// TestWriteCSVEmpty 测试空账本
func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("Expected ErrNothingToExport, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("Nothing should be written for an empty ledger")
	}
	if err := WriteJSON(&buf, nil, core.Statistics{}); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("Expected ErrNothingToExport from WriteJSON, got %v", err)
	}
	if ErrNothingToExport.Error() != "No results to export." {
		t.Errorf("Unexpected message: %s", ErrNothingToExport)
	}
}

// TestParseCSVRoundTrip 测试导出后可以重新解析
func TestParseCSVRoundTrip(t *testing.T) {
	original := sampleObservations()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, original); err != nil {
		t.Fatal(err)
	}

	parsed, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(parsed) != len(original) {
		t.Fatalf("Expected %d observations, got %d", len(original), len(parsed))
	}
	for i := range original {
		want, got := original[i], parsed[i]
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("Observation %d: expected timestamp %v, got %v", i, want.Timestamp, got.Timestamp)
		}
		want.Timestamp, got.Timestamp = time.Time{}, time.Time{}
		if got != want {
			t.Errorf("Observation %d: expected %+v, got %+v", i, want, got)
		}
	}
}

// TestParseCSVErrors 测试格式错误的输入
func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad header", "a,b,c,d,e,f,g,h\n"},
		{"bad sequence", strings.Join(Columns, ",") + "\nx,2025-01-15 14:30:45.123,h,N/A,-1,TimedOut,0,32\n"},
		{"bad status", strings.Join(Columns, ",") + "\n1,2025-01-15 14:30:45.123,h,N/A,-1,Bogus,0,32\n"},
		{"bad address", strings.Join(Columns, ",") + "\n1,2025-01-15 14:30:45.123,h,1.2.3,-1,TimedOut,0,32\n"},
		{"short row", strings.Join(Columns, ",") + "\n1,2025-01-15 14:30:45.123,h\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

// TestWriteJSON 测试JSON导出
func TestWriteJSON(t *testing.T) {
	obs := sampleObservations()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, obs, core.ComputeStatistics(obs)); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if doc.Statistics.Sent != 3 || doc.Statistics.Received != 1 {
		t.Errorf("Expected 3 sent / 1 received, got %d / %d", doc.Statistics.Sent, doc.Statistics.Received)
	}
	if doc.Statistics.MinRTT == nil || *doc.Statistics.MinRTT != 25 {
		t.Error("Expected min RTT 25")
	}
	if len(doc.Observations) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(doc.Observations))
	}
	if doc.Observations[1].Status != core.OutcomeTimedOut {
		t.Errorf("Expected TimedOut, got %s", doc.Observations[1].Status)
	}
	if doc.Observations[1].IPAddress != "" {
		t.Errorf("Expected empty address, got %q", doc.Observations[1].IPAddress)
	}
	if !strings.Contains(buf.String(), `"status": "TtlExpired"`) {
		t.Error("Expected status to be serialized by name")
	}
}

// TestNewSummaryNoReplies 没有成功记录时不输出RTT
func TestNewSummaryNoReplies(t *testing.T) {
	s := NewSummary(core.Statistics{Sent: 2, LossPercent: 100})
	if s.MinRTT != nil || s.MaxRTT != nil || s.AvgRTT != nil {
		t.Error("Expected nil RTT fields")
	}
	if !strings.Contains(s.Line, "Min: -ms") {
		t.Errorf("Unexpected line: %s", s.Line)
	}
}

// TestDefaultFileName 测试默认文件名
func TestDefaultFileName(t *testing.T) {
	now := time.Date(2025, 3, 7, 9, 5, 2, 0, time.Local)
	if got := DefaultFileName(now); got != "ping_results_20250307_090502.csv" {
		t.Errorf("Expected ping_results_20250307_090502.csv, got %s", got)
	}
}

// TestSaveFile 测试写入文件
func TestSaveFile(t *testing.T) {
	dir := t.TempDir()
	obs := sampleObservations()

	csvPath := filepath.Join(dir, DefaultFileName(time.Now()))
	if err := SaveFile(csvPath, obs); err != nil {
		t.Fatalf("SaveFile csv failed: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != len(obs)+1 {
		t.Errorf("Expected %d lines, got %d", len(obs)+1, n)
	}

	jsonPath := filepath.Join(dir, "results.json")
	if err := SaveFile(jsonPath, obs); err != nil {
		t.Fatalf("SaveFile json failed: %v", err)
	}
	data, err = os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Error("Expected valid JSON file")
	}

	emptyPath := filepath.Join(dir, "empty.csv")
	if err := SaveFile(emptyPath, nil); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("Expected ErrNothingToExport, got %v", err)
	}
	if _, err := os.Stat(emptyPath); !os.IsNotExist(err) {
		t.Error("Empty export should not create a file")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".pingwatch-") {
			t.Errorf("Temporary file left behind: %s", e.Name())
		}
	}
}

// TestLogLine 测试导出日志消息
func TestLogLine(t *testing.T) {
	if got := LogLine(3, "out.csv"); got != "Exported 3 results to out.csv" {
		t.Errorf("Unexpected line: %s", got)
	}
}
