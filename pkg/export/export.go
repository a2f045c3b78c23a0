// Package export 将观测记录写成CSV或JSON文件
// CSV格式与旧版导出文件保持兼容，可以再解析回观测记录
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
)

// CSV格式常量
const (
	TimestampLayout = "2006-01-02 15:04:05.000"
	FileNameLayout  = "20060102_150405"
	NoAddress       = "N/A"
)

// Columns CSV表头
var Columns = []string{"Sequence", "Timestamp", "Host", "IPAddress", "RoundtripMs", "Status", "TTL", "BufferSize"}

// ErrNothingToExport 账本为空
var ErrNothingToExport = errors.New("No results to export.")

// Record 单条观测记录的JSON表示
type Record struct {
	Sequence    int              `json:"sequence"`
	Timestamp   time.Time        `json:"timestamp"`
	Host        string           `json:"host"`
	IPAddress   string           `json:"ip_address,omitempty"`
	RoundtripMs int64            `json:"roundtrip_ms"`
	Status      core.OutcomeKind `json:"status"`
	TTL         int              `json:"ttl"`
	BufferSize  int              `json:"buffer_size"`
}

// NewRecord 从观测记录构造 Record
func NewRecord(o core.Observation) Record {
	r := Record{
		Sequence:    o.Sequence,
		Timestamp:   o.Timestamp,
		Host:        o.Target,
		RoundtripMs: o.RoundTripMillis,
		Status:      o.Outcome,
		TTL:         o.TTL,
		BufferSize:  o.PayloadSize,
	}
	if o.HasAddress() {
		r.IPAddress = o.ResolvedAddress.String()
	}
	return r
}

// Summary 统计数据的JSON表示，没有成功记录时RTT字段为空
type Summary struct {
	Sent        int      `json:"sent"`
	Received    int      `json:"received"`
	LossPercent float64  `json:"loss_percent"`
	MinRTT      *int64   `json:"min_rtt_ms,omitempty"`
	MaxRTT      *int64   `json:"max_rtt_ms,omitempty"`
	AvgRTT      *float64 `json:"avg_rtt_ms,omitempty"`
	Line        string   `json:"line"`
}

// NewSummary 从统计数据构造 Summary
func NewSummary(s core.Statistics) Summary {
	sum := Summary{
		Sent:        s.Sent,
		Received:    s.Received,
		LossPercent: s.LossPercent,
		Line:        s.String(),
	}
	if s.HasRTT {
		minRTT, maxRTT, avgRTT := s.MinRTT, s.MaxRTT, s.AvgRTT
		sum.MinRTT, sum.MaxRTT, sum.AvgRTT = &minRTT, &maxRTT, &avgRTT
	}
	return sum
}

// Document JSON导出的顶层结构
type Document struct {
	Statistics   Summary  `json:"statistics"`
	Observations []Record `json:"observations"`
}

// CSVRecord 返回一条观测记录的CSV字段
func CSVRecord(o core.Observation) []string {
	addr := NoAddress
	if o.HasAddress() {
		addr = o.ResolvedAddress.String()
	}
	return []string{
		strconv.Itoa(o.Sequence),
		o.Timestamp.Format(TimestampLayout),
		o.Target,
		addr,
		strconv.FormatInt(o.RoundTripMillis, 10),
		o.Outcome.String(),
		strconv.Itoa(o.TTL),
		strconv.Itoa(o.PayloadSize),
	}
}

// WriteCSV 写入表头和每条记录，空记录返回 ErrNothingToExport
func WriteCSV(w io.Writer, observations []core.Observation) error {
	if len(observations) == 0 {
		return ErrNothingToExport
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, o := range observations {
		if err := cw.Write(CSVRecord(o)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCSV 解析 WriteCSV 写出的文件，时间戳按本地时区解析
func ParseCSV(r io.Reader) ([]core.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("CSV文件为空")
		}
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(Columns, ",") {
		return nil, fmt.Errorf("无法识别的表头: %s", strings.Join(header, ","))
	}

	var observations []core.Observation
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("第%d行: %w", line, err)
		}
		o, err := parseRecord(fields)
		if err != nil {
			return nil, fmt.Errorf("第%d行: %w", line, err)
		}
		observations = append(observations, o)
	}
	return observations, nil
}

func parseRecord(fields []string) (core.Observation, error) {
	var (
		o   core.Observation
		err error
	)
	if o.Sequence, err = strconv.Atoi(fields[0]); err != nil {
		return o, fmt.Errorf("序号无效: %w", err)
	}
	if o.Timestamp, err = time.ParseInLocation(TimestampLayout, fields[1], time.Local); err != nil {
		return o, fmt.Errorf("时间戳无效: %w", err)
	}
	o.Target = fields[2]
	if fields[3] != NoAddress {
		if o.ResolvedAddress, err = netip.ParseAddr(fields[3]); err != nil {
			return o, fmt.Errorf("IP地址无效: %w", err)
		}
	}
	if o.RoundTripMillis, err = strconv.ParseInt(fields[4], 10, 64); err != nil {
		return o, fmt.Errorf("往返时间无效: %w", err)
	}
	if o.Outcome, err = core.ParseOutcomeKind(fields[5]); err != nil {
		return o, err
	}
	if o.TTL, err = strconv.Atoi(fields[6]); err != nil {
		return o, fmt.Errorf("TTL无效: %w", err)
	}
	if o.PayloadSize, err = strconv.Atoi(fields[7]); err != nil {
		return o, fmt.Errorf("负载大小无效: %w", err)
	}
	return o, nil
}

// WriteJSON 写入统计数据和全部记录
func WriteJSON(w io.Writer, observations []core.Observation, stats core.Statistics) error {
	if len(observations) == 0 {
		return ErrNothingToExport
	}
	doc := Document{
		Statistics:   NewSummary(stats),
		Observations: make([]Record, 0, len(observations)),
	}
	for _, o := range observations {
		doc.Observations = append(doc.Observations, NewRecord(o))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// DefaultFileName 返回 ping_results_yyyyMMdd_HHmmss.csv
func DefaultFileName(now time.Time) string {
	return "ping_results_" + now.Format(FileNameLayout) + ".csv"
}

// SaveFile 按扩展名写入CSV或JSON
// 先写临时文件再重命名，失败时不会留下半个文件
func SaveFile(path string, observations []core.Observation) error {
	if len(observations) == 0 {
		return ErrNothingToExport
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pingwatch-*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = WriteJSON(tmp, observations, core.ComputeStatistics(observations))
	} else {
		err = WriteCSV(tmp, observations)
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("写入导出文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("保存导出文件失败: %w", err)
	}
	return nil
}

// LogLine 返回导出成功的日志消息
func LogLine(n int, path string) string {
	return fmt.Sprintf("Exported %d results to %s", n, path)
}
