// Package archive 将每个会话的观测记录和日志行持久化到SQLite
// 内存账本只保留最近1000条，归档保存会话的完整历史
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// ErrSessionNotFound 归档中没有该会话
var ErrSessionNotFound = errors.New("会话不存在")

// SessionSource 提供当前会话ID，由会话引擎实现
type SessionSource interface {
	SessionID() string
}

// SessionSummary 归档中一个会话的概要
type SessionSummary struct {
	ID        string
	Target    string
	StartedAt time.Time
	Count     int
	Received  int
}

// Archive 实现core.ResultSink，每条观测写入一行
type Archive struct {
	db       *sql.DB
	sessions SessionSource
	logger   *zap.Logger
	now      func() time.Time
	retry    retryPolicy

	mu    sync.Mutex
	known map[string]bool // 已写入sessions表的会话
}

// New 打开（或创建）归档数据库
func New(path string, sessions SessionSource, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开归档数据库失败: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	a := &Archive{
		db:       db,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
		retry:    defaultRetryPolicy(),
		known:    make(map[string]bool),
	}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化归档表失败: %w", err)
	}
	return a, nil
}

// Close 关闭数据库
func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		target      TEXT NOT NULL,
		started_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS observations (
		session_id   TEXT NOT NULL REFERENCES sessions(id),
		sequence     INTEGER NOT NULL,
		ts           TEXT NOT NULL,
		host         TEXT NOT NULL,
		address      TEXT,
		rtt_ms       INTEGER NOT NULL,
		status       TEXT NOT NULL,
		ttl          INTEGER NOT NULL,
		payload_size INTEGER NOT NULL,
		PRIMARY KEY (session_id, sequence)
	);

	CREATE TABLE IF NOT EXISTS log_lines (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		created_at TEXT NOT NULL,
		line       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_lines_session ON log_lines(session_id, id);
	`
	_, err := a.db.Exec(schema)
	return err
}

// OnObservation 写入一条观测，失败只记录日志，不影响会话
func (a *Archive) OnObservation(obs core.Observation, _ core.Statistics) {
	id := a.currentSession()
	if id == "" {
		return
	}
	if err := a.ensureSession(id, obs); err != nil {
		a.logger.Warn("归档会话失败", zap.String("session", id), zap.Error(err))
		return
	}

	var addr any
	if obs.HasAddress() {
		addr = obs.ResolvedAddress.String()
	}
	err := a.withRetry("insert observation", func() error {
		_, err := a.db.Exec(
			`INSERT OR REPLACE INTO observations
			 (session_id, sequence, ts, host, address, rtt_ms, status, ttl, payload_size)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, obs.Sequence, obs.Timestamp.UTC().Format(time.RFC3339Nano), obs.Target, addr,
			obs.RoundTripMillis, obs.Outcome.String(), obs.TTL, obs.PayloadSize,
		)
		return err
	})
	if err != nil {
		a.logger.Warn("归档观测失败", zap.String("session", id), zap.Int("seq", obs.Sequence), zap.Error(err))
	}
}

// OnLogLine 保存会话日志行
func (a *Archive) OnLogLine(line string) {
	var id any
	if s := a.currentSession(); s != "" {
		id = s
	}
	err := a.withRetry("insert log line", func() error {
		_, err := a.db.Exec(
			`INSERT INTO log_lines (session_id, created_at, line) VALUES (?, ?, ?)`,
			id, a.now().UTC().Format(time.RFC3339Nano), line,
		)
		return err
	})
	if err != nil {
		a.logger.Warn("归档日志行失败", zap.Error(err))
	}
}

func (a *Archive) currentSession() string {
	if a.sessions == nil {
		return ""
	}
	return a.sessions.SessionID()
}

// ensureSession 首次见到会话时写入sessions表
func (a *Archive) ensureSession(id string, first core.Observation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.known[id] {
		return nil
	}
	err := a.withRetry("insert session", func() error {
		_, err := a.db.Exec(
			`INSERT OR IGNORE INTO sessions (id, target, started_at) VALUES (?, ?, ?)`,
			id, first.Target, first.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return err
	}
	a.known[id] = true
	return nil
}

// Sessions 按开始时间倒序列出归档的会话
func (a *Archive) Sessions() ([]SessionSummary, error) {
	rows, err := a.db.Query(`
		SELECT s.id, s.target, s.started_at,
		       COUNT(o.sequence),
		       COALESCE(SUM(CASE WHEN o.status = ? THEN 1 ELSE 0 END), 0)
		FROM sessions s LEFT JOIN observations o ON o.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC`, core.OutcomeSuccess.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s       SessionSummary
			started string
		)
		if err := rows.Scan(&s.ID, &s.Target, &started, &s.Count, &s.Received); err != nil {
			return nil, err
		}
		if s.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Observations 返回会话的全部观测，按序号排列
func (a *Archive) Observations(sessionID string) ([]core.Observation, error) {
	var exists int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}

	rows, err := a.db.Query(
		`SELECT sequence, ts, host, address, rtt_ms, status, ttl, payload_size
		 FROM observations WHERE session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// LogLines 返回会话的日志行
func (a *Archive) LogLines(sessionID string) ([]string, error) {
	rows, err := a.db.Query(`SELECT line FROM log_lines WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanObservations(rows *sql.Rows) ([]core.Observation, error) {
	var out []core.Observation
	for rows.Next() {
		var (
			o       core.Observation
			ts      string
			addr    sql.NullString
			status  string
			scanErr error
		)
		if err := rows.Scan(&o.Sequence, &ts, &o.Target, &addr, &o.RoundTripMillis, &status, &o.TTL, &o.PayloadSize); err != nil {
			return nil, err
		}
		if o.Timestamp, scanErr = parseTime(ts); scanErr != nil {
			return nil, scanErr
		}
		if addr.Valid {
			if o.ResolvedAddress, scanErr = netip.ParseAddr(addr.String); scanErr != nil {
				return nil, scanErr
			}
		}
		if o.Outcome, scanErr = core.ParseOutcomeKind(status); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("时间格式错误 %q: %w", s, err)
	}
	return t.Local(), nil
}
