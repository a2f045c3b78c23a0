package archive

import (
	"errors"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// retryPolicy WAL模式下写入遇到锁冲突时的退避策略
type retryPolicy struct {
	attempts int // 首次之外的重试次数
	base     time.Duration
	limit    time.Duration
	sleep    func(time.Duration)
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		attempts: 3,
		base:     20 * time.Millisecond,
		limit:    200 * time.Millisecond,
		sleep:    time.Sleep,
	}
}

// 驱动没有返回 *sqlite.Error 时按错误文本匹配
var transientPatterns = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
	"(5)",
	"(6)",
	"(522)",
}

// isTransientSQLiteErr 锁冲突和WAL短读可以重试，其他错误直接返回
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch code := se.Code(); {
		case code == sqlite3.SQLITE_IOERR_SHORT_READ:
			return true
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	msg := err.Error()
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// delay 第n次重试前的等待：base*2^n，不超过limit，再加 [0, base) 的随机抖动
func (p retryPolicy) delay(n int) time.Duration {
	d := p.base << uint(n)
	if d > p.limit {
		d = p.limit
	}
	return d + time.Duration(rand.Int63n(int64(p.base)))
}

// withRetry 执行写操作，瞬时错误按策略重试
func (a *Archive) withRetry(op string, fn func() error) error {
	err := fn()
	for n := 0; n < a.retry.attempts && isTransientSQLiteErr(err); n++ {
		wait := a.retry.delay(n)
		a.logger.Debug("SQLite繁忙，稍后重试",
			zap.String("op", op),
			zap.Int("attempt", n+1),
			zap.Duration("wait", wait),
			zap.Error(err))
		a.retry.sleep(wait)
		err = fn()
	}
	return err
}
