package guard

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DailyAuditSink appends one JSON object per line to an append-only file per
// UTC calendar day. The file is derived from the event's own timestamp, so
// replaying events out of order does not fragment a day's log as long as each
// event is written once.
type DailyAuditSink struct {
	Dir string

	mu  sync.Mutex
	day string
	f   *os.File
	w   *bufio.Writer
}

func NewDailyAuditSink(dir string) (*DailyAuditSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("missing audit dir")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &DailyAuditSink{Dir: dir}, nil
}

func (s *DailyAuditSink) Emit(ctx context.Context, e AuditEvent) error {
	_ = ctx
	if s == nil {
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.switchDayLocked(e.Timestamp); err != nil {
		return err
	}
	if s.w == nil {
		return fmt.Errorf("audit sink is not initialized")
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *DailyAuditSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// Path returns the audit file path for the given timestamp's UTC day.
func (s *DailyAuditSink) Path(ts time.Time) string {
	return filepath.Join(s.Dir, "audit-"+ts.UTC().Format("20060102")+".jsonl")
}

func (s *DailyAuditSink) switchDayLocked(ts time.Time) error {
	day := ts.UTC().Format("20060102")
	if s.f != nil && day == s.day {
		return nil
	}
	if err := s.closeLocked(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path(ts), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.day = day
	s.f = f
	s.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

func (s *DailyAuditSink) closeLocked() error {
	if s.w != nil {
		_ = s.w.Flush()
	}
	if s.f != nil {
		err := s.f.Close()
		s.f = nil
		s.w = nil
		s.day = ""
		return err
	}
	return nil
}
