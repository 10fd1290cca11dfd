package userdata

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/kv"
)

// recordList is a stored array. Entries are kept raw so that entries this
// package cannot decode survive a rewrite untouched.
type recordList struct {
	key     string
	entries []json.RawMessage
}

// find scans for the first object whose email equals email exactly.
func (l recordList) find(email string, logger *zap.Logger) (int, domain.Record) {
	for i, raw := range l.entries {
		var rec domain.Record
		if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
			logger.Debug("skipping malformed entry", zap.String("key", l.key), zap.Int("index", i))
			continue
		}
		if rec.Email() == email {
			return i, rec
		}
	}
	return -1, nil
}

func (l *recordList) put(idx int, rec domain.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if idx < 0 {
		l.entries = append(l.entries, raw)
		return nil
	}
	l.entries[idx] = raw
	return nil
}

func (l recordList) save(ctx context.Context, w kv.Writer) error {
	entries := l.entries
	if entries == nil {
		entries = []json.RawMessage{}
	}
	return kv.SetJSON(ctx, w, l.key, entries)
}

// snapshot is the state of the three namespaces for the session user.
type snapshot struct {
	baseline  domain.Record
	users     recordList
	userIdx   int
	user      domain.Record
	employees recordList
	empIdx    int
	employee  domain.Record
}

func (s snapshot) email() string {
	return s.baseline.Email()
}

// merged applies employees > users > currentUser, with identity from the baseline.
func (s snapshot) merged() domain.UserProfile {
	rec := domain.MergeRecords(s.baseline, s.user, s.employee)
	rec[domain.FieldEmail] = s.baseline[domain.FieldEmail]
	return domain.ProfileFromRecord(rec)
}

// loadSnapshot reads the namespaces through r. It reports false when there
// is no usable baseline; every other read problem degrades to an empty value.
func loadSnapshot(ctx context.Context, r kv.Reader, logger *zap.Logger) (snapshot, bool) {
	var baseline domain.Record
	if err := kv.GetJSON(ctx, r, KeyCurrentUser, &baseline); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			logger.Warn("unable to read session baseline", zap.Error(err))
		}
		return snapshot{}, false
	}
	if baseline == nil {
		return snapshot{}, false
	}

	snap := snapshot{baseline: baseline}
	email := baseline.Email()

	snap.users = readList(ctx, r, KeyUsers, logger)
	snap.userIdx, snap.user = snap.users.find(email, logger)

	snap.employees = readList(ctx, r, EmployeesKey(baseline.String(domain.FieldCompanyID), email), logger)
	snap.empIdx, snap.employee = snap.employees.find(email, logger)

	return snap, true
}

func readList(ctx context.Context, r kv.Reader, key string, logger *zap.Logger) recordList {
	list := recordList{key: key}
	if err := kv.GetJSON(ctx, r, key, &list.entries); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			logger.Warn("treating unreadable list as empty", zap.String("key", key), zap.Error(err))
		}
		list.entries = nil
	}
	return list
}
