package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

var (
	ErrSessionNotFound = errors.New("session snapshot not found")
	ErrSessionCorrupt  = errors.New("session snapshot is corrupt")
)

// Storage areas captured in a snapshot, in the order they are read.
var storageAreas = []string{"local", "session"}

const readStorageJS = `(area) => {
	const s = window[area + 'Storage'], d = {};
	for (let i = 0; i < s.length; ++i) {
		const k = s.key(i);
		d[k] = s.getItem(k);
	}
	return d;
}`

const writeStorageJS = `(area, k, v) => window[area + 'Storage'].setItem(k, v)`

// Snapshot is an authenticated browsing session: cookies plus the page's
// localStorage and sessionStorage.
type Snapshot struct {
	Cookies []Cookie                     `yaml:"cookies"`
	Storage map[string]map[string]string `yaml:"storage"`
}

// Empty reports whether there is nothing worth persisting.
func (s *Snapshot) Empty() bool {
	if len(s.Cookies) > 0 {
		return false
	}
	for _, values := range s.Storage {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

// SnapshotBackend persists a single snapshot.
type SnapshotBackend interface {
	Exists(ctx context.Context) (bool, error)
	Read(ctx context.Context) (*Snapshot, error)
	Write(ctx context.Context, s *Snapshot) error
	Describe() string
}

type SessionStore struct {
	backend SnapshotBackend
	logger  *slog.Logger
}

func NewSessionStore(backend SnapshotBackend, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{backend: backend, logger: logger}
}

func (s *SessionStore) Exists(ctx context.Context) (bool, error) {
	return s.backend.Exists(ctx)
}

// Save captures the driver's session and writes it, unless it is entirely empty.
func (s *SessionStore) Save(ctx context.Context, d Driver) error {
	cookies, err := d.Cookies()
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Cookies: cookies,
		Storage: make(map[string]map[string]string, len(storageAreas)),
	}
	for _, area := range storageAreas {
		res, err := d.Eval(readStorageJS, area)
		if err != nil {
			return fmt.Errorf("read %sStorage: %w", area, err)
		}
		values := make(map[string]string)
		for k, v := range res.Map() {
			values[k] = v.Str()
		}
		snap.Storage[area] = values
	}

	if snap.Empty() {
		s.logger.Warn("no session data found")
		return nil
	}

	s.logger.Info("writing session data", "to", s.backend.Describe())
	return s.backend.Write(ctx, snap)
}

// Load installs a stored snapshot into the driver entry by entry.
func (s *SessionStore) Load(ctx context.Context, d Driver) error {
	s.logger.Info("reading session data", "from", s.backend.Describe())
	snap, err := s.backend.Read(ctx)
	if err != nil {
		return err
	}

	if len(snap.Cookies) > 0 {
		s.logger.Info(fmt.Sprintf("loading %d cookie values", len(snap.Cookies)))
		cookies := make([]Cookie, len(snap.Cookies))
		for i, c := range snap.Cookies {
			if exp, ok := normalizeExpiry(c.Expiry); ok {
				c.Expiry = exp
			} else {
				c.Expiry = nil
			}
			cookies[i] = c
		}
		if err := d.SetCookies(cookies); err != nil {
			return err
		}
	}

	for _, area := range storageAreas {
		values := snap.Storage[area]
		if len(values) == 0 {
			continue
		}
		s.logger.Info(fmt.Sprintf("loading %d %sStorage values", len(values), area))
		for k, v := range values {
			if _, err := d.Eval(writeStorageJS, area, k, v); err != nil {
				return fmt.Errorf("write %sStorage[%s]: %w", area, k, err)
			}
		}
	}

	return nil
}

// normalizeExpiry coerces a loosely typed cookie expiry to whole seconds.
// Zero, negative and non-numeric values count as absent.
func normalizeExpiry(v interface{}) (int64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return int64(f), true
}
