package capture

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/monitoring"
	"github.com/banshee-data/freed-tools/internal/validate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrUnknownSession is returned for a session id the store does not hold.
var ErrUnknownSession = errors.New("capture: unknown session")

// Store is a SQLite capture database. Each listening run is a session
// keyed by a random UUID.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the database at path and applies pending
// migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serialises them anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: that would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SessionInfo describes a stored capture session.
type SessionInfo struct {
	ID      string
	Label   string
	Started time.Time
	Packets int
	Valid   int
}

// Sessions lists stored sessions, most recent first.
func (s *Store) Sessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT s.session_id, s.label, s.started_at,
		       COUNT(p.seq), COALESCE(SUM(p.valid), 0)
		FROM capture_sessions s
		LEFT JOIN capture_packets p ON p.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var started int64
		if err := rows.Scan(&info.ID, &info.Label, &started, &info.Packets, &info.Valid); err != nil {
			return nil, err
		}
		info.Started = time.Unix(0, started)
		out = append(out, info)
	}
	return out, rows.Err()
}

// BeginSession creates a session and returns a recorder for it.
func (s *Store) BeginSession(label string, started time.Time) (*SessionRecorder, error) {
	id := uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO capture_sessions (session_id, label, started_at) VALUES (?, ?, ?)`,
		id, label, started.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &SessionRecorder{store: s, id: id}, nil
}

// SessionRecorder appends datagrams to one session. It implements the
// listener's Recorder.
type SessionRecorder struct {
	store *Store
	id    string

	mu  sync.Mutex
	seq int
}

// ID is the session's UUID.
func (r *SessionRecorder) ID() string { return r.id }

// Record stores e.
func (r *SessionRecorder) Record(e validate.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var srcIP sql.NullString
	var srcPort sql.NullInt64
	if e.Source.IsValid() {
		srcIP = sql.NullString{String: e.Source.Addr().String(), Valid: true}
		srcPort = sql.NullInt64{Int64: int64(e.Source.Port()), Valid: true}
	}

	args := []any{r.id, r.seq, e.Time.UnixNano(), srcIP, srcPort, e.Result.Valid(), nil, e.Size}
	if e.Result.Valid() {
		p := e.Result.Packet
		args = append(args, int64(p.Frame), p.X, p.Y, p.Z, p.Pan, p.Tilt, p.Roll)
		if p.Lens != nil {
			args = append(args, p.Lens.Zoom, p.Lens.Focus)
		} else {
			args = append(args, nil, nil)
		}
	} else {
		args[6] = e.Result.Reason().String()
		args = append(args, nil, nil, nil, nil, nil, nil, nil, nil, nil)
	}

	if _, err := r.store.db.Exec(`
		INSERT INTO capture_packets (
			session_id, seq, received_at, source_ip, source_port, valid, reason, size,
			frame, x_pos, y_pos, z_pos, pan, tilt, roll, zoom, focus
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("insert packet %d: %w", r.seq, err)
	}
	r.seq++
	return nil
}

// Rows loads a session in receive order.
func (s *Store) Rows(sessionID string) (Rows, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM capture_sessions WHERE session_id = ?`, sessionID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w %q", ErrUnknownSession, sessionID)
	}

	rows, err := s.db.Query(`
		SELECT received_at, source_ip, source_port, valid,
		       frame, x_pos, y_pos, z_pos, pan, tilt, roll, zoom, focus
		FROM capture_packets
		WHERE session_id = ?
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out Rows
	for rows.Next() {
		var (
			receivedAt      int64
			srcIP           sql.NullString
			srcPort         sql.NullInt64
			valid           bool
			frame           sql.NullInt64
			x, y, z         sql.NullFloat64
			pan, tilt, roll sql.NullFloat64
			zoom, focus     sql.NullFloat64
		)
		if err := rows.Scan(&receivedAt, &srcIP, &srcPort, &valid,
			&frame, &x, &y, &z, &pan, &tilt, &roll, &zoom, &focus); err != nil {
			return nil, err
		}

		row := Row{Time: time.Unix(0, receivedAt), Valid: valid}
		if srcIP.Valid {
			if addr, err := netip.ParseAddr(srcIP.String); err == nil {
				row.Source = netip.AddrPortFrom(addr, uint16(srcPort.Int64))
			}
		}
		if valid {
			p := freed.NewPacket(uint32(frame.Int64))
			p.X, p.Y, p.Z = x.Float64, y.Float64, z.Float64
			p.Pan, p.Tilt, p.Roll = pan.Float64, tilt.Float64, roll.Float64
			if zoom.Valid || focus.Valid {
				p.Lens = &freed.Lens{Zoom: zoom.Float64, Focus: focus.Float64}
			}
			row.Packet = p
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its packets.
func (s *Store) DeleteSession(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM capture_packets WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM capture_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w %q", ErrUnknownSession, sessionID)
	}
	return tx.Commit()
}
