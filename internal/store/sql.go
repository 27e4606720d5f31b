package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// SQL implementation
// ---------------------------------------------------------------------------

type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewSQLStore(driverName string, dataSource string) (*SQLStore, error) {
	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil, err
	}

	return &SQLStore{
		db:     db,
		logger: slog.With("component", "storage", "backend", driverName),
	}, nil
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Row types: timestamps live as epoch milliseconds in SQL.

type passRow struct {
	ID                 string `db:"id"`
	PassTypeIdentifier string `db:"pass_type_identifier"`
	SerialNumber       string `db:"serial_number"`
	UpdatedAtMs        int64  `db:"updated_at_ms"`
}

type deviceRow struct {
	ID        string `db:"id"`
	PushToken string `db:"push_token"`
	SeenAtMs  int64  `db:"seen_at_ms"`
}

type registrationRow struct {
	ID                      string `db:"id"`
	DeviceLibraryIdentifier string `db:"device_library_identifier"`
	PassID                  string `db:"pass_id"`
	PassTypeIdentifier      string `db:"pass_type_identifier"`
	SerialNumber            string `db:"serial_number"`
	RegisteredAtMs          int64  `db:"registered_at_ms"`
}

func (r registrationRow) registration() Registration {
	return Registration{
		DeviceLibraryIdentifier: r.DeviceLibraryIdentifier,
		PassID:                  r.PassID,
		PassTypeIdentifier:      r.PassTypeIdentifier,
		SerialNumber:            r.SerialNumber,
		RegisteredAt:            time.UnixMilli(r.RegisteredAtMs),
	}
}

func (s *SQLStore) GetTicketByCode(ctx context.Context, code string) (*Ticket, error) {
	var t Ticket
	err := s.db.GetContext(ctx, &t,
		`SELECT email, name, code, object_id, serial, booth_visited FROM tickets WHERE code = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLStore) GetTicketBySerial(ctx context.Context, serial string) (*Ticket, error) {
	var tickets []Ticket
	err := s.db.SelectContext(ctx, &tickets,
		`SELECT email, name, code, object_id, serial, booth_visited FROM tickets WHERE serial = ? LIMIT 2`, serial)
	if err != nil {
		return nil, err
	}
	switch len(tickets) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &tickets[0], nil
	default:
		s.logger.Error("Multiple tickets share one serial", "serial", serial)
		return nil, ErrDuplicateTicket
	}
}

func (s *SQLStore) FindTicketByEmail(ctx context.Context, email string) (*Ticket, error) {
	var t Ticket
	err := s.db.GetContext(ctx, &t,
		`SELECT email, name, code, object_id, serial, booth_visited FROM tickets WHERE email = ? LIMIT 1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLStore) PutTicket(ctx context.Context, t Ticket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (code, email, name, object_id, serial, booth_visited)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET
		   email = excluded.email,
		   name = excluded.name,
		   object_id = excluded.object_id,
		   serial = excluded.serial,
		   booth_visited = excluded.booth_visited`,
		t.Code, t.Email, t.Name, t.ObjectID, t.Serial, t.BoothVisited)
	return err
}

func (s *SQLStore) SetTicketBoothVisited(ctx context.Context, code string, boothVisited int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET booth_visited = ? WHERE code = ?`, boothVisited, code)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListTickets(ctx context.Context) ([]Ticket, error) {
	var tickets []Ticket
	err := s.db.SelectContext(ctx, &tickets,
		`SELECT email, name, code, object_id, serial, booth_visited FROM tickets ORDER BY code`)
	return tickets, err
}

func (s *SQLStore) UpsertPass(ctx context.Context, id string, p Pass) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO passes (id, pass_type_identifier, serial_number, updated_at_ms)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   pass_type_identifier = excluded.pass_type_identifier,
		   serial_number = excluded.serial_number,
		   updated_at_ms = excluded.updated_at_ms`,
		id, p.PassTypeIdentifier, p.SerialNumber, p.UpdatedAt.UnixMilli())
	return err
}

func (s *SQLStore) TouchPass(ctx context.Context, id string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO passes (id, pass_type_identifier, serial_number, updated_at_ms)
		 VALUES (?, '', '', ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at_ms = excluded.updated_at_ms`,
		id, updatedAt.UnixMilli())
	return err
}

func (s *SQLStore) GetPass(ctx context.Context, id string) (*Pass, error) {
	var row passRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, pass_type_identifier, serial_number, updated_at_ms FROM passes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &Pass{
		PassTypeIdentifier: row.PassTypeIdentifier,
		SerialNumber:       row.SerialNumber,
		UpdatedAt:          time.UnixMilli(row.UpdatedAtMs),
	}, nil
}

func (s *SQLStore) DeletePass(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM passes WHERE id = ?`, id)
	return err
}

func (s *SQLStore) UpsertDevice(ctx context.Context, id string, d Device) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (id, push_token, seen_at_ms)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   push_token = excluded.push_token,
		   seen_at_ms = excluded.seen_at_ms`,
		id, d.PushToken, d.SeenAt.UnixMilli())
	return err
}

func (s *SQLStore) GetDevice(ctx context.Context, id string) (*Device, error) {
	var row deviceRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, push_token, seen_at_ms FROM devices WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &Device{
		PushToken: row.PushToken,
		SeenAt:    time.UnixMilli(row.SeenAtMs),
	}, nil
}

func (s *SQLStore) DeleteDevice(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	return err
}

func (s *SQLStore) FindDeviceByPushToken(ctx context.Context, token string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id,
		`SELECT id FROM devices WHERE push_token = ? LIMIT 1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	} else if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) CreateRegistration(ctx context.Context, id string, r Registration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registrations (id, device_library_identifier, pass_id, pass_type_identifier, serial_number, registered_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, r.DeviceLibraryIdentifier, r.PassID, r.PassTypeIdentifier, r.SerialNumber, r.RegisteredAt.UnixMilli())
	return err
}

func (s *SQLStore) RegistrationExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, `SELECT 1 FROM registrations WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) DeleteRegistration(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	return err
}

func (s *SQLStore) selectRegistrations(ctx context.Context, query string, args ...any) ([]Registration, error) {
	var rows []registrationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	var regs []Registration
	for _, row := range rows {
		regs = append(regs, row.registration())
	}
	return regs, nil
}

func (s *SQLStore) ListRegistrationsByDevice(ctx context.Context, deviceLibraryIdentifier, passTypeIdentifier string) ([]Registration, error) {
	return s.selectRegistrations(ctx,
		`SELECT id, device_library_identifier, pass_id, pass_type_identifier, serial_number, registered_at_ms
		 FROM registrations WHERE device_library_identifier = ? AND pass_type_identifier = ?`,
		deviceLibraryIdentifier, passTypeIdentifier)
}

func (s *SQLStore) ListRegistrationsForDevice(ctx context.Context, deviceLibraryIdentifier string) ([]Registration, error) {
	return s.selectRegistrations(ctx,
		`SELECT id, device_library_identifier, pass_id, pass_type_identifier, serial_number, registered_at_ms
		 FROM registrations WHERE device_library_identifier = ?`,
		deviceLibraryIdentifier)
}

func (s *SQLStore) ListRegistrationsBySerials(ctx context.Context, passTypeIdentifier string, serials []string) ([]Registration, error) {
	if len(serials) > MaxInValues {
		return nil, fmt.Errorf("at most %d serials per query, got %d", MaxInValues, len(serials))
	}
	if len(serials) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, device_library_identifier, pass_id, pass_type_identifier, serial_number, registered_at_ms
		 FROM registrations WHERE pass_type_identifier = ? AND serial_number IN (?)`,
		passTypeIdentifier, serials)
	if err != nil {
		return nil, err
	}
	return s.selectRegistrations(ctx, s.db.Rebind(query), args...)
}

func (s *SQLStore) hasRegistration(ctx context.Context, query string, arg string) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) HasRegistrationForDevice(ctx context.Context, deviceLibraryIdentifier string) (bool, error) {
	return s.hasRegistration(ctx,
		`SELECT 1 FROM registrations WHERE device_library_identifier = ? LIMIT 1`, deviceLibraryIdentifier)
}

func (s *SQLStore) HasRegistrationForPass(ctx context.Context, passID string) (bool, error) {
	return s.hasRegistration(ctx,
		`SELECT 1 FROM registrations WHERE pass_id = ? LIMIT 1`, passID)
}
