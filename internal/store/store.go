package store

import (
	"context"
	"errors"
	"time"
)

// MaxInValues is the store's "value in list" query cardinality limit.
// Callers fanning out over more serials must chunk and union.
const MaxInValues = 10

var (
	ErrNotFound = errors.New("document not found")
	// More than one ticket carries the same serial. Serials are derived
	// from the email at write time, so this means the collection integrity
	// is broken and no single match can be trusted.
	ErrDuplicateTicket = errors.New("duplicate ticket serial")
)

// Store is the document-database boundary for the four collections the
// service touches. Pass, device and registration writes are exclusively
// owned by the wallet web service; tickets are written by issuance only.
//
// All write methods have merge/upsert semantics where the wallet protocol
// needs them: re-registering a device replaces its push
// token, re-upserting a pass never clears unrelated fields.
type Store interface {
	Close() error

	// Tickets
	GetTicketByCode(ctx context.Context, code string) (*Ticket, error)
	// GetTicketBySerial returns ErrDuplicateTicket when more than one
	// ticket matches; a single match is the only trustworthy answer.
	GetTicketBySerial(ctx context.Context, serial string) (*Ticket, error)
	FindTicketByEmail(ctx context.Context, email string) (*Ticket, error)
	PutTicket(ctx context.Context, t Ticket) error
	SetTicketBoothVisited(ctx context.Context, code string, boothVisited int) error
	ListTickets(ctx context.Context) ([]Ticket, error)

	// Passes
	UpsertPass(ctx context.Context, id string, p Pass) error
	// TouchPass bumps only updatedAt, leaving other fields alone.
	TouchPass(ctx context.Context, id string, updatedAt time.Time) error
	GetPass(ctx context.Context, id string) (*Pass, error)
	DeletePass(ctx context.Context, id string) error

	// Devices
	UpsertDevice(ctx context.Context, id string, d Device) error
	GetDevice(ctx context.Context, id string) (*Device, error)
	DeleteDevice(ctx context.Context, id string) error
	// FindDeviceByPushToken is a limit-1 lookup used by the push
	// invalidation sweep. Returns the device library identifier.
	FindDeviceByPushToken(ctx context.Context, token string) (string, error)

	// Registrations
	CreateRegistration(ctx context.Context, id string, r Registration) error
	RegistrationExists(ctx context.Context, id string) (bool, error)
	DeleteRegistration(ctx context.Context, id string) error
	ListRegistrationsByDevice(ctx context.Context, deviceLibraryIdentifier, passTypeIdentifier string) ([]Registration, error)
	ListRegistrationsForDevice(ctx context.Context, deviceLibraryIdentifier string) ([]Registration, error)
	// ListRegistrationsBySerials rejects more than MaxInValues serials.
	ListRegistrationsBySerials(ctx context.Context, passTypeIdentifier string, serials []string) ([]Registration, error)
	// Limit-1 existence checks backing deregistration garbage collection.
	HasRegistrationForDevice(ctx context.Context, deviceLibraryIdentifier string) (bool, error)
	HasRegistrationForPass(ctx context.Context, passID string) (bool, error)
}
