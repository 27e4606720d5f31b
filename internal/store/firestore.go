package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wallet-ticket-service/internal/config"
)

const (
	colTickets       = "tickets"
	colPasses        = "passes"
	colDevices       = "devices"
	colRegistrations = "registrations"
)

// ---------------------------------------------------------------------------
// Firestore implementation
// ---------------------------------------------------------------------------

type FirestoreStore struct {
	client *firestore.Client
	logger *slog.Logger
}

func NewFirestoreStore(ctx context.Context, cfg *config.FirestoreStorage) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	return &FirestoreStore{
		client: client,
		logger: slog.With("component", "storage", "backend", "firestore"),
	}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStore) GetTicketByCode(ctx context.Context, code string) (*Ticket, error) {
	snap, err := s.client.Collection(colTickets).Doc(code).Get(ctx)
	if notFound(err) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var t Ticket
	if err := snap.DataTo(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *FirestoreStore) GetTicketBySerial(ctx context.Context, serial string) (*Ticket, error) {
	// Limit 2: one match is the answer, two means broken integrity.
	iter := s.client.Collection(colTickets).Where("serial", "==", serial).Limit(2).Documents(ctx)
	defer iter.Stop()

	var tickets []Ticket
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, err
		}
		var t Ticket
		if err := snap.DataTo(&t); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
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

func (s *FirestoreStore) FindTicketByEmail(ctx context.Context, email string) (*Ticket, error) {
	iter := s.client.Collection(colTickets).Where("email", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var t Ticket
	if err := snap.DataTo(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *FirestoreStore) PutTicket(ctx context.Context, t Ticket) error {
	_, err := s.client.Collection(colTickets).Doc(t.Code).Set(ctx, t)
	return err
}

func (s *FirestoreStore) SetTicketBoothVisited(ctx context.Context, code string, boothVisited int) error {
	_, err := s.client.Collection(colTickets).Doc(code).Update(ctx, []firestore.Update{
		{Path: "boothVisited", Value: boothVisited},
	})
	if notFound(err) {
		return ErrNotFound
	}
	return err
}

func (s *FirestoreStore) ListTickets(ctx context.Context) ([]Ticket, error) {
	iter := s.client.Collection(colTickets).Documents(ctx)
	defer iter.Stop()

	var tickets []Ticket
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, err
		}
		var t Ticket
		if err := snap.DataTo(&t); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func (s *FirestoreStore) UpsertPass(ctx context.Context, id string, p Pass) error {
	_, err := s.client.Collection(colPasses).Doc(id).Set(ctx, map[string]any{
		"passTypeIdentifier": p.PassTypeIdentifier,
		"serialNumber":       p.SerialNumber,
		"updatedAt":          p.UpdatedAt,
	}, firestore.MergeAll)
	return err
}

func (s *FirestoreStore) TouchPass(ctx context.Context, id string, updatedAt time.Time) error {
	_, err := s.client.Collection(colPasses).Doc(id).Set(ctx, map[string]any{
		"updatedAt": updatedAt,
	}, firestore.MergeAll)
	return err
}

func (s *FirestoreStore) GetPass(ctx context.Context, id string) (*Pass, error) {
	snap, err := s.client.Collection(colPasses).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var p Pass
	if err := snap.DataTo(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *FirestoreStore) DeletePass(ctx context.Context, id string) error {
	_, err := s.client.Collection(colPasses).Doc(id).Delete(ctx)
	return err
}

func (s *FirestoreStore) UpsertDevice(ctx context.Context, id string, d Device) error {
	_, err := s.client.Collection(colDevices).Doc(id).Set(ctx, map[string]any{
		"pushToken": d.PushToken,
		"seenAt":    d.SeenAt,
	}, firestore.MergeAll)
	return err
}

func (s *FirestoreStore) GetDevice(ctx context.Context, id string) (*Device, error) {
	snap, err := s.client.Collection(colDevices).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var d Device
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *FirestoreStore) DeleteDevice(ctx context.Context, id string) error {
	_, err := s.client.Collection(colDevices).Doc(id).Delete(ctx)
	return err
}

func (s *FirestoreStore) FindDeviceByPushToken(ctx context.Context, token string) (string, error) {
	iter := s.client.Collection(colDevices).Where("pushToken", "==", token).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return "", ErrNotFound
	} else if err != nil {
		return "", err
	}
	return snap.Ref.ID, nil
}

func (s *FirestoreStore) CreateRegistration(ctx context.Context, id string, r Registration) error {
	_, err := s.client.Collection(colRegistrations).Doc(id).Set(ctx, r)
	return err
}

func (s *FirestoreStore) RegistrationExists(ctx context.Context, id string) (bool, error) {
	_, err := s.client.Collection(colRegistrations).Doc(id).Get(ctx)
	if notFound(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (s *FirestoreStore) DeleteRegistration(ctx context.Context, id string) error {
	_, err := s.client.Collection(colRegistrations).Doc(id).Delete(ctx)
	return err
}

func (s *FirestoreStore) queryRegistrations(ctx context.Context, q firestore.Query) ([]Registration, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var regs []Registration
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, err
		}
		var r Registration
		if err := snap.DataTo(&r); err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

func (s *FirestoreStore) ListRegistrationsByDevice(ctx context.Context, deviceLibraryIdentifier, passTypeIdentifier string) ([]Registration, error) {
	q := s.client.Collection(colRegistrations).
		Where("deviceLibraryIdentifier", "==", deviceLibraryIdentifier).
		Where("passTypeIdentifier", "==", passTypeIdentifier)
	return s.queryRegistrations(ctx, q)
}

func (s *FirestoreStore) ListRegistrationsForDevice(ctx context.Context, deviceLibraryIdentifier string) ([]Registration, error) {
	q := s.client.Collection(colRegistrations).
		Where("deviceLibraryIdentifier", "==", deviceLibraryIdentifier)
	return s.queryRegistrations(ctx, q)
}

func (s *FirestoreStore) ListRegistrationsBySerials(ctx context.Context, passTypeIdentifier string, serials []string) ([]Registration, error) {
	if len(serials) > MaxInValues {
		return nil, fmt.Errorf("at most %d serials per query, got %d", MaxInValues, len(serials))
	}
	values := make([]any, len(serials))
	for i, s := range serials {
		values[i] = s
	}
	q := s.client.Collection(colRegistrations).
		Where("passTypeIdentifier", "==", passTypeIdentifier).
		Where("serialNumber", "in", values)
	return s.queryRegistrations(ctx, q)
}

func (s *FirestoreStore) hasRegistration(ctx context.Context, field, value string) (bool, error) {
	iter := s.client.Collection(colRegistrations).Where(field, "==", value).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (s *FirestoreStore) HasRegistrationForDevice(ctx context.Context, deviceLibraryIdentifier string) (bool, error) {
	return s.hasRegistration(ctx, "deviceLibraryIdentifier", deviceLibraryIdentifier)
}

func (s *FirestoreStore) HasRegistrationForPass(ctx context.Context, passID string) (bool, error) {
	return s.hasRegistration(ctx, "passId", passID)
}
