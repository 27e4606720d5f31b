package store

import "time"

// Ticket is owned by the issuance flow; the pass web service only reads it.
// The document id is the ticket code.
type Ticket struct {
	Email        string `db:"email" firestore:"email"`
	Name         string `db:"name" firestore:"name"`
	Code         string `db:"code" firestore:"code"`
	ObjectID     string `db:"object_id" firestore:"objectId"`
	Serial       string `db:"serial" firestore:"serial"`
	BoothVisited int    `db:"booth_visited" firestore:"boothVisited"`
}

// Pass tracks update freshness for one (pass type, serial) pair.
// Document id is PassID(passTypeIdentifier, serialNumber).
type Pass struct {
	PassTypeIdentifier string    `db:"pass_type_identifier" firestore:"passTypeIdentifier"`
	SerialNumber       string    `db:"serial_number" firestore:"serialNumber"`
	UpdatedAt          time.Time `db:"updated_at" firestore:"updatedAt"`
}

// Device is one wallet-holding endpoint. Document id is the
// deviceLibraryIdentifier assigned by the wallet app.
type Device struct {
	PushToken string    `db:"push_token" firestore:"pushToken"`
	SeenAt    time.Time `db:"seen_at" firestore:"seenAt"`
}

// Registration joins a device to a pass. Its existence is the sole
// authority for "notify this device about this pass". Document id is
// RegistrationID(deviceLibraryIdentifier, passID).
type Registration struct {
	DeviceLibraryIdentifier string    `db:"device_library_identifier" firestore:"deviceLibraryIdentifier"`
	PassID                  string    `db:"pass_id" firestore:"passId"`
	PassTypeIdentifier      string    `db:"pass_type_identifier" firestore:"passTypeIdentifier"`
	SerialNumber            string    `db:"serial_number" firestore:"serialNumber"`
	RegisteredAt            time.Time `db:"registered_at" firestore:"registeredAt"`
}

// PassID builds the composite document id for a pass.
func PassID(passTypeIdentifier, serialNumber string) string {
	return passTypeIdentifier + "_" + serialNumber
}

// RegistrationID builds the composite document id for a registration.
func RegistrationID(deviceLibraryIdentifier, passID string) string {
	return deviceLibraryIdentifier + "_" + passID
}
