// Package wire defines the radio contract shared by the tag and its client:
// service identifiers, the two Reading encodings and the command encodings.
package wire

import "github.com/google/uuid"

// DeviceName is the advertised local name of the tag.
const DeviceName = "RespirationMonitor"

// Service and characteristic identifiers. These are compatibility-significant
// and must match exactly between device and client.
var (
	ServiceUUID     = uuid.MustParse("12345678-1234-1234-1234-123456789abc")
	ReadingCharUUID = uuid.MustParse("87654321-4321-4321-4321-cba987654321") // read + notify
	CommandCharUUID = uuid.MustParse("11111111-2222-3333-4444-555555555555") // write
)
