package mqtmodels

// Kind is the classification label derived from a topic.
type Kind string

const (
	KindTelemetry Kind = "telemetry"
	KindEvent     Kind = "event"
	KindCommand   Kind = "cmd"
	KindUnknown   Kind = "unknown"
)

// Message is one ingested transport message. Rows are append-only.
// IngestTimestamp is seconds since epoch taken at receipt, never from the device.
type Message struct {
	ID              int64   `bson:"_id" json:"id"`
	IngestTimestamp int64   `bson:"ts_ingest" json:"ts_ingest"`
	Topic           string  `bson:"topic" json:"topic"`
	Payload         string  `bson:"payload" json:"payload"`
	Kind            Kind    `bson:"kind" json:"kind"`
	LockerID        *string `bson:"locker_id" json:"locker_id"`
}
