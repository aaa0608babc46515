package mqtmodels

// LockerState is the current-state projection of one locker, rebuilt from
// the latest telemetry message. Door and Relay are nil when the payload
// did not carry them or could not be parsed.
type LockerState struct {
	LockerID   string  `bson:"_id" json:"locker_id"`
	TsUpdate   int64   `bson:"ts_update" json:"ts_update"`
	Door       *string `bson:"door" json:"door"`
	Relay      *string `bson:"relay" json:"relay"`
	RawPayload string  `bson:"raw_payload" json:"raw_payload"`
}
