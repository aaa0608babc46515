// Package topic maps MQTT topics to locker identities and back.
//
// Inbound topics look like <prefix>/<locker_id>/<kind>; commands go out on
// <prefix>/<locker_id>/cmd. Classification is total: every string yields a
// result, so ingestion never has a reason to reject a message.
package topic

import (
	"strings"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
)

// DefaultPrefix is the reserved locker namespace.
const DefaultPrefix = "locker"

const separator = "/"

// Classification is the result of Classify. LockerID is nil when the topic
// is outside the locker namespace or the id segment is missing.
type Classification struct {
	Kind     mqtmodels.Kind
	LockerID *string
}

// Scheme binds the classifier and the command template to one prefix.
type Scheme struct {
	Prefix string
}

// NewScheme returns a scheme for prefix, falling back to DefaultPrefix.
func NewScheme(prefix string) Scheme {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Scheme{Prefix: prefix}
}

// Classify splits t and extracts (kind, locker_id).
func (s Scheme) Classify(t string) Classification {
	out := Classification{Kind: mqtmodels.KindUnknown}

	parts := strings.Split(t, separator)
	if len(parts) < 2 || parts[0] != s.Prefix {
		return out
	}
	if parts[1] != "" {
		id := parts[1]
		out.LockerID = &id
	}
	if len(parts) >= 3 && parts[2] != "" {
		out.Kind = mqtmodels.Kind(parts[2])
	}
	return out
}

// Command returns the command topic of one locker.
func (s Scheme) Command(lockerID string) string {
	return s.Prefix + separator + lockerID + separator + string(mqtmodels.KindCommand)
}

// Wildcard is the subscription filter covering every locker topic.
func (s Scheme) Wildcard() string {
	return s.Prefix + separator + "#"
}

// Classify uses the default locker prefix.
func Classify(t string) Classification {
	return NewScheme(DefaultPrefix).Classify(t)
}
