package model

import (
	"fmt"
	"strconv"
	"strings"
)

// OriginAttributes identifies an isolation partition. The zero value is
// normal browsing.
type OriginAttributes struct {
	UserContextID     uint32
	PrivateBrowsingID uint32
}

// DefaultPartition is normal, non-container, non-private browsing.
var DefaultPartition = OriginAttributes{}

// IsPrivate reports whether the partition belongs to a private-browsing
// session. Private partitions never outlive their session.
func (a OriginAttributes) IsPrivate() bool {
	return a.PrivateBrowsingID > 0
}

// Key renders the partition as a stable suffix string. The default
// partition has the empty key.
func (a OriginAttributes) Key() string {
	var parts []string
	if a.UserContextID > 0 {
		parts = append(parts, "userContextId="+strconv.FormatUint(uint64(a.UserContextID), 10))
	}
	if a.PrivateBrowsingID > 0 {
		parts = append(parts, "privateBrowsingId="+strconv.FormatUint(uint64(a.PrivateBrowsingID), 10))
	}
	if len(parts) == 0 {
		return ""
	}
	return "^" + strings.Join(parts, "&")
}

func (a OriginAttributes) String() string {
	if key := a.Key(); key != "" {
		return key
	}
	return "default"
}

// ParseOriginAttributes is the inverse of Key. "" and "default" both name
// the default partition.
func ParseOriginAttributes(key string) (OriginAttributes, error) {
	var a OriginAttributes
	key = strings.TrimSpace(key)
	if key == "" || key == "default" {
		return a, nil
	}
	if !strings.HasPrefix(key, "^") {
		return a, fmt.Errorf("invalid partition key %q: missing ^ prefix", key)
	}
	for _, part := range strings.Split(key[1:], "&") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return a, fmt.Errorf("invalid partition key %q: malformed %q", key, part)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return a, fmt.Errorf("invalid partition key %q: %w", key, err)
		}
		switch name {
		case "userContextId":
			a.UserContextID = uint32(n)
		case "privateBrowsingId":
			a.PrivateBrowsingID = uint32(n)
		default:
			return a, fmt.Errorf("invalid partition key %q: unknown attribute %q", key, name)
		}
	}
	return a, nil
}
