package store

import (
	"fmt"
	"net/url"
	"strings"
)

func ownerPrefix(prefix, owner string) string {
	prefix = strings.TrimRight(prefix, "/")
	return fmt.Sprintf("%s/%s/", prefix, url.PathEscape(owner))
}

func recordKey(prefix, owner, id string) string {
	return ownerPrefix(prefix, owner) + url.PathEscape(id)
}

// idFromKey extracts the record id from a full etcd key.
func idFromKey(key string) (string, error) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return "", fmt.Errorf("malformed record key %q", key)
	}
	return url.PathUnescape(key[idx+1:])
}
