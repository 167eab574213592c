package utils

import "sync"

var internCache sync.Map

// Intern returns a canonical string for buf so repeated metric keys
// share one allocation.
func Intern(buf []byte) string {
	if v, ok := internCache.Load(string(buf)); ok {
		return v.(string)
	}

	s := string(buf)
	internCache.Store(s, s)
	return s
}
