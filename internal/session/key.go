// Package session tracks which conversation's variant store is loaded and
// keeps it consistent with disk when the active conversation changes.
package session

import "fmt"

// Key identifies the conversation a variant store belongs to.
type Key struct {
	Participant  string
	Conversation string
	Mode         string
}

// IsZero reports whether no context is set.
func (k Key) IsZero() bool {
	return k == Key{}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Mode, k.Participant, k.Conversation)
}
