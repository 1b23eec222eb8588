package cache

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// KeySeparator joins the user and conversation parts of a compound key.
const KeySeparator = "/"

// Conversation IDs are UUIDs rendered as 32 lowercase hex chars, no dashes.
var conversationIDRe = regexp.MustCompile(`^[a-f0-9]{32}$`)

// ValidateUserID rejects user IDs that are empty or contain the key
// separator. A separator inside the user part would let one user address
// another user's conversations.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user ID", ErrInvalidIdentifier)
	}
	if strings.Contains(userID, KeySeparator) {
		return fmt.Errorf("%w: user ID %q contains %q", ErrInvalidIdentifier, userID, KeySeparator)
	}
	return nil
}

// ValidateConversationID rejects conversation IDs that are not in the
// canonical 32-char hex form.
func ValidateConversationID(conversationID string) error {
	if !conversationIDRe.MatchString(conversationID) {
		return fmt.Errorf("%w: conversation ID %q is not a 32-char hex UUID", ErrInvalidIdentifier, conversationID)
	}
	return nil
}

// ConversationKey validates both parts and builds the compound cache key.
// Pure function, no I/O; every backend calls it before any store access.
func ConversationKey(userID, conversationID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	if err := ValidateConversationID(conversationID); err != nil {
		return "", err
	}
	return userID + KeySeparator + conversationID, nil
}

// NewConversationID returns a fresh conversation ID in the canonical format.
func NewConversationID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
