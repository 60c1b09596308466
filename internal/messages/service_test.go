package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleTargets_RegularMessage(t *testing.T) {
	members := []string{"u1", "u2", "u3"}
	targets := visibleTargets(members, false, nil)
	assert.Equal(t, members, targets)
}

func TestVisibleTargets_WhisperFiltersToRecipients(t *testing.T) {
	members := []string{"u1", "u2", "u3", "u4"}
	recipients := map[string]struct{}{"u2": {}, "u4": {}, "not-a-member": {}}
	targets := visibleTargets(members, true, recipients)
	assert.ElementsMatch(t, []string{"u2", "u4"}, targets)
}

func TestVisibleTargets_WhisperWithNoMatchingMembers(t *testing.T) {
	targets := visibleTargets([]string{"u1"}, true, map[string]struct{}{"u9": {}})
	assert.Empty(t, targets)
}

func TestValidateRecipientIDs(t *testing.T) {
	assert.NoError(t, validateRecipientIDs(nil))
	assert.NoError(t, validateRecipientIDs([]string{"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}))
	assert.ErrorIs(t, validateRecipientIDs([]string{"duke"}), ErrBadRecipient)
	assert.ErrorIs(t, validateRecipientIDs([]string{
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8", "not-a-uuid",
	}), ErrBadRecipient)
}
