package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	req := require.New(t)

	// Wrapping keeps the code reachable
	wrapped := fmt.Errorf("%w: alice in conv-1", ErrNotMember)
	req.Equal(CodeNotMember, Code(wrapped))

	req.Equal(CodePersistence, Code(ErrPersistence))
	req.Equal(CodeNotMutualFollow, Code(ErrNotMutualConnection))
	req.Equal(CodeUserOffline, Code(ErrReceiverOffline))

	// Errors without a wire code fall back to the message only
	req.Empty(Code(ErrAuthRejected))
	req.Empty(Code(fmt.Errorf("anything else")))
	req.Empty(Code(nil))
}
