package anchor_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

func TestError(t *testing.T) {
	e := anchor.NewError(2, "OfferExpired", "The offer has expired")
	assert.Equal(t, uint32(6002), e.Code)
	assert.Equal(t, svm.CustomError(6002), e.Custom())
	assert.Equal(t, "custom program error: 0x1772", e.Custom().Error())
	assert.Equal(t,
		"AnchorError occurred. Error Code: OfferExpired. Error Number: 6002. Error Message: The offer has expired.",
		e.LogLine())
}

func TestParseAnchorError(t *testing.T) {
	e := anchor.NewError(0, "InvalidAmount", "Amount must be greater than zero")

	got, ok := anchor.ParseAnchorError([]string{
		"Program X invoke [1]",
		"Program log: " + e.LogLine(),
		"Program X failed: custom program error: 0x1770",
	})
	require.True(t, ok)
	assert.Equal(t, e, got)

	got, ok = anchor.ParseAnchorError([]string{
		"Program log: AnchorError caused by account: vault. Error Code: ConstraintSeeds. Error Number: 2006. Error Message: A seeds constraint was violated.",
	})
	require.True(t, ok)
	assert.Equal(t, "ConstraintSeeds", got.Name)
	assert.Equal(t, uint32(2006), got.Code)

	_, ok = anchor.ParseAnchorError([]string{"Program log: AnchorError mentioned without details"})
	assert.False(t, ok)
	_, ok = anchor.ParseAnchorError(nil)
	assert.False(t, ok)
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")

	evtErr := fmt.Errorf("wrapped: %w", &anchor.EventError{Kind: anchor.EventParseError, Err: cause})
	assert.ErrorIs(t, evtErr, cause)
	assert.NotErrorIs(t, evtErr, anchor.ErrEventNotFound)
	assert.Contains(t, evtErr.Error(), "Failed to parse event data: boom")

	buildErr := &anchor.BuildError{Msg: "failed to sign", Err: cause}
	assert.ErrorIs(t, buildErr, cause)
	assert.Equal(t, "failed to sign: boom", buildErr.Error())

	assert.Equal(t, "EventNotFound", anchor.EventNotFound.String())
	assert.Equal(t, "DiscriminatorMismatch", anchor.AccountDiscriminatorMismatch.String())
}
