package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailpay-labs/mailpay/internal/apperr"
	"github.com/mailpay-labs/mailpay/internal/domain/asset"
	"github.com/mailpay-labs/mailpay/internal/domain/escrow"
	"github.com/mailpay-labs/mailpay/internal/ledger"
)

const hubContract = "0x1234567890abcdef1234567890abcdef12345678"

func testAddress(seed byte) string {
	return address.Uint160ToString(util.Uint160{seed, 0xAB, 0xCD})
}

func newService(t *testing.T) (*Service, *ledger.FakeLedger) {
	t.Helper()
	fake := ledger.NewFakeLedger()
	svc := New(fake, Config{HubContract: hubContract}, nil)
	svc.WithClock(fake.Now)
	return svc, fake
}

func TestStandardEscrowLifecycle(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	fake.SetBalance(sender, asset.GAS, 10_000_000_000)

	v, err := svc.CreateStandard(ctx, sender, recipient, "50", asset.GAS, "invoice 42")
	require.NoError(t, err)
	assert.Equal(t, escrow.VariantStandard, v.Variant)
	assert.Equal(t, escrow.StatusActive, v.Status)
	assert.Equal(t, int64(5_000_000_000), v.Amount)
	assert.Equal(t, "invoice 42", v.Memo)

	// Funds are locked at creation.
	assert.Equal(t, int64(5_000_000_000), fake.Balance(sender, asset.GAS))

	released, err := svc.Release(ctx, v.ID, recipient)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, released.Status)
	assert.Equal(t, int64(5_000_000_000), fake.Balance(recipient, asset.GAS))

	// Terminal: no second release, no cancel.
	_, err = svc.Release(ctx, v.ID, recipient)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
	_, err = svc.Cancel(ctx, v.ID, sender)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
}

func TestTimeLockedEscrowRespectsWindow(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	fake.SetBalance(sender, asset.GAS, 10_000_000_000)

	release := fake.Now().Add(time.Hour)
	expiry := fake.Now().Add(2 * time.Hour)

	v, err := svc.CreateTimeLocked(ctx, sender, recipient, "10", asset.GAS, "", release, expiry)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusLocked, v.Status)

	// Before the release time the recipient is refused.
	_, err = svc.Release(ctx, v.ID, recipient)
	require.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	fake.Advance(time.Hour + time.Second)
	released, err := svc.Release(ctx, v.ID, recipient)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, released.Status)

	_, err = svc.Release(ctx, v.ID, recipient)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
	_, err = svc.Cancel(ctx, v.ID, sender)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
}

func TestTimeLockedEscrowExpiryRefund(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	fake.SetBalance(sender, asset.GAS, 1_000_000_000)

	v, err := svc.CreateTimeLocked(ctx, sender, recipient, "10", asset.GAS, "",
		fake.Now().Add(time.Hour), fake.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), fake.Balance(sender, asset.GAS))

	// Not yet expired: refund refused.
	_, err = svc.ClaimExpired(ctx, v.ID, recipient)
	require.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	fake.Advance(2 * time.Hour)
	got, err := svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusExpired, got.Status)

	// Anyone may trigger the refund; the sender gets the funds.
	refunded, err := svc.ClaimExpired(ctx, v.ID, recipient)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusCancelled, refunded.Status)
	assert.Equal(t, int64(1_000_000_000), fake.Balance(sender, asset.GAS))
	assert.Equal(t, int64(0), fake.Balance(recipient, asset.GAS))
}

func TestArbitratedEscrowBypassesReleaseTime(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	arbitrator := testAddress(3)
	fake.SetBalance(sender, asset.USDL, 100_000_000)

	v, err := svc.CreateArbitrated(ctx, sender, recipient, arbitrator, "25", asset.USDL, "dispute-ready",
		fake.Now().Add(time.Hour), fake.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, escrow.VariantArbitrated, v.Variant)
	assert.Equal(t, arbitrator, v.Arbitrator)
	assert.Equal(t, escrow.StatusLocked, v.Status)

	// The recipient is still bound by the window...
	_, err = svc.Release(ctx, v.ID, recipient)
	require.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	// ...but the arbitrator is not.
	released, err := svc.Release(ctx, v.ID, arbitrator)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, released.Status)
	assert.Equal(t, int64(25_000_000), fake.Balance(recipient, asset.USDL))
}

func TestArbitratedEscrowWithReleaseOnly(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	arbitrator := testAddress(3)
	fake.SetBalance(sender, asset.GAS, 1_000_000_000)

	v, err := svc.CreateArbitrated(ctx, sender, recipient, arbitrator, "10", asset.GAS, "",
		fake.Now().Add(time.Hour), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusLocked, v.Status)
	assert.Nil(t, v.Expiry)

	// No expiry: never refundable as expired, and the recipient can release
	// once the bound passes.
	_, err = svc.ClaimExpired(ctx, v.ID, recipient)
	require.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	fake.Advance(time.Hour + time.Second)
	released, err := svc.Release(ctx, v.ID, recipient)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, released.Status)
}

func TestArbitratedEscrowWithExpiryOnly(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	arbitrator := testAddress(3)
	fake.SetBalance(sender, asset.GAS, 1_000_000_000)

	v, err := svc.CreateArbitrated(ctx, sender, recipient, arbitrator, "10", asset.GAS, "",
		time.Time{}, fake.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusActive, v.Status)
	assert.Nil(t, v.Release)

	fake.Advance(2 * time.Hour)
	got, err := svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusExpired, got.Status)

	refunded, err := svc.ClaimExpired(ctx, v.ID, recipient)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusCancelled, refunded.Status)
	assert.Equal(t, int64(1_000_000_000), fake.Balance(sender, asset.GAS))
}

func TestCancelIsSenderOnly(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	fake.SetBalance(sender, asset.GAS, 1_000_000_000)

	v, err := svc.CreateStandard(ctx, sender, recipient, "10", asset.GAS, "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, v.ID, recipient)
	require.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	cancelled, err := svc.Cancel(ctx, v.ID, sender)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusCancelled, cancelled.Status)
	assert.Equal(t, int64(1_000_000_000), fake.Balance(sender, asset.GAS))
}

func TestCreateValidation(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	fake.SetBalance(sender, asset.GAS, 10_000_000_000)

	_, err := svc.CreateStandard(ctx, "bad", recipient, "10", asset.GAS, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.CreateStandard(ctx, sender, recipient, "0", asset.GAS, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// Time-locked windows must be future and ordered.
	_, err = svc.CreateTimeLocked(ctx, sender, recipient, "10", asset.GAS, "",
		fake.Now().Add(-time.Hour), fake.Now().Add(time.Hour))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.CreateTimeLocked(ctx, sender, recipient, "10", asset.GAS, "",
		fake.Now().Add(2*time.Hour), fake.Now().Add(time.Hour))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// Creation needs covered funds.
	_, err = svc.CreateStandard(ctx, sender, recipient, "1000", asset.GAS, "")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
}

func TestGetUnknownEscrow(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Get(context.Background(), 404)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestListByParticipant(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()
	sender := testAddress(1)
	recipient := testAddress(2)
	other := testAddress(3)
	fake.SetBalance(sender, asset.GAS, 10_000_000_000)
	fake.SetBalance(other, asset.GAS, 10_000_000_000)

	_, err := svc.CreateStandard(ctx, sender, recipient, "10", asset.GAS, "first")
	require.NoError(t, err)
	_, err = svc.CreateStandard(ctx, other, recipient, "10", asset.GAS, "second")
	require.NoError(t, err)
	_, err = svc.CreateStandard(ctx, sender, other, "10", asset.GAS, "third")
	require.NoError(t, err)

	mine, err := svc.ListByParticipant(ctx, sender)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	// Newest first.
	assert.Equal(t, "third", mine[0].Memo)
	assert.Equal(t, "first", mine[1].Memo)

	all, err := svc.ListByParticipant(ctx, recipient)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
